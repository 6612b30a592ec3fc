// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package logging

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
)

var _ pflag.Value = (*Level)(nil)

// Level is a zapcore.Level extended with Trace and Verbo. Info lines up with
// zapcore.InfoLevel and Fatal is logged at zapcore.DPanicLevel so that it
// never exits the process.
type Level zapcore.Level

const (
	Verbo Level = iota - 3
	Debug
	Trace
	Info
	Warn
	Error
	Fatal
	Off
)

const (
	fatalStr   = "FATAL"
	errorStr   = "ERROR"
	warnStr    = "WARN"
	infoStr    = "INFO"
	traceStr   = "TRACE"
	debugStr   = "DEBUG"
	verboStr   = "VERBO"
	offStr     = "OFF"
	unknownStr = "UNKNO"
)

// ToLevel is the inverse of Level.String()
func ToLevel(l string) (Level, error) {
	switch strings.ToUpper(l) {
	case offStr:
		return Off, nil
	case fatalStr:
		return Fatal, nil
	case errorStr:
		return Error, nil
	case warnStr:
		return Warn, nil
	case infoStr:
		return Info, nil
	case traceStr:
		return Trace, nil
	case debugStr:
		return Debug, nil
	case verboStr:
		return Verbo, nil
	default:
		return Off, fmt.Errorf("unknown log level: %q", l)
	}
}

func (l Level) String() string {
	switch l {
	case Off:
		return offStr
	case Fatal:
		return fatalStr
	case Error:
		return errorStr
	case Warn:
		return warnStr
	case Info:
		return infoStr
	case Trace:
		return traceStr
	case Debug:
		return debugStr
	case Verbo:
		return verboStr
	default:
		return unknownStr
	}
}

func (l Level) LowerString() string {
	return strings.ToLower(l.String())
}

// Set parses [s] into the level so a Level can be bound directly as a flag.
func (l *Level) Set(s string) error {
	level, err := ToLevel(s)
	if err != nil {
		return err
	}
	*l = level
	return nil
}

func (*Level) Type() string {
	return "level"
}

func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *Level) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	return l.Set(str)
}
