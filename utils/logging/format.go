// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package logging

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// Format modes available
const (
	Plain Format = iota
	Colors
	JSON
)

var (
	errUnknownFormat = errors.New("unknown format")

	levelColors = map[Level]string{
		Fatal: "\033[31m",
		Error: "\033[38;5;208m",
		Warn:  "\033[33m",
		Info:  "\033[0m",
		Trace: "\033[35m",
		Debug: "\033[36m",
		Verbo: "\033[32m",
	}
)

const colorReset = "\033[0m"

// Format modes to apply to logs
type Format int

// ToFormat chooses a format mode. "auto" picks Colors only when [fd] is a
// terminal.
func ToFormat(f string, fd uintptr) (Format, error) {
	switch strings.ToUpper(f) {
	case "PLAIN":
		return Plain, nil
	case "COLORS":
		return Colors, nil
	case "JSON":
		return JSON, nil
	case "AUTO":
		if !term.IsTerminal(int(fd)) {
			return Plain, nil
		}
		return Colors, nil
	default:
		return Plain, fmt.Errorf("%w: %q", errUnknownFormat, f)
	}
}

func (f Format) MarshalJSON() ([]byte, error) {
	switch f {
	case Plain:
		return []byte(`"PLAIN"`), nil
	case Colors:
		return []byte(`"COLORS"`), nil
	case JSON:
		return []byte(`"JSON"`), nil
	default:
		return nil, errUnknownFormat
	}
}

func (f Format) WrapPrefix(prefix string) string {
	if prefix == "" || f == JSON {
		return prefix
	}
	return fmt.Sprintf("<%s>", prefix)
}

func (f Format) ConsoleEncoder() zapcore.Encoder {
	config := newEncoderConfig()
	if f == Colors {
		config.EncodeLevel = colorLevelEncoder
	}
	if f == JSON {
		return zapcore.NewJSONEncoder(config)
	}
	return zapcore.NewConsoleEncoder(config)
}

func (f Format) FileEncoder() zapcore.Encoder {
	config := newEncoderConfig()
	if f == JSON {
		return zapcore.NewJSONEncoder(config)
	}
	return zapcore.NewConsoleEncoder(config)
}

func newEncoderConfig() zapcore.EncoderConfig {
	config := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    levelEncoder,
		EncodeTime:     timeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
	return config
}

func levelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(Level(l).String())
}

func colorLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	level := Level(l)
	enc.AppendString(levelColors[level] + level.String() + colorReset)
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("[01-02|15:04:05.000]"))
}
