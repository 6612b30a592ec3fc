// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/exp/maps"

	"gopkg.in/natefinch/lumberjack.v2"
)

var _ Factory = (*factory)(nil)

// Factory creates new instances of different types of Logger
type Factory interface {
	// Make creates a new logger with name [name]
	Make(name string) (Logger, error)

	// SetLogLevel sets the log level of the logger named [name]
	SetLogLevel(name string, level Level) error

	// GetLoggerNames returns the names of all logs created by this factory
	GetLoggerNames() []string

	// Close stops and clears all of a Factory's instantiated loggers
	Close()
}

type logWrapper struct {
	logger       Logger
	displayLevel zap.AtomicLevel
	logLevel     zap.AtomicLevel
}

type factory struct {
	config Config
	lock   sync.RWMutex

	// For each logger created by this factory:
	// Logger name --> the logger.
	loggers map[string]logWrapper
}

// NewFactory returns a new instance of a Factory producing loggers configured
// with the values set in the [config] parameter
func NewFactory(config Config) Factory {
	return &factory{
		config:  config,
		loggers: make(map[string]logWrapper),
	}
}

// Assumes [f.lock] is held
func (f *factory) make(name string) (Logger, error) {
	if _, ok := f.loggers[name]; ok {
		return nil, fmt.Errorf("logger with name %q already exists", name)
	}

	consoleEnc := f.config.LogFormat.ConsoleEncoder()
	fileEnc := f.config.LogFormat.FileEncoder()

	var consoleWriter io.WriteCloser = nopCloser{os.Stdout}
	if f.config.DisableWriterDisplaying {
		consoleWriter = Discard
	}

	consoleCore := NewWrappedCore(f.config.DisplayLevel, consoleWriter, consoleEnc)
	consoleCore.WriterDisabled = f.config.DisableWriterDisplaying

	rw := &lumberjack.Logger{
		Filename:   filepath.Join(f.config.Directory, name+".log"),
		MaxSize:    f.config.MaxSize,
		MaxAge:     f.config.MaxAge,
		MaxBackups: f.config.MaxFiles,
		Compress:   f.config.Compress,
	}
	fileCore := NewWrappedCore(f.config.LogLevel, rw, fileEnc)

	prefix := f.config.LogFormat.WrapPrefix(f.config.MsgPrefix)
	l := NewLogger(prefix, consoleCore, fileCore)
	f.loggers[name] = logWrapper{
		logger:       l,
		displayLevel: consoleCore.AtomicLevel,
		logLevel:     fileCore.AtomicLevel,
	}
	return l, nil
}

func (f *factory) Make(name string) (Logger, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.make(name)
}

func (f *factory) SetLogLevel(name string, level Level) error {
	f.lock.RLock()
	defer f.lock.RUnlock()

	logger, ok := f.loggers[name]
	if !ok {
		return fmt.Errorf("logger with name %q not found", name)
	}
	logger.logLevel.SetLevel(zapcore.Level(level))
	logger.displayLevel.SetLevel(zapcore.Level(level))
	return nil
}

func (f *factory) GetLoggerNames() []string {
	f.lock.RLock()
	defer f.lock.RUnlock()

	return maps.Keys(f.loggers)
}

func (f *factory) Close() {
	f.lock.Lock()
	defer f.lock.Unlock()

	for _, lw := range f.loggers {
		lw.logger.Stop()
	}
	f.loggers = nil
}
