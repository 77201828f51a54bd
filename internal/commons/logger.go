// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

// Package commons provides the structured logger used throughout voxrelay.
package commons

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logging contract used by every package in this
// module. It mirrors the printf/keyed dual style callers expect: Infof/
// Errorf/Debugf for message formatting, Infow/Errorw/Warnw/Debugw for
// structured key-value pairs.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Debugw(msg string, kv ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Infow(msg string, kv ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Warnw(msg string, kv ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Errorw(msg string, kv ...interface{})
	// With returns a child logger carrying the given key-value pairs on
	// every subsequent entry. Used to bind {unique_id, caller_id} to a
	// per-call logger.
	With(kv ...interface{}) Logger
	// SetLevel adjusts the minimum level this logger (and its children,
	// since they share the same atomic level) emits at.
	SetLevel(level string)
	Sync() error
}

type zapLogger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

type options struct {
	name  string
	path  string
	level string
}

// Option configures NewApplicationLogger.
type Option func(*options)

// Name sets the logger/service name included on every entry.
func Name(name string) Option { return func(o *options) { o.name = name } }

// Path sets a directory to additionally write JSON logs to; empty means
// stderr only.
func Path(path string) Option { return func(o *options) { o.path = path } }

// Level sets the initial minimum log level ("debug", "info", "warn", "error").
func Level(level string) Option { return func(o *options) { o.level = level } }

// NewApplicationLogger builds the process-wide structured logger.
func NewApplicationLogger(opts ...Option) (Logger, error) {
	o := &options{name: "voxrelay", level: "info"}
	for _, apply := range opts {
		apply(o)
	}

	atomicLevel := zap.NewAtomicLevel()
	if err := atomicLevel.UnmarshalText([]byte(o.level)); err != nil {
		atomicLevel.SetLevel(zapcore.InfoLevel)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.Lock(os.Stderr), atomicLevel),
	}

	if o.path != "" {
		if err := os.MkdirAll(o.path, 0o755); err != nil {
			return nil, fmt.Errorf("commons: create log dir %q: %w", o.path, err)
		}
		f, err := os.OpenFile(filepath.Join(o.path, o.name+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("commons: open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(f), atomicLevel))
	}

	core := zapcore.NewTee(cores...)
	base := zap.New(core).With(zap.String("service", o.name))

	return &zapLogger{sugar: base.Sugar(), level: atomicLevel}, nil
}

func (l *zapLogger) Debug(args ...interface{})                  { l.sugar.Debug(args...) }
func (l *zapLogger) Debugf(format string, args ...interface{})  { l.sugar.Debugf(format, args...) }
func (l *zapLogger) Debugw(msg string, kv ...interface{})       { l.sugar.Debugw(msg, kv...) }
func (l *zapLogger) Info(args ...interface{})                   { l.sugar.Info(args...) }
func (l *zapLogger) Infof(format string, args ...interface{})   { l.sugar.Infof(format, args...) }
func (l *zapLogger) Infow(msg string, kv ...interface{})        { l.sugar.Infow(msg, kv...) }
func (l *zapLogger) Warn(args ...interface{})                   { l.sugar.Warn(args...) }
func (l *zapLogger) Warnf(format string, args ...interface{})   { l.sugar.Warnf(format, args...) }
func (l *zapLogger) Warnw(msg string, kv ...interface{})        { l.sugar.Warnw(msg, kv...) }
func (l *zapLogger) Error(args ...interface{})                  { l.sugar.Error(args...) }
func (l *zapLogger) Errorf(format string, args ...interface{})  { l.sugar.Errorf(format, args...) }
func (l *zapLogger) Errorw(msg string, kv ...interface{})       { l.sugar.Errorw(msg, kv...) }

func (l *zapLogger) With(kv ...interface{}) Logger {
	return &zapLogger{sugar: l.sugar.With(kv...), level: l.level}
}

func (l *zapLogger) SetLevel(level string) {
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(level)); err == nil {
		l.level.SetLevel(zl)
	}
}

func (l *zapLogger) Sync() error { return l.sugar.Sync() }
