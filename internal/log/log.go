// Package log is the process-wide structured logger. Components log through
// the package functions and tag entries with a "component" field.
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLog discards everything until Init runs. Library packages such as gps
// and server log from code paths their unit tests drive directly, and those
// tests never call Init.
var zapLog = zap.NewNop()

// Init installs the logger for the reader. Debug builds a console encoder
// with ISO8601 timestamps and debug level so parse errors on noisy lines
// show up. Otherwise it logs JSON at info level with epoch-millis timestamps
// and no stack traces, which suits journald and log shippers.
func Init(debug bool) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.EpochMillisTimeEncoder
		cfg.EncoderConfig.StacktraceKey = ""
	}

	// Report the caller of Info/Warn/..., not this file.
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}
	zapLog = l
}

// Replace installs l, e.g. a zaptest/observer core in tests.
func Replace(l *zap.Logger) {
	zapLog = l.WithOptions(zap.AddCallerSkip(1))
}

// Sync flushes buffered entries. Called once on shutdown.
func Sync() {
	_ = zapLog.Sync()
}

func Debug(msg string, fields ...zap.Field) { zapLog.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { zapLog.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { zapLog.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { zapLog.Error(msg, fields...) }

// Fatal logs and exits the process. Only cmd uses it.
func Fatal(msg string, fields ...zap.Field) { zapLog.Fatal(msg, fields...) }
