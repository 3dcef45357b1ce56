package logx

import (
	"context"
	"fmt"
	"io"
)

var defaultLogger = NewLogger(LoadFromEnv())

// SetDefaultLogger replaces the process-wide logger.
func SetDefaultLogger(logger *Logger) {
	defaultLogger = logger
}

func GetDefaultLogger() *Logger {
	return defaultLogger
}

func SetLevel(level Level) {
	defaultLogger.SetLevel(level)
}

func SetOutput(w io.Writer) {
	defaultLogger.SetOutput(w)
}

func Trace(msg string) { defaultLogger.log(LevelTrace, msg, nil, nil, nil) }
func Debug(msg string) { defaultLogger.log(LevelDebug, msg, nil, nil, nil) }
func Info(msg string)  { defaultLogger.log(LevelInfo, msg, nil, nil, nil) }
func Warn(msg string)  { defaultLogger.log(LevelWarn, msg, nil, nil, nil) }
func Error(msg string) { defaultLogger.log(LevelError, msg, nil, nil, nil) }

// Fatal logs and exits with status 1.
func Fatal(msg string) {
	defaultLogger.log(LevelFatal, msg, nil, nil, nil)
	defaultLogger.exit(1)
}

func Debugf(format string, args ...any) {
	defaultLogger.log(LevelDebug, fmt.Sprintf(format, args...), nil, nil, nil)
}

func Infof(format string, args ...any) {
	defaultLogger.log(LevelInfo, fmt.Sprintf(format, args...), nil, nil, nil)
}

func Warnf(format string, args ...any) {
	defaultLogger.log(LevelWarn, fmt.Sprintf(format, args...), nil, nil, nil)
}

func Errorf(format string, args ...any) {
	defaultLogger.log(LevelError, fmt.Sprintf(format, args...), nil, nil, nil)
}

func Fatalf(format string, args ...any) {
	defaultLogger.log(LevelFatal, fmt.Sprintf(format, args...), nil, nil, nil)
	defaultLogger.exit(1)
}

func WithFields(fields Fields) *Entry {
	return defaultLogger.WithFields(fields)
}

func WithField(key string, value any) *Entry {
	return defaultLogger.WithField(key, value)
}

func WithError(err error) *Entry {
	return defaultLogger.WithError(err)
}

func WithContext(ctx context.Context) *Entry {
	return newEntry(defaultLogger).WithContext(ctx)
}
