package service

import "errors"

// ErrInvalidInput is returned for malformed templates and requests
var ErrInvalidInput = errors.New("invalid input")

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

func orNop(logger Logger) Logger {
	if logger == nil {
		return nopLogger{}
	}
	return logger
}
