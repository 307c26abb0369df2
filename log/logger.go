package log

import "context"

// Logger defines a standard interface for logging.
// Inspired by common logging library patterns.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	With(fields map[string]interface{}) Logger // Returns a new logger with added structured fields
}

// NewNop returns a Logger that discards everything. Handy as a default
// when the caller does not care about pipeline logging.
func NewNop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...map[string]interface{}) {}
func (nopLogger) Info(context.Context, string, ...map[string]interface{})  {}
func (nopLogger) Warn(context.Context, string, ...map[string]interface{})  {}

func (nopLogger) Error(context.Context, string, error, ...map[string]interface{}) {}

func (n nopLogger) With(map[string]interface{}) Logger { return n }
