package ports

import "context"

// Logger is the logging boundary of the core packages. The optional trailing
// map carries structured call-site context; implementations decide how it is
// rendered (see the text and JSON adapters under adapters/logger).
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	// Error carries the error separately from the message so adapters can
	// render it as its own field.
	Error(ctx context.Context, err error, msg string, fields ...map[string]interface{})
}
