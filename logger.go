package migrator

import "context"

// Logger is the logging interface used by every component.
// Key/value pairs follow the message. A nil Logger disables logging.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...interface{})
	Info(ctx context.Context, msg string, keyvals ...interface{})
	Warn(ctx context.Context, msg string, keyvals ...interface{})
	Error(ctx context.Context, msg string, keyvals ...interface{})
}
