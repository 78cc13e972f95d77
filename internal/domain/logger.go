package domain

import (
	"context"
)

// Logger is the logging port used by loaders, stores and transports.
// Every method takes the request context first so request-scoped values (request id,
// user id, resource kind) end up on the entry. fields are alternating key/value pairs.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...any)
	Info(ctx context.Context, msg string, fields ...any)
	Warn(ctx context.Context, msg string, fields ...any)
	Error(ctx context.Context, msg string, fields ...any)
	Fatal(ctx context.Context, msg string, fields ...any) // Fatal will call os.Exit(1) after logging

	// With creates a child logger with the provided structured context fields.
	With(fields ...any) Logger
}
