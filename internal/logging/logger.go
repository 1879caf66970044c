// Package logging defines the structured-logging interface used across the
// server, the mail client and the migrator, plus a log/slog implementation.
package logging

import "context"

// Logger is a context-aware, structured logger. Args are key-value pairs:
//
//	log.Info(ctx, "message sent", "id", id, "recipients", n)
//
// Pairs attached to ctx with ContextWith are logged too, ahead of args.
type Logger interface {
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given pairs.
	With(args ...any) Logger
}

type ctxArgsKey struct{}

// ContextWith returns a copy of ctx whose log calls include args, after
// any pairs ctx already carries.
func ContextWith(ctx context.Context, args ...any) context.Context {
	prev := ContextArgs(ctx)
	merged := make([]any, 0, len(prev)+len(args))
	merged = append(append(merged, prev...), args...)
	return context.WithValue(ctx, ctxArgsKey{}, merged)
}

// ContextArgs returns the pairs attached to ctx.
func ContextArgs(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	args, _ := ctx.Value(ctxArgsKey{}).([]any)
	return args
}
