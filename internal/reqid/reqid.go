// Package reqid carries the HTTP request correlation id through contexts.
package reqid

import (
	"context"
	"log/slog"
)

type key struct{}

// With returns ctx carrying id.
func With(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key{}, id)
}

// From returns the request id stored in ctx.
func From(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	s, ok := ctx.Value(key{}).(string)
	return s, ok && s != ""
}

// Logger returns lg annotated with the request id in ctx, if any.
func Logger(ctx context.Context, lg *slog.Logger) *slog.Logger {
	if id, ok := From(ctx); ok {
		return lg.With("request_id", id)
	}
	return lg
}
