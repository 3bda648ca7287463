package requestid

import (
	"context"

	"github.com/google/uuid"
)

type key struct{}

// With attaches a request ID to the context for logging.
func With(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, key{}, requestID)
}

// From returns the request ID stored on ctx, or "".
func From(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(key{}).(string); ok {
		return id
	}
	return ""
}

// Detach returns a background context that keeps only the request ID.
func Detach(ctx context.Context) context.Context {
	id := From(ctx)
	if id == "" {
		return context.Background()
	}
	return With(context.Background(), id)
}

// New generates a request ID.
func New() string {
	return uuid.NewString()
}
