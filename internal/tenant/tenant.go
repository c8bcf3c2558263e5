package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Context carries the tenant scope derived from the authenticated actor.
// It lives for a single request and is never persisted.
type Context struct {
	AccountID uuid.UUID
	IsAdmin   bool
}

// Valid reports whether the context can be bound. An admin context may
// carry a nil account id; a regular one must not.
func (c Context) Valid() bool {
	return c.IsAdmin || c.AccountID != uuid.Nil
}

var ErrMissingAccount = errors.New("tenant: account id is required")

type ctxKey struct{}

// WithContext attaches the tenant context to the request context.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext extracts the tenant context if one was attached.
func FromContext(ctx context.Context) (Context, bool) {
	if ctx == nil {
		return Context{}, false
	}
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}
