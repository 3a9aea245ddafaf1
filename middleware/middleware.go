// Package middleware provides composable middleware for remote calls that
// a node executes on behalf of another (set block and purge requests).
// Middleware wraps handler calls synchronously and can modify execution
// (recover from panics, log, add tracing, etc.).
package middleware

import (
	"context"

	"github.com/xraph/datastruct/id"
)

// Call describes the remote operation being executed.
type Call struct {
	// Op is the operation name, e.g. "set.block".
	Op string

	// Cache is the name of the cache the operation targets.
	Cache string

	// Target is the structure the operation applies to.
	Target id.ID
}

// Handler is the terminal function that executes the operation.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the call being executed, and the
// next handler to call. Middleware MUST call next to continue the chain
// (unless short-circuiting on error).
type Middleware func(ctx context.Context, c *Call, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover) executes as:
//
//	logging → recover → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, c *Call, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, c, prev)
			}
		}
		return h(ctx)
	}
}
