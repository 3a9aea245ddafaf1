package middleware

import (
	"context"
	"time"
)

// Timeout returns middleware that enforces a per-call execution deadline.
// A zero d disables it.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *Call, next Handler) error {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
