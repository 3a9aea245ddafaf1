package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/datastruct/backoff"
)

// ErrTransient marks a backend failure that is safe to retry (lock
// contention, a primary moving during rebalance, a timed out round trip).
var ErrTransient = errors.New("cache: transient failure")

// IsTransient reports whether err is retryable: it wraps ErrTransient or
// exposes Temporary() true.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	var tmp interface{ Temporary() bool }
	return errors.As(err, &tmp) && tmp.Temporary()
}

// RetryPolicy bounds Retry.
type RetryPolicy struct {
	Attempts int
	Backoff  backoff.Strategy
	Logger   *slog.Logger
}

// Retry runs fn until it succeeds, fails with a non-transient error, the
// attempts are exhausted or ctx is done.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	bo := p.Backoff
	if bo == nil {
		bo = backoff.DefaultStrategy()
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil || !IsTransient(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if p.Logger != nil {
			p.Logger.Debug("cache operation failed, will retry",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		}
		if !backoff.Sleep(ctx.Done(), bo.Delay(attempt)) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("cache: gave up after %d attempts: %w", attempts, err)
}
