package set

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/xraph/datastruct/cache"
	"github.com/xraph/datastruct/header"
	"github.com/xraph/datastruct/id"
)

// PurgeOptions tune Purge.
type PurgeOptions struct {
	// BatchSize is the number of keys removed per RemoveAll call.
	BatchSize int

	// Limiter paces batches. Nil means unlimited.
	Limiter *rate.Limiter

	Retry  cache.RetryPolicy
	Logger *slog.Logger
}

// Purge removes the items of setID for which this node holds the primary
// copy, in batches. It returns the number of keys removed.
func Purge(ctx context.Context, c cache.Cache, setID id.ID, opts PurgeOptions) (int, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	keys, err := c.LocalKeys(ctx, cache.PeekPrimary)
	if err != nil {
		return 0, fmt.Errorf("datastruct/set: scan local keys: %w", err)
	}

	batch := make([]string, 0, opts.BatchSize)
	removed := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if opts.Limiter != nil {
			if err := opts.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		keys := batch
		if err := cache.Retry(ctx, opts.Retry, func(ctx context.Context) error {
			return c.RemoveAll(ctx, keys)
		}); err != nil {
			return fmt.Errorf("datastruct/set: purge batch: %w", err)
		}
		removed += len(keys)
		batch = make([]string, 0, opts.BatchSize)
		return nil
	}

	for _, k := range keys {
		if !header.IsSetItemOf(k, setID) {
			continue
		}
		batch = append(batch, k)
		if len(batch) == opts.BatchSize {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := flush(); err != nil {
		return removed, err
	}

	opts.Logger.Debug("set data purged",
		slog.String("set_id", setID.String()),
		slog.String("cache", c.Name()),
		slog.Int("removed", removed),
	)
	return removed, nil
}
