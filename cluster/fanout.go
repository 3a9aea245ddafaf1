package cluster

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultFanoutLimit bounds how many calls of one broadcast are in flight.
const DefaultFanoutLimit = 64

// Fanout runs send for every node with at most limit calls in flight
// (limit <= 0 uses DefaultFanoutLimit). A failing node does not cancel the
// others: every node is attempted, and the failures are returned together
// as a *BroadcastError for op.
func Fanout(ctx context.Context, nodes []Node, op string, limit int, send func(context.Context, NodeID) error) error {
	if limit <= 0 {
		limit = DefaultFanoutLimit
	}

	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures = make(map[NodeID]error)
	)
	g.SetLimit(limit)

	for _, target := range nodes {
		g.Go(func() error {
			err := send(ctx, target.ID)
			if err != nil {
				mu.Lock()
				failures[target.ID] = err
				mu.Unlock()
			}
			return err
		})
	}

	if err := g.Wait(); err == nil {
		return nil
	}
	return &BroadcastError{Op: op, Failures: failures}
}
