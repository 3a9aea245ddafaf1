package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/datastruct/cache"
	"github.com/xraph/datastruct/header"
	"github.com/xraph/datastruct/id"
)

// Delegate is a queue implementation bound to one header.
type Delegate interface {
	ID() id.ID
	Name() string

	// Header returns the last header this handle observed.
	Header() header.QueueHeader

	// Offer appends item. It returns false if a bounded queue is full.
	Offer(ctx context.Context, item any) (bool, error)

	// Poll removes and returns the head item, or nil if the queue is empty.
	Poll(ctx context.Context) (any, error)

	// Take removes and returns the head item, waiting until one is
	// available or ctx ends.
	Take(ctx context.Context) (any, error)

	// Size returns the number of items currently in the queue.
	Size(ctx context.Context) (int64, error)

	// Capacity returns the configured bound, 0 for unbounded queues.
	Capacity() int

	// OnHeaderChanged applies a header update observed on the change stream.
	OnHeaderChanged(h header.QueueHeader)

	// OnRemoved marks the queue as removed. With cancel set, blocked Take
	// calls are woken immediately; otherwise they notice on their next poll.
	OnRemoved(cancel bool)

	// OnKernalStop fails every pending and future operation with
	// datastruct.ErrStopping.
	OnKernalStop()

	// OnClientDisconnected fails the Take calls waiting right now with
	// datastruct.ErrClientDisconnected.
	OnClientDisconnected()
}

// Options tune a delegate.
type Options struct {
	// PollInterval bounds how long a blocked Take waits before re-reading
	// the header when no change notification arrived.
	PollInterval time.Duration

	// Retry is applied to item reads and writes.
	Retry cache.RetryPolicy

	Logger *slog.Logger
}

func (o Options) normalize() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Retry.Logger == nil {
		o.Retry.Logger = o.Logger
	}
	return o
}
