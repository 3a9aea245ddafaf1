package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/datastruct"
	"github.com/xraph/datastruct/backoff"
	"github.com/xraph/datastruct/cache"
	"github.com/xraph/datastruct/header"
	"github.com/xraph/datastruct/id"
)

const (
	stateLive int32 = iota
	stateRemoved
	stateStopped
)

// slotWait paces a consumer that claimed an index whose item has not been
// written yet.
var slotWait = backoff.NewExponential(time.Millisecond, 50*time.Millisecond)

// base holds the state shared by both delegate variants.
type base struct {
	id    id.ID
	name  string
	key   string
	cache cache.Cache
	opts  Options

	hdr   atomic.Pointer[header.QueueHeader]
	state atomic.Int32
	// disconnects counts client disconnects; a Take that sees it move
	// fails with ErrClientDisconnected.
	disconnects atomic.Uint64

	mu      sync.Mutex
	changed chan struct{}
}

func newBase(c cache.Cache, name string, h header.QueueHeader, opts Options) *base {
	b := &base{
		id:      h.ID,
		name:    name,
		key:     header.QueueHeaderKey(name),
		cache:   c,
		opts:    opts.normalize(),
		changed: make(chan struct{}),
	}
	b.hdr.Store(&h)
	return b
}

func (b *base) ID() id.ID { return b.id }

func (b *base) Name() string { return b.name }

func (b *base) Header() header.QueueHeader { return *b.hdr.Load() }

func (b *base) Capacity() int { return b.Header().Capacity }

// notify wakes every waiter.
func (b *base) notify() {
	b.mu.Lock()
	close(b.changed)
	b.changed = make(chan struct{})
	b.mu.Unlock()
}

func (b *base) changedCh() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.changed
}

func (b *base) check() error {
	switch b.state.Load() {
	case stateRemoved:
		return fmt.Errorf("queue %q: %w", b.name, datastruct.ErrStructureRemoved)
	case stateStopped:
		return datastruct.ErrStopping
	default:
		return nil
	}
}

func (b *base) OnHeaderChanged(h header.QueueHeader) {
	if h.ID != b.id {
		return
	}
	b.hdr.Store(&h)
	b.notify()
}

func (b *base) OnRemoved(cancel bool) {
	if !b.state.CompareAndSwap(stateLive, stateRemoved) {
		return
	}
	b.opts.Logger.Debug("queue removed",
		slog.String("queue", b.name),
		slog.String("id", b.id.String()),
	)
	if cancel {
		b.notify()
	}
}

func (b *base) OnKernalStop() {
	b.state.Store(stateStopped)
	b.notify()
}

func (b *base) OnClientDisconnected() {
	b.disconnects.Add(1)
	b.notify()
}

// readHeader fetches the current header. A missing header, or one that
// belongs to a re-created queue, marks this handle removed.
func (b *base) readHeader(ctx context.Context) (header.QueueHeader, error) {
	v, err := b.cache.Get(ctx, b.key)
	if err != nil {
		return header.QueueHeader{}, fmt.Errorf("datastruct/queue: read header %q: %w", b.name, err)
	}
	h, ok := header.AsQueueHeader(v)
	if !ok || h.ID != b.id {
		b.OnRemoved(true)
		return header.QueueHeader{}, b.check()
	}
	b.hdr.Store(&h)
	return h, nil
}

func (b *base) writeItem(ctx context.Context, idx int64, item any) error {
	key := header.QueueItemKey(b.id, idx)
	return cache.Retry(ctx, b.opts.Retry, func(ctx context.Context) error {
		return b.cache.Put(ctx, key, item)
	})
}

// takeItem removes the item at a claimed index, waiting for the producer
// that claimed the same index to finish writing it.
func (b *base) takeItem(ctx context.Context, idx int64) (any, error) {
	key := header.QueueItemKey(b.id, idx)
	for attempt := 1; ; attempt++ {
		var v any
		err := cache.Retry(ctx, b.opts.Retry, func(ctx context.Context) error {
			var err error
			v, err = b.cache.Get(ctx, key)
			return err
		})
		if err != nil {
			return nil, err
		}
		if v != nil {
			if _, err := b.cache.Remove(ctx, key); err != nil {
				return nil, fmt.Errorf("datastruct/queue: remove item %d: %w", idx, err)
			}
			return v, nil
		}
		if err := b.check(); err != nil {
			return nil, err
		}
		if !backoff.Sleep(ctx.Done(), slotWait.Delay(attempt)) {
			return nil, ctx.Err()
		}
	}
}

func (b *base) Size(ctx context.Context) (int64, error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	h, err := b.readHeader(ctx)
	if err != nil {
		return 0, err
	}
	return h.Size(), nil
}

// take loops poll until it yields an item, waking on header changes and
// every PollInterval.
func (b *base) take(ctx context.Context, poll func(context.Context) (any, error)) (any, error) {
	epoch := b.disconnects.Load()
	timer := time.NewTimer(b.opts.PollInterval)
	defer timer.Stop()

	for {
		wake := b.changedCh()
		v, err := poll(ctx)
		if err != nil || v != nil {
			return v, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		case <-timer.C:
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(b.opts.PollInterval)

		if b.disconnects.Load() != epoch {
			return nil, datastruct.ErrClientDisconnected
		}
	}
}
