package queue

import (
	"context"
	"fmt"

	"github.com/xraph/datastruct/cache"
	"github.com/xraph/datastruct/header"
)

var _ Delegate = (*Atomic)(nil)

// Atomic is the queue delegate for atomic caches. Slots are claimed by
// compare-and-set on the header.
type Atomic struct {
	*base
}

// NewAtomic returns a delegate bound to h.
func NewAtomic(c cache.Cache, name string, h header.QueueHeader, opts Options) *Atomic {
	return &Atomic{base: newBase(c, name, h, opts)}
}

// advance applies step to the current header with compare-and-set until
// it wins. step returns false to stop without writing.
func (q *Atomic) advance(ctx context.Context, step func(*header.QueueHeader) bool) (header.QueueHeader, bool, error) {
	for {
		if err := q.check(); err != nil {
			return header.QueueHeader{}, false, err
		}
		cur, err := q.readHeader(ctx)
		if err != nil {
			return header.QueueHeader{}, false, err
		}
		next := cur
		if !step(&next) {
			return cur, false, nil
		}
		ok, err := q.cache.Replace(ctx, q.key, cur, next)
		if err != nil {
			if cache.IsTransient(err) {
				continue
			}
			return header.QueueHeader{}, false, fmt.Errorf("datastruct/queue: update header %q: %w", q.name, err)
		}
		if ok {
			q.hdr.Store(&next)
			return cur, true, nil
		}
		if err := ctx.Err(); err != nil {
			return header.QueueHeader{}, false, err
		}
	}
}

// Offer implements Delegate.
func (q *Atomic) Offer(ctx context.Context, item any) (bool, error) {
	if item == nil {
		return false, fmt.Errorf("datastruct/queue: nil item")
	}
	prev, ok, err := q.advance(ctx, func(h *header.QueueHeader) bool {
		if h.Full() {
			return false
		}
		h.Tail++
		return true
	})
	if err != nil || !ok {
		return false, err
	}
	if err := q.writeItem(ctx, prev.Tail, item); err != nil {
		return false, err
	}
	return true, nil
}

// Poll implements Delegate.
func (q *Atomic) Poll(ctx context.Context) (any, error) {
	prev, ok, err := q.advance(ctx, func(h *header.QueueHeader) bool {
		if h.Empty() {
			return false
		}
		h.Head++
		return true
	})
	if err != nil || !ok {
		return nil, err
	}
	return q.takeItem(ctx, prev.Head)
}

// Take implements Delegate.
func (q *Atomic) Take(ctx context.Context) (any, error) {
	return q.take(ctx, q.Poll)
}
