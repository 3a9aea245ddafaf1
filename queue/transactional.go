package queue

import (
	"context"
	"fmt"

	"github.com/xraph/datastruct"
	"github.com/xraph/datastruct/cache"
	"github.com/xraph/datastruct/header"
)

var _ Delegate = (*Transactional)(nil)

// Transactional is the queue delegate for transactional caches. Each
// operation holds the header lock while it moves the counters and the
// item.
type Transactional struct {
	*base
	locker cache.Locker
}

// NewTransactional returns a delegate bound to h. The cache must implement
// cache.Locker.
func NewTransactional(c cache.Cache, name string, h header.QueueHeader, opts Options) (*Transactional, error) {
	l, ok := c.(cache.Locker)
	if !ok || c.Atomicity() != cache.Transactional {
		return nil, fmt.Errorf("queue %q on cache %q: %w", name, c.Name(), datastruct.ErrNotTransactional)
	}
	return &Transactional{base: newBase(c, name, h, opts), locker: l}, nil
}

func (q *Transactional) locked(ctx context.Context, fn func(cur header.QueueHeader) error) error {
	if err := q.check(); err != nil {
		return err
	}
	unlock, err := q.locker.Lock(ctx, q.key)
	if err != nil {
		return fmt.Errorf("datastruct/queue: lock %q: %w", q.name, err)
	}
	defer unlock()

	cur, err := q.readHeader(ctx)
	if err != nil {
		return err
	}
	return fn(cur)
}

func (q *Transactional) putHeader(ctx context.Context, h header.QueueHeader) error {
	if err := q.cache.Put(ctx, q.key, h); err != nil {
		return fmt.Errorf("datastruct/queue: update header %q: %w", q.name, err)
	}
	q.hdr.Store(&h)
	return nil
}

// Offer implements Delegate.
func (q *Transactional) Offer(ctx context.Context, item any) (bool, error) {
	if item == nil {
		return false, fmt.Errorf("datastruct/queue: nil item")
	}
	added := false
	err := q.locked(ctx, func(cur header.QueueHeader) error {
		if cur.Full() {
			return nil
		}
		if err := q.writeItem(ctx, cur.Tail, item); err != nil {
			return err
		}
		next := cur
		next.Tail++
		if err := q.putHeader(ctx, next); err != nil {
			return err
		}
		added = true
		return nil
	})
	return added, err
}

// Poll implements Delegate.
func (q *Transactional) Poll(ctx context.Context) (any, error) {
	var out any
	err := q.locked(ctx, func(cur header.QueueHeader) error {
		if cur.Empty() {
			return nil
		}
		next := cur
		next.Head++
		if err := q.putHeader(ctx, next); err != nil {
			return err
		}
		v, err := q.takeItem(ctx, cur.Head)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Take implements Delegate.
func (q *Transactional) Take(ctx context.Context) (any, error) {
	return q.take(ctx, q.Poll)
}
