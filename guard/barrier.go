// Package guard holds the synchronization primitives that gate access to
// structures: a one-shot initialization barrier and a busy lock that lets
// a removal or shutdown wait for in-flight operations to drain.
package guard

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/xraph/datastruct"
)

// Barrier blocks callers until initialization has finished. It opens
// exactly once; later Open calls are ignored.
type Barrier struct {
	once sync.Once
	done chan struct{}
	ok   atomic.Bool
}

// NewBarrier returns a closed barrier.
func NewBarrier() *Barrier {
	return &Barrier{done: make(chan struct{})}
}

// Open releases all waiters. ok reports whether initialization succeeded.
func (b *Barrier) Open(ok bool) {
	b.once.Do(func() {
		b.ok.Store(ok)
		close(b.done)
	})
}

// Opened reports whether Open has been called.
func (b *Barrier) Opened() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the barrier opens or ctx ends. It returns
// datastruct.ErrUninitialized if initialization failed.
func (b *Barrier) Wait(ctx context.Context) error {
	select {
	case <-b.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if !b.ok.Load() {
		return datastruct.ErrUninitialized
	}
	return nil
}
