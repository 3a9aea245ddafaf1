package guard

import (
	"context"
	"sync"
	"sync/atomic"
)

// blockedBit marks a BusyLock as blocked; the low bits count holders.
const blockedBit = int64(1) << 62

// BusyLock admits any number of concurrent holders until it is blocked.
// Once blocked, Enter fails and Block waits for current holders to leave.
// A blocked lock never reopens. The zero value is ready to use.
type BusyLock struct {
	state atomic.Int64

	init    sync.Once
	drain   sync.Once
	drained chan struct{}
}

func (l *BusyLock) ch() chan struct{} {
	l.init.Do(func() { l.drained = make(chan struct{}) })
	return l.drained
}

func (l *BusyLock) signal() {
	ch := l.ch()
	l.drain.Do(func() { close(ch) })
}

// Enter registers a holder. It returns false if the lock is blocked.
func (l *BusyLock) Enter() bool {
	for {
		s := l.state.Load()
		if s&blockedBit != 0 {
			return false
		}
		if l.state.CompareAndSwap(s, s+1) {
			return true
		}
	}
}

// Leave releases a holder acquired by a successful Enter.
func (l *BusyLock) Leave() {
	if l.state.Add(-1) == blockedBit {
		l.signal()
	}
}

// Blocked reports whether Block has been called.
func (l *BusyLock) Blocked() bool {
	return l.state.Load()&blockedBit != 0
}

// Close prevents new holders without waiting for the current ones.
// Block can be called afterwards to wait for them.
func (l *BusyLock) Close() {
	for {
		s := l.state.Load()
		if s&blockedBit != 0 {
			return
		}
		if l.state.CompareAndSwap(s, s|blockedBit) {
			if s == 0 {
				l.signal()
			}
			return
		}
	}
}

// Block prevents new holders and waits until the current ones leave or
// ctx ends. The lock stays blocked even if ctx ends first, and Block may
// be called again to resume waiting.
func (l *BusyLock) Block(ctx context.Context) error {
	ch := l.ch()
	l.Close()

	select {
	case <-ch:
		return nil
	default:
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
