package memory

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/xraph/datastruct/cache"
	"github.com/xraph/datastruct/cluster"
)

// subscriber delivers events to one listener from its own goroutine.
// Events are queued without bound so publishers never block, and are
// handed to the listener in batches in commit order.
type subscriber struct {
	sp       *space
	id       uint64
	owner    cluster.NodeID
	filter   cache.Filter
	listener cache.Listener

	mu      sync.Mutex
	pending []cache.Event

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newSubscriber(sp *space, subID uint64, owner cluster.NodeID, filter cache.Filter, listener cache.Listener) *subscriber {
	s := &subscriber{
		sp:       sp,
		id:       subID,
		owner:    owner,
		filter:   filter,
		listener: listener,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscriber) push(evt cache.Event) {
	s.mu.Lock()
	s.pending = append(s.pending, evt)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		if len(batch) > 0 {
			s.deliver(batch)
		}
	}
}

func (s *subscriber) deliver(batch []cache.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.sp.logger.Error("memory grid: listener panicked",
				slog.String("cache", s.sp.name),
				slog.String("node", string(s.owner)),
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	s.listener(batch)
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// Cancel implements cache.Subscription.
func (s *subscriber) Cancel() {
	s.sp.unsubscribe(s.id)
	s.stop()
}
