package memory

import (
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/xraph/datastruct/cache"
	"github.com/xraph/datastruct/cluster"
)

// space is the storage of one named cache, shared by every node.
type space struct {
	name      string
	atomicity cache.Atomicity
	logger    *slog.Logger

	mu     sync.Mutex
	data   map[string]any
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool

	lockMu sync.Mutex
	locks  map[string]chan struct{}
}

func newSpace(name string, a cache.Atomicity, logger *slog.Logger) *space {
	return &space{
		name:      name,
		atomicity: a,
		logger:    logger,
		data:      make(map[string]any),
		subs:      make(map[uint64]*subscriber),
		locks:     make(map[string]chan struct{}),
	}
}

// publishLocked queues evt on every matching subscriber. Called with mu
// held so that subscribers observe mutations in commit order.
func (s *space) publishLocked(evt cache.Event) {
	for _, sub := range s.subs {
		if sub.filter == nil || sub.filter(evt.Key) {
			sub.push(evt)
		}
	}
}

func (s *space) getAndPutIfAbsent(key string, value any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.data[key]; ok {
		return old
	}
	s.data[key] = value
	s.publishLocked(cache.Event{Key: key, Value: value, Type: cache.EventCreated})
	return nil
}

func (s *space) get(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key]
}

func (s *space) put(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.data[key]
	s.data[key] = value
	if ok {
		s.publishLocked(cache.Event{Key: key, OldValue: old, Value: value, Type: cache.EventUpdated})
	} else {
		s.publishLocked(cache.Event{Key: key, Value: value, Type: cache.EventCreated})
	}
}

func (s *space) replace(key string, expect, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.data[key]
	if !ok || !reflect.DeepEqual(cur, expect) {
		return false
	}
	s.data[key] = value
	s.publishLocked(cache.Event{Key: key, OldValue: cur, Value: value, Type: cache.EventUpdated})
	return true
}

func (s *space) remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(key)
}

func (s *space) removeLocked(key string) bool {
	old, ok := s.data[key]
	if !ok {
		return false
	}
	delete(s.data, key)
	s.publishLocked(cache.Event{Key: key, OldValue: old, Type: cache.EventRemoved})
	return true
}

func (s *space) removeAll(keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.removeLocked(k)
	}
}

func (s *space) keys() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

func (s *space) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func (s *space) subscribe(owner cluster.NodeID, filter cache.Filter, listener cache.Listener) *subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sub := newSubscriber(s, s.nextID, owner, filter, listener)
	if s.closed {
		sub.stop()
		return sub
	}
	s.subs[sub.id] = sub
	return sub
}

func (s *space) unsubscribe(subID uint64) {
	s.mu.Lock()
	sub, ok := s.subs[subID]
	delete(s.subs, subID)
	s.mu.Unlock()
	if ok {
		sub.stop()
	}
}

// cancelOwner stops every subscription installed by the given node.
func (s *space) cancelOwner(owner cluster.NodeID) {
	s.mu.Lock()
	var gone []*subscriber
	for subID, sub := range s.subs {
		if sub.owner == owner {
			gone = append(gone, sub)
			delete(s.subs, subID)
		}
	}
	s.mu.Unlock()
	for _, sub := range gone {
		sub.stop()
	}
}

func (s *space) close() {
	s.mu.Lock()
	s.closed = true
	subs := s.subs
	s.subs = make(map[uint64]*subscriber)
	s.data = make(map[string]any)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.stop()
	}
}

func (s *space) lockCh(key string) chan struct{} {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}
