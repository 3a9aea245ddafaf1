package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/datastruct/cache"
)

// wireEvent is the change event published by the mutation scripts.
type wireEvent struct {
	_msgpack struct{} `msgpack:",as_array"` //nolint:unused // msgpack array layout

	Key  string
	Old  string
	New  string
	Type uint8
}

func (w wireEvent) decode() (cache.Event, error) {
	old, err := decodeValue([]byte(w.Old))
	if err != nil {
		return cache.Event{}, err
	}
	val, err := decodeValue([]byte(w.New))
	if err != nil {
		return cache.Event{}, err
	}
	return cache.Event{Key: w.Key, OldValue: old, Value: val, Type: cache.EventType(w.Type)}, nil
}

// pubsubChannelSize is the go-redis delivery buffer. The reader goroutine
// drains it into an unbounded pending list, so go-redis only drops messages
// if that goroutine itself stalls past the send timeout.
const pubsubChannelSize = 1024

// subscription delivers a cache channel's events to one listener.
// A reader goroutine moves messages off the pub/sub channel as they
// arrive; a delivery goroutine hands everything pending to the listener
// as one batch. A slow listener therefore never backs up the go-redis
// channel.
type subscription struct {
	ps       *goredis.PubSub
	filter   cache.Filter
	listener cache.Listener
	logger   *slog.Logger

	mu      sync.Mutex
	pending []cache.Event
	wake    chan struct{}

	once sync.Once
	done chan struct{}
}

func subscribe(ctx context.Context, s *Store, cacheName string, filter cache.Filter, listener cache.Listener) (*subscription, error) {
	ps := s.client.Subscribe(ctx, s.channelKey(cacheName))
	// Wait for the subscription confirmation so that no event committed
	// after Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("datastruct/redis: subscribe %q: %w", cacheName, err)
	}

	sub := &subscription{
		ps:       ps,
		filter:   filter,
		listener: listener,
		logger:   s.logger.With(slog.String("cache", cacheName)),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go sub.read(ps.Channel(goredis.WithChannelSize(pubsubChannelSize)))
	go sub.run()
	return sub, nil
}

// read queues every matching event and returns when the pubsub is closed.
func (sub *subscription) read(ch <-chan *goredis.Message) {
	defer close(sub.done)
	for msg := range ch {
		evt, ok := sub.decode(msg)
		if !ok {
			continue
		}
		sub.mu.Lock()
		sub.pending = append(sub.pending, evt)
		sub.mu.Unlock()

		select {
		case sub.wake <- struct{}{}:
		default:
		}
	}
}

func (sub *subscription) run() {
	for {
		select {
		case <-sub.done:
			return
		case <-sub.wake:
		}

		sub.mu.Lock()
		batch := sub.pending
		sub.pending = nil
		sub.mu.Unlock()

		if len(batch) > 0 {
			sub.deliver(batch)
		}
	}
}

func (sub *subscription) decode(msg *goredis.Message) (cache.Event, bool) {
	var w wireEvent
	if err := msgpack.Unmarshal([]byte(msg.Payload), &w); err != nil {
		sub.logger.Warn("dropping malformed change event", slog.String("error", err.Error()))
		return cache.Event{}, false
	}
	if sub.filter != nil && !sub.filter(w.Key) {
		return cache.Event{}, false
	}
	evt, err := w.decode()
	if err != nil {
		sub.logger.Warn("dropping undecodable change event",
			slog.String("key", w.Key),
			slog.String("error", err.Error()),
		)
		return cache.Event{}, false
	}
	return evt, true
}

func (sub *subscription) deliver(batch []cache.Event) {
	defer func() {
		if r := recover(); r != nil {
			sub.logger.Error("change listener panicked", slog.Any("panic", r))
		}
	}()
	sub.listener(batch)
}

// Cancel implements cache.Subscription.
func (sub *subscription) Cancel() {
	sub.once.Do(func() {
		if err := sub.ps.Close(); err != nil {
			sub.logger.Debug("close pubsub", slog.String("error", err.Error()))
		}
	})
}
