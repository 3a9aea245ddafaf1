package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/datastruct/cache"
	"github.com/xraph/datastruct/store"
)

// Compile-time interface checks.
var _ store.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithPrefix sets the prefix of every key the store writes.
func WithPrefix(p string) Option {
	return func(s *Store) { s.prefix = p }
}

// WithAtomicity sets the write mode of the named cache. Caches default to
// cache.Atomic; transactional caches lock entries with SET NX PX.
func WithAtomicity(cacheName string, a cache.Atomicity) Option {
	return func(s *Store) { s.atomicity[cacheName] = a }
}

// WithLockTTL sets how long an entry lock is held before it expires.
func WithLockTTL(d time.Duration) Option {
	return func(s *Store) { s.lockTTL = d }
}

// WithHeartbeat sets the heartbeat interval of joined nodes and the TTL
// after which a silent node is reaped.
func WithHeartbeat(interval, ttl time.Duration) Option {
	return func(s *Store) {
		s.heartbeat = interval
		s.heartbeatTTL = ttl
	}
}

// WithCallPoll sets how long a broadcast waits for a reply before
// checking that the target is still alive.
func WithCallPoll(d time.Duration) Option {
	return func(s *Store) { s.callPoll = d }
}

// Store provides caches and cluster membership backed by Redis.
type Store struct {
	client goredis.UniversalClient
	logger *slog.Logger
	prefix string

	atomicity    map[string]cache.Atomicity
	lockTTL      time.Duration
	heartbeat    time.Duration
	heartbeatTTL time.Duration
	callPoll     time.Duration

	mu   sync.RWMutex
	node *Node
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:       client,
		logger:       slog.Default(),
		prefix:       "datastruct:",
		atomicity:    make(map[string]cache.Atomicity),
		lockTTL:      10 * time.Second,
		heartbeat:    time.Second,
		heartbeatTTL: 5 * time.Second,
		callPoll:     time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.UniversalClient { return s.client }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close leaves the cluster if this store joined it. The Redis client is
// not closed.
func (s *Store) Close(ctx context.Context) error {
	s.mu.RLock()
	n := s.node
	s.mu.RUnlock()
	if n == nil {
		return nil
	}
	return n.Leave(ctx)
}

// Cache implements cache.Provider. Caches are namespaces of the store and
// need no creation step.
func (s *Store) Cache(ctx context.Context, name string) (cache.Cache, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := &Cache{store: s, name: name, atomicity: cache.Atomic}
	if a, ok := s.atomicity[name]; ok {
		c.atomicity = a
	}
	if c.atomicity == cache.Transactional {
		return &TxCache{Cache: c}, nil
	}
	return c, nil
}

// Destroy implements cache.Provider. It deletes every entry of the named
// cache without publishing change events.
func (s *Store) Destroy(ctx context.Context, name string) error {
	idx := s.indexKey(name)
	var cursor uint64
	for {
		keys, next, err := s.client.SScan(ctx, idx, cursor, "", 500).Result()
		if err != nil {
			return fmt.Errorf("datastruct/redis: destroy %q scan: %w", name, err)
		}
		if len(keys) > 0 {
			entries := make([]string, len(keys))
			for i, k := range keys {
				entries[i] = s.entryKey(name, k)
			}
			pipe := s.client.TxPipeline()
			pipe.Del(ctx, entries...)
			pipe.SRem(ctx, idx, toArgs(keys)...)
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("datastruct/redis: destroy %q: %w", name, err)
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	if err := s.client.Del(ctx, idx).Err(); err != nil {
		return fmt.Errorf("datastruct/redis: destroy %q index: %w", name, err)
	}
	s.logger.Debug("redis cache destroyed", slog.String("cache", name))
	return nil
}

func (s *Store) localNode() *Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.node
}

func toArgs(ss []string) []any {
	out := make([]any, len(ss))
	for i, v := range ss {
		out[i] = v
	}
	return out
}
