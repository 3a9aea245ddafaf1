package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/datastruct/backoff"
	"github.com/xraph/datastruct/cache"
	"github.com/xraph/datastruct/id"
)

// Compile-time interface checks.
var (
	_ cache.Cache  = (*Cache)(nil)
	_ cache.Cache  = (*TxCache)(nil)
	_ cache.Locker = (*TxCache)(nil)
)

// Cache is one named cache of a Store.
type Cache struct {
	store     *Store
	name      string
	atomicity cache.Atomicity
}

// Name implements cache.Cache.
func (c *Cache) Name() string { return c.name }

// Atomicity implements cache.Cache.
func (c *Cache) Atomicity() cache.Atomicity { return c.atomicity }

func (c *Cache) entry(key string) string { return c.store.entryKey(c.name, key) }

// wrap marks connection-level failures as transient so that callers retry.
func wrap(op string, err error) error {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("datastruct/redis: %s: %w (%w)", op, cache.ErrTransient, err)
	}
	return fmt.Errorf("datastruct/redis: %s: %w", op, err)
}

// GetAndPutIfAbsent implements cache.Cache.
func (c *Cache) GetAndPutIfAbsent(ctx context.Context, key string, value any) (any, error) {
	raw, err := encodeValue(value)
	if err != nil {
		return nil, err
	}
	s := c.store
	res, err := putIfAbsentScript.Run(ctx, s.client,
		[]string{c.entry(key), s.indexKey(c.name)},
		raw, key, s.channelKey(c.name),
	).Text()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("put if absent", err)
	}
	return decodeValue([]byte(res))
}

// Get implements cache.Cache.
func (c *Cache) Get(ctx context.Context, key string) (any, error) {
	raw, err := c.store.client.Get(ctx, c.entry(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get", err)
	}
	return decodeValue(raw)
}

// Put implements cache.Cache.
func (c *Cache) Put(ctx context.Context, key string, value any) error {
	raw, err := encodeValue(value)
	if err != nil {
		return err
	}
	s := c.store
	err = putScript.Run(ctx, s.client,
		[]string{c.entry(key), s.indexKey(c.name)},
		raw, key, s.channelKey(c.name),
	).Err()
	if err != nil {
		return wrap("put", err)
	}
	return nil
}

// Replace implements cache.Cache. Values are compared in encoded form.
func (c *Cache) Replace(ctx context.Context, key string, old, value any) (bool, error) {
	expected, err := encodeValue(old)
	if err != nil {
		return false, err
	}
	raw, err := encodeValue(value)
	if err != nil {
		return false, err
	}
	n, err := replaceScript.Run(ctx, c.store.client,
		[]string{c.entry(key)},
		expected, raw, key, c.store.channelKey(c.name),
	).Int()
	if err != nil {
		return false, wrap("replace", err)
	}
	return n == 1, nil
}

// Remove implements cache.Cache.
func (c *Cache) Remove(ctx context.Context, key string) (bool, error) {
	n, err := c.remove(ctx, []string{key})
	return n == 1, err
}

// RemoveAll implements cache.Cache.
func (c *Cache) RemoveAll(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := c.remove(ctx, keys)
	return err
}

func (c *Cache) remove(ctx context.Context, keys []string) (int, error) {
	s := c.store
	rkeys := make([]string, 0, len(keys)+1)
	args := make([]any, 0, len(keys)+1)
	rkeys = append(rkeys, s.indexKey(c.name))
	args = append(args, s.channelKey(c.name))
	for _, k := range keys {
		rkeys = append(rkeys, c.entry(k))
		args = append(args, k)
	}
	n, err := removeScript.Run(ctx, s.client, rkeys, args...).Int()
	if err != nil {
		return 0, wrap("remove", err)
	}
	return n, nil
}

// Subscribe implements cache.Cache.
func (c *Cache) Subscribe(ctx context.Context, filter cache.Filter, listener cache.Listener) (cache.Subscription, error) {
	sub, err := subscribe(ctx, c.store, c.name, filter, listener)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// LocalKeys implements cache.Cache. Ownership follows a consistent hash
// ring over the data nodes of the current topology; a store that has not
// joined a cluster owns every key.
func (c *Cache) LocalKeys(ctx context.Context, mode cache.PeekMode) ([]string, error) {
	s := c.store
	var owns func(key string) bool
	if n := s.localNode(); n != nil {
		ring, err := n.ring(ctx)
		if err != nil {
			return nil, err
		}
		owns = func(key string) bool { return ring.owns(key, string(n.info.ID), mode) }
	} else if mode == cache.PeekBackup {
		return nil, nil
	}

	var (
		out    []string
		cursor uint64
	)
	for {
		keys, next, err := s.client.SScan(ctx, s.indexKey(c.name), cursor, "", 500).Result()
		if err != nil {
			return nil, wrap("scan keys", err)
		}
		for _, k := range keys {
			if owns == nil || owns(k) {
				out = append(out, k)
			}
		}
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

// TxCache is a transactional cache: entries can be locked cluster-wide.
type TxCache struct {
	*Cache
}

var lockWait = backoff.NewExponentialWithJitter(2*time.Millisecond, 100*time.Millisecond)

// Lock implements cache.Locker with SET NX PX and a random token. It
// retries until the lock is acquired or ctx is done.
func (t *TxCache) Lock(ctx context.Context, key string) (func(), error) {
	s := t.store
	lk := s.lockKey(t.name, key)
	token := id.NewRequestID().String()

	for attempt := 1; ; attempt++ {
		ok, err := s.client.SetNX(ctx, lk, token, s.lockTTL).Result()
		if err != nil {
			return nil, wrap("lock", err)
		}
		if ok {
			break
		}
		if !backoff.Sleep(ctx.Done(), lockWait.Delay(attempt)) {
			return nil, ctx.Err()
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.lockTTL)
		defer cancel()
		if err := unlockScript.Run(ctx, s.client, []string{lk}, token).Err(); err != nil {
			s.logger.Warn("failed to release lock", "key", key, "error", err)
		}
	}, nil
}
