package memory

import (
	"context"
	"sync"

	"github.com/xraph/datastruct/cache"
)

// Compile-time interface checks.
var (
	_ cache.Cache  = (*view)(nil)
	_ cache.Cache  = (*txView)(nil)
	_ cache.Locker = (*txView)(nil)
)

// view is one node's handle on a shared cache.
type view struct {
	node *Node
	sp   *space
}

func (v *view) check(ctx context.Context, op, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return v.node.grid.checkCache(op, key)
}

func (v *view) Name() string { return v.sp.name }

func (v *view) Atomicity() cache.Atomicity { return v.sp.atomicity }

func (v *view) GetAndPutIfAbsent(ctx context.Context, key string, value any) (any, error) {
	if err := v.check(ctx, "getAndPutIfAbsent", key); err != nil {
		return nil, err
	}
	return v.sp.getAndPutIfAbsent(key, value), nil
}

func (v *view) Get(ctx context.Context, key string) (any, error) {
	if err := v.check(ctx, "get", key); err != nil {
		return nil, err
	}
	return v.sp.get(key), nil
}

func (v *view) Put(ctx context.Context, key string, value any) error {
	if err := v.check(ctx, "put", key); err != nil {
		return err
	}
	v.sp.put(key, value)
	return nil
}

func (v *view) Replace(ctx context.Context, key string, old, value any) (bool, error) {
	if err := v.check(ctx, "replace", key); err != nil {
		return false, err
	}
	return v.sp.replace(key, old, value), nil
}

func (v *view) Remove(ctx context.Context, key string) (bool, error) {
	if err := v.check(ctx, "remove", key); err != nil {
		return false, err
	}
	return v.sp.remove(key), nil
}

func (v *view) RemoveAll(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if err := v.check(ctx, "removeAll", k); err != nil {
			return err
		}
	}
	v.sp.removeAll(keys)
	return nil
}

func (v *view) Subscribe(ctx context.Context, filter cache.Filter, listener cache.Listener) (cache.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return v.sp.subscribe(v.node.info.ID, filter, listener), nil
}

// LocalKeys returns the keys the hash ring assigns to this node in the
// requested role. Observer nodes own nothing.
func (v *view) LocalKeys(ctx context.Context, mode cache.PeekMode) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v.node.info.Observer || v.node.Left() {
		return nil, nil
	}
	self := string(v.node.info.ID)

	var out []string
	for _, k := range v.sp.keys() {
		for _, owner := range v.node.grid.owners(k, mode) {
			if owner == self {
				out = append(out, k)
				break
			}
		}
	}
	return out, nil
}

// txView is a view on a transactional cache.
type txView struct {
	*view
}

// Lock implements cache.Locker.
func (v *txView) Lock(ctx context.Context, key string) (func(), error) {
	ch := v.sp.lockCh(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() { once.Do(func() { <-ch }) }, nil
}
