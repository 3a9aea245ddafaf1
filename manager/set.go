package manager

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/datastruct"
	"github.com/xraph/datastruct/cache"
	"github.com/xraph/datastruct/header"
	"github.com/xraph/datastruct/id"
	"github.com/xraph/datastruct/set"
)

// Set returns the handle of the named set. With create set, the set is
// created if absent; an existing set with a different collocation or
// separation fails with datastruct.ErrConfigurationConflict. Without
// create, a missing set yields (nil, nil).
func (m *Manager) Set(ctx context.Context, name string, collocated, create, separated bool) (*set.Set, error) {
	if name == "" {
		return nil, datastruct.ErrInvalidName
	}
	if err := m.init.Wait(ctx); err != nil {
		return nil, err
	}
	if !m.gate.Enter() {
		return nil, datastruct.ErrStopping
	}
	defer m.gate.Leave()

	h, found, err := m.setHeader(ctx, name, collocated, create, separated)
	if err != nil || !found {
		return nil, err
	}
	return m.setHandle(ctx, name, h)
}

func (m *Manager) setHeader(ctx context.Context, name string, collocated, create, separated bool) (header.SetHeader, bool, error) {
	key := header.SetHeaderKey(name)

	if !create {
		v, err := m.get(ctx, key)
		if err != nil || v == nil {
			return header.SetHeader{}, false, err
		}
		h, ok := header.AsSetHeader(v)
		if !ok {
			return header.SetHeader{}, false, fmt.Errorf("datastruct/manager: set %q: unexpected header type %T", name, v)
		}
		return h, true, nil
	}

	if separated && m.provider == nil {
		return header.SetHeader{}, false, fmt.Errorf("set %q: %w", name, datastruct.ErrNoCacheProvider)
	}

	cand := header.NewSetHeader(collocated, separated)
	prev, err := m.getAndPutIfAbsent(ctx, key, cand)
	if err != nil {
		return header.SetHeader{}, false, err
	}
	if prev == nil {
		m.logger.Debug("set created",
			slog.String("set", name),
			slog.String("id", cand.ID.String()),
			slog.Bool("separated", separated),
		)
		m.extensions.EmitHeaderCreated(ctx, header.KindSet, name, cand.ID)
		return cand, true, nil
	}

	h, ok := header.AsSetHeader(prev)
	if !ok {
		return header.SetHeader{}, false, fmt.Errorf("datastruct/manager: set %q: unexpected header type %T", name, prev)
	}
	if !h.Compatible(collocated, separated) {
		err := fmt.Errorf("set %q (collocated=%v, separated=%v): %w",
			name, h.Collocated, h.Separated, datastruct.ErrConfigurationConflict)
		m.extensions.EmitHeaderConflict(ctx, header.KindSet, name, err)
		return header.SetHeader{}, false, err
	}
	return h, true, nil
}

func (m *Manager) setHandle(ctx context.Context, name string, h header.SetHeader) (*set.Set, error) {
	if s, ok := m.sets.Resolve(h.ID); ok {
		return s, nil
	}

	data := m.cache
	if h.Separated {
		if m.provider == nil {
			return nil, fmt.Errorf("set %q: %w", name, datastruct.ErrNoCacheProvider)
		}
		c, err := m.provider.Cache(ctx, h.CacheName())
		if err != nil {
			return nil, fmt.Errorf("datastruct/manager: open cache of set %q: %w", name, err)
		}
		data = c
	}

	s := set.New(m.cache, data, name, h, &m.gate, set.Options{
		Retry:     m.retry,
		Logger:    m.logger,
		OnRemoved: m.OnSetRemoved,
	})
	actual, _ := m.sets.Register(h.ID, s)

	// A removal may have blocked this id after the header was read. The
	// block records the id before it looks for a handle, so checking after
	// Register catches every interleaving.
	if _, blocked := m.blockedSets.Get(h.ID.String()); blocked {
		if err := actual.BlockOnRemove(ctx); err != nil {
			return nil, fmt.Errorf("datastruct/manager: block set %q: %w", name, err)
		}
		m.sets.RemoveIf(h.ID, actual)
		return nil, nil
	}
	return actual, nil
}

// OnSetRemoved evicts s if it is still the registered handle for its id.
// Set handles call it when they find their header gone.
func (m *Manager) OnSetRemoved(s *set.Set) {
	if m.sets.RemoveIf(s.ID(), s) {
		m.extensions.EmitStructureRemoved(context.Background(), header.KindSet, s.Name(), s.ID())
	}
}

// RemoveSet removes the named set's header and then its data across the
// cluster. It reports whether the set existed.
func (m *Manager) RemoveSet(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, datastruct.ErrInvalidName
	}
	if err := m.init.Wait(ctx); err != nil {
		return false, err
	}
	if !m.gate.Enter() {
		return false, datastruct.ErrStopping
	}
	defer m.gate.Leave()

	h, found, err := m.setHeader(ctx, name, false, false, false)
	if err != nil || !found {
		return false, err
	}
	removed, err := m.remove(ctx, header.SetHeaderKey(name))
	if err != nil || !removed {
		return false, err
	}

	if err := m.RemoveSetData(ctx, h.ID, h.Separated); err != nil {
		return true, err
	}
	if h.Separated {
		if err := m.destroySetCache(ctx, h); err != nil {
			return true, err
		}
	}

	m.logger.Info("set removed",
		slog.String("set", name),
		slog.String("id", h.ID.String()),
	)
	return true, nil
}

func (m *Manager) destroySetCache(ctx context.Context, h header.SetHeader) error {
	if m.provider == nil {
		return fmt.Errorf("set %s: %w", h.ID, datastruct.ErrNoCacheProvider)
	}
	if err := m.provider.Destroy(ctx, h.CacheName()); err != nil {
		return fmt.Errorf("datastruct/manager: destroy cache %q: %w", h.CacheName(), err)
	}
	return nil
}

// blockSetLocal blocks the local handle of setID and evicts it once its
// in-flight operations have drained. The handle stays registered if ctx
// ends first, so a later round can finish the job.
func (m *Manager) blockSetLocal(ctx context.Context, setID id.ID) error {
	m.blockedSets.SetDefault(setID.String(), struct{}{})

	s, ok := m.sets.Resolve(setID)
	if !ok {
		return nil
	}
	if err := s.BlockOnRemove(ctx); err != nil {
		return fmt.Errorf("datastruct/manager: block set %q: %w", s.Name(), err)
	}
	if m.sets.RemoveIf(setID, s) {
		m.extensions.EmitStructureRemoved(ctx, header.KindSet, s.Name(), setID)
	}
	return nil
}

// purgeSetLocal removes this node's primary share of setID's items.
func (m *Manager) purgeSetLocal(ctx context.Context, setID id.ID) error {
	n, err := set.Purge(ctx, m.cache, setID, set.PurgeOptions{
		BatchSize: m.config.PurgeBatchSize,
		Limiter:   m.limiter,
		Retry:     m.retry,
		Logger:    m.logger,
	})
	if n > 0 {
		m.extensions.EmitSetDataPurged(ctx, setID, n)
	}
	return err
}

// cache helpers with the manager's retry policy.

func (m *Manager) get(ctx context.Context, key string) (any, error) {
	var v any
	err := cache.Retry(ctx, m.retry, func(ctx context.Context) error {
		var err error
		v, err = m.cache.Get(ctx, key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("datastruct/manager: get %q: %w", key, err)
	}
	return v, nil
}

func (m *Manager) getAndPutIfAbsent(ctx context.Context, key string, value any) (any, error) {
	var prev any
	err := cache.Retry(ctx, m.retry, func(ctx context.Context) error {
		var err error
		prev, err = m.cache.GetAndPutIfAbsent(ctx, key, value)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("datastruct/manager: put %q: %w", key, err)
	}
	return prev, nil
}

func (m *Manager) remove(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := cache.Retry(ctx, m.retry, func(ctx context.Context) error {
		var err error
		ok, err = m.cache.Remove(ctx, key)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("datastruct/manager: remove %q: %w", key, err)
	}
	return ok, nil
}
