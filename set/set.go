// Package set implements the node-local handles of distributed sets and
// the purge of a removed set's items.
//
// Each member is stored as its own cache entry under a key scoped by the
// set id (header.SetItemKey). Separated sets keep their entries in a
// dedicated cache; collocated and shared sets use the manager's cache.
package set

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/xraph/datastruct"
	"github.com/xraph/datastruct/cache"
	"github.com/xraph/datastruct/guard"
	"github.com/xraph/datastruct/header"
	"github.com/xraph/datastruct/id"
)

// Options tune a set handle.
type Options struct {
	// Retry is applied to member reads and writes.
	Retry  cache.RetryPolicy
	Logger *slog.Logger

	// OnRemoved is called once when the handle finds that its header is
	// gone. The manager uses it to evict the handle.
	OnRemoved func(*Set)
}

// Set is the caller-facing handle of a distributed set.
type Set struct {
	name  string
	hdr   header.SetHeader
	meta  cache.Cache // holds the header
	data  cache.Cache // holds the members
	gate  *guard.BusyLock
	opts  Options
	busy  guard.BusyLock
	check atomic.Bool

	removed atomic.Bool
}

// New returns a handle for the set described by h. meta is the cache that
// stores the header, data the one that stores members (they differ for
// separated sets). gate is the manager's structure-access gate; nil
// disables gating.
func New(meta, data cache.Cache, name string, h header.SetHeader, gate *guard.BusyLock, opts Options) *Set {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Retry.Logger == nil {
		opts.Retry.Logger = opts.Logger
	}
	return &Set{name: name, hdr: h, meta: meta, data: data, gate: gate, opts: opts}
}

func (s *Set) ID() id.ID { return s.hdr.ID }

func (s *Set) Name() string { return s.name }

func (s *Set) Header() header.SetHeader { return s.hdr }

// Collocated reports whether all members live on one node.
func (s *Set) Collocated() bool { return s.hdr.Collocated }

// Separated reports whether members live in a dedicated cache.
func (s *Set) Separated() bool { return s.hdr.Separated }

// Removed reports whether the handle has been blocked or found removed.
func (s *Set) Removed() bool { return s.removed.Load() }

func (s *Set) removedErr() error {
	return fmt.Errorf("set %q: %w", s.name, datastruct.ErrStructureRemoved)
}

// enter admits one data operation. The returned func must be called when
// the operation completes.
func (s *Set) enter(ctx context.Context) (func(), error) {
	if s.gate != nil && !s.gate.Enter() {
		return nil, datastruct.ErrStopping
	}
	if !s.busy.Enter() {
		if s.gate != nil {
			s.gate.Leave()
		}
		return nil, fmt.Errorf("set %q: %w (%w)", s.name, datastruct.ErrStructureRemoved, datastruct.ErrStructureBlocked)
	}
	leave := func() {
		s.busy.Leave()
		if s.gate != nil {
			s.gate.Leave()
		}
	}
	if s.removed.Load() {
		leave()
		return nil, s.removedErr()
	}
	if s.check.Load() {
		if err := s.revalidate(ctx); err != nil {
			leave()
			return nil, err
		}
	}
	return leave, nil
}

// revalidate re-reads the header after a reconnect.
func (s *Set) revalidate(ctx context.Context) error {
	v, err := s.meta.Get(ctx, header.SetHeaderKey(s.name))
	if err != nil {
		return fmt.Errorf("datastruct/set: read header %q: %w", s.name, err)
	}
	if h, ok := header.AsSetHeader(v); ok && h.ID == s.hdr.ID {
		s.check.Store(false)
		return nil
	}

	if s.removed.CompareAndSwap(false, true) {
		s.opts.Logger.Info("set removed while disconnected",
			slog.String("set", s.name),
			slog.String("id", s.hdr.ID.String()),
		)
		if s.opts.OnRemoved != nil {
			s.opts.OnRemoved(s)
		}
	}
	return s.removedErr()
}

func (s *Set) itemKey(member any) (string, error) {
	key, err := header.SetItemKey(s.hdr.ID, member)
	if err != nil {
		return "", fmt.Errorf("set %q: %w", s.name, err)
	}
	return key, nil
}

// Add inserts member and reports whether it was not already present.
func (s *Set) Add(ctx context.Context, member any) (bool, error) {
	key, err := s.itemKey(member)
	if err != nil {
		return false, err
	}
	leave, err := s.enter(ctx)
	if err != nil {
		return false, err
	}
	defer leave()

	var prev any
	err = cache.Retry(ctx, s.opts.Retry, func(ctx context.Context) error {
		var err error
		prev, err = s.data.GetAndPutIfAbsent(ctx, key, true)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("datastruct/set: add to %q: %w", s.name, err)
	}
	return prev == nil, nil
}

// Remove deletes member and reports whether it was present.
func (s *Set) Remove(ctx context.Context, member any) (bool, error) {
	key, err := s.itemKey(member)
	if err != nil {
		return false, err
	}
	leave, err := s.enter(ctx)
	if err != nil {
		return false, err
	}
	defer leave()

	var ok bool
	err = cache.Retry(ctx, s.opts.Retry, func(ctx context.Context) error {
		var err error
		ok, err = s.data.Remove(ctx, key)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("datastruct/set: remove from %q: %w", s.name, err)
	}
	return ok, nil
}

// Contains reports whether member is present.
func (s *Set) Contains(ctx context.Context, member any) (bool, error) {
	key, err := s.itemKey(member)
	if err != nil {
		return false, err
	}
	leave, err := s.enter(ctx)
	if err != nil {
		return false, err
	}
	defer leave()

	var v any
	err = cache.Retry(ctx, s.opts.Retry, func(ctx context.Context) error {
		var err error
		v, err = s.data.Get(ctx, key)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("datastruct/set: lookup in %q: %w", s.name, err)
	}
	return v != nil, nil
}

// BlockOnRemove refuses new operations and waits for in-flight ones to
// finish. It is idempotent.
func (s *Set) BlockOnRemove(ctx context.Context) error {
	s.removed.Store(true)
	return s.busy.Block(ctx)
}

// NeedCheckNotRemoved makes the next operation re-read the header and fail
// with datastruct.ErrStructureRemoved if the set no longer exists.
func (s *Set) NeedCheckNotRemoved() {
	s.check.Store(true)
}
