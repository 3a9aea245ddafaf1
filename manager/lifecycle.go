package manager

import (
	"context"
	"log/slog"

	"github.com/xraph/datastruct/id"
	"github.com/xraph/datastruct/queue"
	"github.com/xraph/datastruct/set"
)

// Start registers remote call handlers and opens the init barrier.
// Structure accessors block until Start has run.
func (m *Manager) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		m.init.Open(false)
		return err
	}
	if m.cluster != nil {
		m.registerHandlers()
	}
	m.init.Open(true)

	attrs := []any{slog.String("cache", m.cache.Name())}
	if m.cluster != nil {
		attrs = append(attrs, slog.String("node", string(m.cluster.LocalNode().ID)))
	}
	m.logger.Info("datastruct manager started", attrs...)
	return nil
}

// Fail opens the init barrier in the failed state; every pending and
// future accessor call returns datastruct.ErrUninitialized.
func (m *Manager) Fail() {
	m.init.Open(false)
}

// Stop refuses new structure access, waits for in-flight operations and
// listener callbacks, and releases every handle. If ctx ends before the
// in-flight work drains, Stop returns ctx's error with access still
// refused; calling Stop again resumes the teardown.
func (m *Manager) Stop(ctx context.Context) error {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()
	if m.stopped {
		return nil
	}

	// Listener callbacks become no-ops and accessors fail from here on.
	m.busy.Close()
	m.gate.Close()

	// Wake blocked takes before waiting for in-flight operations.
	m.queues.Range(func(_ id.ID, p *queue.Proxy) bool {
		p.OnKernalStop()
		return true
	})

	if err := m.busy.Block(ctx); err != nil {
		return err
	}
	if err := m.gate.Block(ctx); err != nil {
		return err
	}
	m.unsubscribe()

	m.queues.Range(func(qid id.ID, _ *queue.Proxy) bool {
		m.queues.Remove(qid)
		return true
	})
	m.sets.Range(func(sid id.ID, _ *set.Set) bool {
		m.sets.Remove(sid)
		return true
	})
	m.stopped = true

	m.extensions.EmitShutdown(ctx)
	m.logger.Info("datastruct manager stopped", slog.String("cache", m.cache.Name()))
	return nil
}

// OnDisconnected fails the blocking takes currently waiting on any queue
// with datastruct.ErrClientDisconnected.
func (m *Manager) OnDisconnected() {
	m.queues.Range(func(_ id.ID, p *queue.Proxy) bool {
		p.OnClientDisconnected()
		return true
	})
	m.logger.Warn("datastruct client disconnected", slog.String("cache", m.cache.Name()))
}

// OnReconnected reconciles handles after a reconnect. If the cluster was
// restarted every structure is gone: sets are blocked and queues marked
// removed, and all are evicted. A set is evicted only once its in-flight
// operations have drained, so a call that fails on ctx can be repeated.
// Otherwise sets re-check their header on next use.
func (m *Manager) OnReconnected(ctx context.Context, clusterRestarted bool) error {
	if !clusterRestarted {
		m.sets.Range(func(_ id.ID, s *set.Set) bool {
			s.NeedCheckNotRemoved()
			return true
		})
		m.logger.Info("datastruct client reconnected", slog.String("cache", m.cache.Name()))
		return nil
	}

	var firstErr error
	m.sets.Range(func(sid id.ID, s *set.Set) bool {
		if err := s.BlockOnRemove(ctx); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return true
		}
		m.sets.RemoveIf(sid, s)
		return true
	})
	m.queues.Range(func(qid id.ID, p *queue.Proxy) bool {
		p.OnRemoved(false)
		m.queues.RemoveIf(qid, p)
		return true
	})
	m.unsubscribe()

	if firstErr != nil {
		m.logger.Warn("datastruct cluster restart: sets still draining",
			slog.String("cache", m.cache.Name()),
			slog.String("error", firstErr.Error()),
		)
		return firstErr
	}
	m.logger.Warn("datastruct client reconnected after cluster restart, all handles dropped",
		slog.String("cache", m.cache.Name()),
	)
	return nil
}
