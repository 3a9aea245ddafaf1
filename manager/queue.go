package manager

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/datastruct"
	"github.com/xraph/datastruct/cache"
	"github.com/xraph/datastruct/header"
	"github.com/xraph/datastruct/queue"
)

// Queue returns the handle of the named queue. With create set, the queue
// is created if absent; an existing queue with a different capacity or
// collocation fails with datastruct.ErrConfigurationConflict. Without
// create, a missing queue yields (nil, nil).
func (m *Manager) Queue(ctx context.Context, name string, capacity int, collocated, create bool) (*queue.Proxy, error) {
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

	h, found, err := m.queueHeader(ctx, name, capacity, collocated, create)
	if err != nil || !found {
		return nil, err
	}

	if err := m.subscribe(ctx); err != nil {
		return nil, err
	}
	return m.queueHandle(name, h)
}

func (m *Manager) queueHeader(ctx context.Context, name string, capacity int, collocated, create bool) (header.QueueHeader, bool, error) {
	key := header.QueueHeaderKey(name)

	if !create {
		v, err := m.get(ctx, key)
		if err != nil || v == nil {
			return header.QueueHeader{}, false, err
		}
		h, ok := header.AsQueueHeader(v)
		if !ok {
			return header.QueueHeader{}, false, fmt.Errorf("datastruct/manager: queue %q: unexpected header type %T", name, v)
		}
		return h, true, nil
	}

	cand := header.NewQueueHeader(capacity, collocated)
	prev, err := m.getAndPutIfAbsent(ctx, key, cand)
	if err != nil {
		return header.QueueHeader{}, false, err
	}
	if prev == nil {
		m.logger.Debug("queue created",
			slog.String("queue", name),
			slog.String("id", cand.ID.String()),
			slog.Int("capacity", cand.Capacity),
		)
		m.extensions.EmitHeaderCreated(ctx, header.KindQueue, name, cand.ID)
		return cand, true, nil
	}

	h, ok := header.AsQueueHeader(prev)
	if !ok {
		return header.QueueHeader{}, false, fmt.Errorf("datastruct/manager: queue %q: unexpected header type %T", name, prev)
	}
	if !h.Compatible(capacity, collocated) {
		err := fmt.Errorf("queue %q (capacity=%d, collocated=%v): %w",
			name, h.Capacity, h.Collocated, datastruct.ErrConfigurationConflict)
		m.extensions.EmitHeaderConflict(ctx, header.KindQueue, name, err)
		return header.QueueHeader{}, false, err
	}
	return h, true, nil
}

// queueHandle returns the registered handle for h, building one if needed.
// A concurrent builder that loses the registration race adopts the
// winner's handle.
func (m *Manager) queueHandle(name string, h header.QueueHeader) (*queue.Proxy, error) {
	if p, ok := m.queues.Resolve(h.ID); ok {
		return p, nil
	}

	opts := queue.Options{
		PollInterval: m.config.TakePollInterval,
		Retry:        m.retry,
		Logger:       m.logger,
	}
	var d queue.Delegate
	if m.cache.Atomicity() == cache.Transactional {
		tx, err := queue.NewTransactional(m.cache, name, h, opts)
		if err != nil {
			return nil, err
		}
		d = tx
	} else {
		d = queue.NewAtomic(m.cache, name, h, opts)
	}

	p, _ := m.queues.Register(h.ID, queue.NewProxy(d, &m.gate))
	return p, nil
}

// RemoveQueue removes the named queue's header and items. It reports
// whether the queue existed. Handles on every node observe the removal
// through the header listener.
func (m *Manager) RemoveQueue(ctx context.Context, name string) (bool, error) {
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

	h, found, err := m.queueHeader(ctx, name, 0, false, false)
	if err != nil || !found {
		return false, err
	}
	key := header.QueueHeaderKey(name)
	removed, err := m.remove(ctx, key)
	if err != nil || !removed {
		return false, err
	}

	if p, ok := m.queues.Remove(h.ID); ok {
		p.OnRemoved(true)
		m.extensions.EmitStructureRemoved(ctx, header.KindQueue, name, h.ID)
	}
	if err := m.purgeQueueItems(ctx, h); err != nil {
		return true, err
	}

	m.logger.Info("queue removed",
		slog.String("queue", name),
		slog.String("id", h.ID.String()),
	)
	return true, nil
}

// purgeQueueItems removes the slots between head and tail, then any slots
// past tail written by producers that claimed them before the removal.
func (m *Manager) purgeQueueItems(ctx context.Context, h header.QueueHeader) error {
	batch := make([]string, 0, m.config.PurgeBatchSize)
	for idx := h.Head; idx < h.Tail; idx++ {
		batch = append(batch, header.QueueItemKey(h.ID, idx))
		if len(batch) == m.config.PurgeBatchSize || idx == h.Tail-1 {
			keys := batch
			if err := cache.Retry(ctx, m.retry, func(ctx context.Context) error {
				return m.cache.RemoveAll(ctx, keys)
			}); err != nil {
				return fmt.Errorf("datastruct/manager: purge queue items: %w", err)
			}
			batch = make([]string, 0, m.config.PurgeBatchSize)
		}
	}
	for idx := h.Tail; ; idx++ {
		removed, err := m.remove(ctx, header.QueueItemKey(h.ID, idx))
		if err != nil {
			return err
		}
		if !removed {
			return nil
		}
	}
}
