package manager

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/datastruct/cache"
	"github.com/xraph/datastruct/header"
)

// subscribe installs the queue header listener once per manager.
func (m *Manager) subscribe(ctx context.Context) error {
	if !m.subscribed.CompareAndSwap(false, true) {
		return nil
	}

	sub, err := m.cache.Subscribe(ctx, header.IsQueueHeaderKey, m.onHeaderEvents)
	if err != nil {
		m.subscribed.Store(false)
		return fmt.Errorf("datastruct/manager: subscribe to header changes: %w", err)
	}

	m.subMu.Lock()
	m.sub = sub
	m.subMu.Unlock()

	m.logger.Debug("header listener installed", slog.String("cache", m.cache.Name()))
	return nil
}

// unsubscribe cancels the header listener; the next queue access
// installs a new one.
func (m *Manager) unsubscribe() {
	m.subMu.Lock()
	sub := m.sub
	m.sub = nil
	m.subMu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	m.subscribed.Store(false)
}

// onHeaderEvents applies queue header changes to local handles. Handles
// are matched by header id, never by name.
func (m *Manager) onHeaderEvents(evts []cache.Event) {
	if !m.busy.Enter() {
		return
	}
	defer m.busy.Leave()

	for _, e := range evts {
		if e.Type == cache.EventRemoved {
			old, ok := header.AsQueueHeader(e.OldValue)
			if !ok {
				continue
			}
			p, ok := m.queues.Resolve(old.ID)
			if !ok {
				continue
			}
			p.OnRemoved(false)
			if m.queues.RemoveIf(old.ID, p) {
				m.extensions.EmitStructureRemoved(context.Background(), header.KindQueue, p.Name(), old.ID)
			}
			continue
		}

		h, ok := header.AsQueueHeader(e.Value)
		if !ok {
			continue
		}
		if p, ok := m.queues.Resolve(h.ID); ok {
			p.OnHeaderChanged(h)
		}
	}
}
