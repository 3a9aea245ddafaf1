package queue

import (
	"context"

	"github.com/xraph/datastruct"
	"github.com/xraph/datastruct/guard"
	"github.com/xraph/datastruct/header"
	"github.com/xraph/datastruct/id"
)

// Proxy is the caller-facing queue handle. Every data operation runs
// inside the owning manager's structure-access gate.
type Proxy struct {
	d    Delegate
	gate *guard.BusyLock
}

// NewProxy wraps d. A nil gate disables gating.
func NewProxy(d Delegate, gate *guard.BusyLock) *Proxy {
	return &Proxy{d: d, gate: gate}
}

// Delegate returns the wrapped delegate.
func (p *Proxy) Delegate() Delegate { return p.d }

func (p *Proxy) ID() id.ID { return p.d.ID() }

func (p *Proxy) Name() string { return p.d.Name() }

func (p *Proxy) Header() header.QueueHeader { return p.d.Header() }

func (p *Proxy) Capacity() int { return p.d.Capacity() }

func (p *Proxy) enter() error {
	if p.gate != nil && !p.gate.Enter() {
		return datastruct.ErrStopping
	}
	return nil
}

func (p *Proxy) leave() {
	if p.gate != nil {
		p.gate.Leave()
	}
}

// Offer appends item; it returns false if the queue is bounded and full.
func (p *Proxy) Offer(ctx context.Context, item any) (bool, error) {
	if err := p.enter(); err != nil {
		return false, err
	}
	defer p.leave()
	return p.d.Offer(ctx, item)
}

// Poll removes the head item, returning nil when the queue is empty.
func (p *Proxy) Poll(ctx context.Context) (any, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	return p.d.Poll(ctx)
}

// Take removes the head item, waiting for one to arrive.
func (p *Proxy) Take(ctx context.Context) (any, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	return p.d.Take(ctx)
}

// Size returns the number of queued items.
func (p *Proxy) Size(ctx context.Context) (int64, error) {
	if err := p.enter(); err != nil {
		return 0, err
	}
	defer p.leave()
	return p.d.Size(ctx)
}

func (p *Proxy) OnHeaderChanged(h header.QueueHeader) { p.d.OnHeaderChanged(h) }

func (p *Proxy) OnRemoved(cancel bool) { p.d.OnRemoved(cancel) }

func (p *Proxy) OnKernalStop() { p.d.OnKernalStop() }

func (p *Proxy) OnClientDisconnected() { p.d.OnClientDisconnected() }
