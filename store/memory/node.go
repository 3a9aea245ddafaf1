package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/xraph/datastruct/cache"
	"github.com/xraph/datastruct/cluster"
	"github.com/xraph/datastruct/store"
)

// Compile-time interface checks.
var (
	_ cluster.Cluster = (*Node)(nil)
	_ store.Store     = (*Node)(nil)
)

// Node is one member of a Grid. It is the node's view of the cluster and
// the provider of its caches.
type Node struct {
	grid *Grid
	info cluster.Node
	left atomic.Bool

	mu       sync.RWMutex
	handlers map[string]cluster.Handler
}

// LocalNode implements cluster.Cluster.
func (n *Node) LocalNode() cluster.Node { return n.info }

// Left reports whether the node has left the grid.
func (n *Node) Left() bool { return n.left.Load() }

// TopologyVersion implements cluster.Cluster.
func (n *Node) TopologyVersion(ctx context.Context) (cluster.Version, error) {
	if err := ctx.Err(); err != nil {
		return cluster.Version{}, err
	}
	return n.grid.Version(), nil
}

// AffinityReady implements cluster.Cluster. Partition assignment is
// computed synchronously, so it only checks that ver is known.
func (n *Node) AffinityReady(ctx context.Context, ver cluster.Version) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.grid.mu.RLock()
	_, ok := n.grid.history[ver]
	n.grid.mu.RUnlock()
	if !ok {
		return fmt.Errorf("memory: unknown topology version %s", ver)
	}
	return nil
}

// Nodes implements cluster.Cluster.
func (n *Node) Nodes(ctx context.Context, ver cluster.Version) ([]cluster.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.grid.mu.RLock()
	snap, ok := n.grid.history[ver]
	n.grid.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("memory: unknown topology version %s", ver)
	}
	return cluster.DataNodes(snap), nil
}

// AffinityNodes implements cluster.Cluster. Every data node of ver owns a
// share of the ring, so it returns the same members as Nodes.
func (n *Node) AffinityNodes(ctx context.Context, _ string, ver cluster.Version) ([]cluster.Node, error) {
	return n.Nodes(ctx, ver)
}

// Ping implements cluster.Cluster.
func (n *Node) Ping(ctx context.Context, nodeID cluster.NodeID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := n.grid.member(nodeID)
	return ok, nil
}

// Handle implements cluster.Cluster.
func (n *Node) Handle(op string, h cluster.Handler) {
	n.mu.Lock()
	n.handlers[op] = h
	n.mu.Unlock()
}

func (n *Node) handler(op string) (cluster.Handler, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	h, ok := n.handlers[op]
	return h, ok
}

// Broadcast implements cluster.Cluster. Calls run concurrently; the
// returned *cluster.BroadcastError holds every per-node failure.
func (n *Node) Broadcast(ctx context.Context, nodes []cluster.Node, call cluster.Call) error {
	return cluster.Fanout(ctx, nodes, call.Op, 0, func(ctx context.Context, target cluster.NodeID) error {
		return n.deliver(ctx, target, call)
	})
}

func (n *Node) deliver(ctx context.Context, target cluster.NodeID, call cluster.Call) error {
	n.grid.mu.RLock()
	hook := n.grid.callHook
	n.grid.mu.RUnlock()
	if hook != nil {
		if err := hook(ctx, target, call); err != nil {
			return err
		}
	}

	peer, ok := n.grid.member(target)
	if !ok {
		return &cluster.NodeLeftError{Node: target}
	}
	h, ok := peer.handler(call.Op)
	if !ok {
		return fmt.Errorf("%w: %s on %s", cluster.ErrNoHandler, call.Op, target)
	}
	if err := h(ctx, call.Payload); err != nil {
		return err
	}
	if peer.Left() {
		return &cluster.NodeLeftError{Node: target}
	}
	return nil
}

// Cache implements cache.Provider. It returns this node's view of the
// named cache, creating the cache on first use.
func (n *Node) Cache(ctx context.Context, name string) (cache.Cache, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sp := n.grid.space(name)
	base := &view{node: n, sp: sp}
	if sp.atomicity == cache.Transactional {
		return &txView{view: base}, nil
	}
	return base, nil
}

// Destroy implements cache.Provider.
func (n *Node) Destroy(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.grid.destroy(name)
	return nil
}

// Close implements store.Store by leaving the grid.
func (n *Node) Close(context.Context) error {
	n.grid.Leave(n)
	return nil
}
