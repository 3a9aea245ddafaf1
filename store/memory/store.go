// Package memory provides an in-process data grid: a set of simulated nodes
// sharing named caches, a versioned membership view and node-to-node calls.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/serialx/hashring"

	"github.com/xraph/datastruct/cache"
	"github.com/xraph/datastruct/cluster"
)

// CallHook runs before a broadcast call is delivered to target. A non-nil
// error fails the call on that node.
type CallHook func(ctx context.Context, target cluster.NodeID, call cluster.Call) error

// CacheHook runs before every cache operation. A non-nil error fails it.
type CacheHook func(op, key string) error

// GridOption configures a Grid.
type GridOption func(*Grid)

// WithLogger sets the grid logger.
func WithLogger(l *slog.Logger) GridOption {
	return func(g *Grid) { g.logger = l }
}

// WithAtomicity sets the write mode of the named cache. Caches default to
// cache.Atomic.
func WithAtomicity(cacheName string, a cache.Atomicity) GridOption {
	return func(g *Grid) { g.atomicity[cacheName] = a }
}

// Grid is the shared state of an in-process cluster.
type Grid struct {
	mu sync.RWMutex

	spaces    map[string]*space
	atomicity map[string]cache.Atomicity

	members map[cluster.NodeID]*Node
	history map[cluster.Version][]cluster.Node
	ver     cluster.Version
	ring    *hashring.HashRing
	seq     int

	callHook  CallHook
	cacheHook CacheHook

	logger *slog.Logger
}

// NewGrid returns an empty grid at topology version 0.0.
func NewGrid(opts ...GridOption) *Grid {
	g := &Grid{
		spaces:    make(map[string]*space),
		atomicity: make(map[string]cache.Atomicity),
		members:   make(map[cluster.NodeID]*Node),
		history:   map[cluster.Version][]cluster.Node{cluster.Zero: nil},
		ring:      hashring.New(nil),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Join adds a node and bumps the topology version. Observer nodes hold no
// data and are not broadcast targets.
func (g *Grid) Join(name string, observer bool) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	if name == "" {
		name = fmt.Sprintf("node-%d", g.seq)
	}
	n := &Node{
		grid:     g,
		info:     cluster.Node{ID: cluster.NodeID(name), Addr: "mem://" + name, Observer: observer},
		handlers: make(map[string]cluster.Handler),
	}
	g.members[n.info.ID] = n
	if !observer {
		g.ring = g.ring.AddNode(name)
	}
	g.bumpLocked()

	g.logger.Debug("memory grid: node joined",
		slog.String("node", name),
		slog.Bool("observer", observer),
		slog.String("version", g.ver.String()),
	)
	return n
}

// Leave removes n from the topology, cancels its subscriptions and bumps
// the topology version. Calls addressed to n fail with a
// *cluster.NodeLeftError from now on.
func (g *Grid) Leave(n *Node) {
	g.mu.Lock()
	if _, ok := g.members[n.info.ID]; !ok {
		g.mu.Unlock()
		return
	}
	delete(g.members, n.info.ID)
	if !n.info.Observer {
		g.ring = g.ring.RemoveNode(string(n.info.ID))
	}
	g.bumpLocked()
	spaces := make([]*space, 0, len(g.spaces))
	for _, sp := range g.spaces {
		spaces = append(spaces, sp)
	}
	ver := g.ver
	g.mu.Unlock()

	n.left.Store(true)
	for _, sp := range spaces {
		sp.cancelOwner(n.info.ID)
	}

	g.logger.Debug("memory grid: node left",
		slog.String("node", string(n.info.ID)),
		slog.String("version", ver.String()),
	)
}

// Rebalance bumps the minor topology version without membership changes.
func (g *Grid) Rebalance() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ver.Minor++
	g.history[g.ver] = g.snapshotLocked()
}

// Version returns the current topology version.
func (g *Grid) Version() cluster.Version {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ver
}

// SetCallHook installs a hook that runs before every broadcast delivery.
func (g *Grid) SetCallHook(h CallHook) {
	g.mu.Lock()
	g.callHook = h
	g.mu.Unlock()
}

// SetCacheHook installs a hook that runs before every cache operation.
func (g *Grid) SetCacheHook(h CacheHook) {
	g.mu.Lock()
	g.cacheHook = h
	g.mu.Unlock()
}

// Len returns the number of entries stored in the named cache.
func (g *Grid) Len(cacheName string) int {
	g.mu.RLock()
	sp, ok := g.spaces[cacheName]
	g.mu.RUnlock()
	if !ok {
		return 0
	}
	return sp.len()
}

// Keys returns the sorted keys of the named cache.
func (g *Grid) Keys(cacheName string) []string {
	g.mu.RLock()
	sp, ok := g.spaces[cacheName]
	g.mu.RUnlock()
	if !ok {
		return nil
	}
	return sp.keys()
}

func (g *Grid) bumpLocked() {
	g.ver = cluster.Version{Major: g.ver.Major + 1}
	g.history[g.ver] = g.snapshotLocked()
}

func (g *Grid) snapshotLocked() []cluster.Node {
	out := make([]cluster.Node, 0, len(g.members))
	for _, m := range g.members {
		out = append(out, m.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (g *Grid) space(name string) *space {
	g.mu.Lock()
	defer g.mu.Unlock()
	sp, ok := g.spaces[name]
	if !ok {
		a := g.atomicity[name]
		if a == 0 {
			a = cache.Atomic
		}
		sp = newSpace(name, a, g.logger)
		g.spaces[name] = sp
	}
	return sp
}

func (g *Grid) destroy(name string) {
	g.mu.Lock()
	sp, ok := g.spaces[name]
	delete(g.spaces, name)
	g.mu.Unlock()
	if ok {
		sp.close()
	}
}

func (g *Grid) member(nodeID cluster.NodeID) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.members[nodeID]
	return n, ok
}

func (g *Grid) owners(key string, mode cache.PeekMode) []string {
	g.mu.RLock()
	ring := g.ring
	g.mu.RUnlock()

	switch mode {
	case cache.PeekPrimary:
		n, ok := ring.GetNode(key)
		if !ok {
			return nil
		}
		return []string{n}
	case cache.PeekBackup:
		ns, ok := ring.GetNodes(key, 2)
		if !ok || len(ns) < 2 {
			return nil
		}
		return ns[1:]
	default:
		ns, ok := ring.GetNodes(key, 2)
		if !ok {
			n, ok := ring.GetNode(key)
			if !ok {
				return nil
			}
			return []string{n}
		}
		return ns
	}
}

func (g *Grid) checkCache(op, key string) error {
	g.mu.RLock()
	h := g.cacheHook
	g.mu.RUnlock()
	if h == nil {
		return nil
	}
	return h(op, key)
}
