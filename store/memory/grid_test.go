package memory_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/xraph/datastruct/cache"
	"github.com/xraph/datastruct/cluster"
	"github.com/xraph/datastruct/store/memory"
)

func ctx() context.Context { return context.Background() }

func mustCache(t *testing.T, n *memory.Node, name string) cache.Cache {
	t.Helper()
	c, err := n.Cache(ctx(), name)
	if err != nil {
		t.Fatalf("Cache(%q): %v", name, err)
	}
	return c
}

// collector records events delivered to a listener.
type collector struct {
	mu     sync.Mutex
	events []cache.Event
	ch     chan struct{}
}

func newCollector() *collector { return &collector{ch: make(chan struct{}, 64)} }

func (c *collector) listen(evts []cache.Event) {
	c.mu.Lock()
	c.events = append(c.events, evts...)
	c.mu.Unlock()
	c.ch <- struct{}{}
}

func (c *collector) waitFor(t *testing.T, n int) []cache.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		if len(c.events) >= n {
			out := append([]cache.Event(nil), c.events...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		select {
		case <-c.ch:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events", n)
		}
	}
}

func TestGrid_TopologyVersions(t *testing.T) {
	g := memory.NewGrid()
	a := g.Join("a", false)
	if v := g.Version(); v.Major != 1 {
		t.Fatalf("version after first join = %s", v)
	}
	g.Join("client", true)
	b := g.Join("b", false)

	ver, err := a.TopologyVersion(ctx())
	if err != nil {
		t.Fatal(err)
	}
	nodes, err := a.Nodes(ctx(), ver)
	if err != nil {
		t.Fatal(err)
	}
	ids := cluster.IDs(nodes)
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("Nodes = %v, want data nodes [a b]", ids)
	}

	g.Leave(b)
	if ok, _ := a.Ping(ctx(), "b"); ok {
		t.Fatal("Ping succeeded for departed node")
	}
	if g.Version().Compare(ver) <= 0 {
		t.Fatal("Leave did not bump the version")
	}

	// Old snapshots stay readable.
	old, err := a.Nodes(ctx(), ver)
	if err != nil || len(old) != 2 {
		t.Fatalf("Nodes(old) = %v, %v", old, err)
	}

	if err := a.AffinityReady(ctx(), cluster.Version{Major: 99}); err == nil {
		t.Fatal("AffinityReady accepted unknown version")
	}
}

func TestCache_BasicOperations(t *testing.T) {
	g := memory.NewGrid()
	c := mustCache(t, g.Join("a", false), "default")

	prev, err := c.GetAndPutIfAbsent(ctx(), "k", 1)
	if err != nil || prev != nil {
		t.Fatalf("first GetAndPutIfAbsent = %v, %v", prev, err)
	}
	prev, _ = c.GetAndPutIfAbsent(ctx(), "k", 2)
	if prev != 1 {
		t.Fatalf("second GetAndPutIfAbsent = %v, want 1", prev)
	}

	ok, _ := c.Replace(ctx(), "k", 5, 6)
	if ok {
		t.Fatal("Replace succeeded with stale expectation")
	}
	ok, _ = c.Replace(ctx(), "k", 1, 7)
	if !ok {
		t.Fatal("Replace failed with current expectation")
	}
	if v, _ := c.Get(ctx(), "k"); v != 7 {
		t.Fatalf("Get = %v, want 7", v)
	}

	removed, _ := c.Remove(ctx(), "k")
	if !removed {
		t.Fatal("Remove reported missing key")
	}
	removed, _ = c.Remove(ctx(), "k")
	if removed {
		t.Fatal("Remove reported existing key twice")
	}
}

func TestCache_SharedAcrossNodes(t *testing.T) {
	g := memory.NewGrid()
	a := mustCache(t, g.Join("a", false), "default")
	b := mustCache(t, g.Join("b", false), "default")

	if err := a.Put(ctx(), "k", "v"); err != nil {
		t.Fatal(err)
	}
	if v, _ := b.Get(ctx(), "k"); v != "v" {
		t.Fatalf("b.Get = %v", v)
	}
}

func TestCache_SubscribeFilterAndOrder(t *testing.T) {
	g := memory.NewGrid()
	a := mustCache(t, g.Join("a", false), "default")
	b := mustCache(t, g.Join("b", false), "default")

	col := newCollector()
	sub, err := b.Subscribe(ctx(), func(k string) bool { return k == "watched" }, col.listen)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()

	_ = a.Put(ctx(), "ignored", 0)
	_ = a.Put(ctx(), "watched", 1)
	_ = a.Put(ctx(), "watched", 2)
	_, _ = a.Remove(ctx(), "watched")

	evts := col.waitFor(t, 3)
	if len(evts) != 3 {
		t.Fatalf("got %d events, want 3", len(evts))
	}
	want := []cache.EventType{cache.EventCreated, cache.EventUpdated, cache.EventRemoved}
	for i, e := range evts {
		if e.Type != want[i] {
			t.Errorf("event %d type = %s, want %s", i, e.Type, want[i])
		}
	}
	if evts[2].OldValue != 2 || evts[2].Value != nil {
		t.Errorf("removed event = %+v", evts[2])
	}
}

func TestCache_LeaveCancelsSubscriptions(t *testing.T) {
	g := memory.NewGrid()
	a := mustCache(t, g.Join("a", false), "default")
	nb := g.Join("b", false)
	b := mustCache(t, nb, "default")

	col := newCollector()
	if _, err := b.Subscribe(ctx(), nil, col.listen); err != nil {
		t.Fatal(err)
	}
	g.Leave(nb)
	_ = a.Put(ctx(), "k", 1)

	time.Sleep(20 * time.Millisecond)
	col.mu.Lock()
	defer col.mu.Unlock()
	if len(col.events) != 0 {
		t.Fatalf("departed node received %d events", len(col.events))
	}
}

func TestCache_LocalKeysPartitionPrimaries(t *testing.T) {
	g := memory.NewGrid()
	nodes := []*memory.Node{g.Join("a", false), g.Join("b", false), g.Join("c", false)}
	client := g.Join("client", true)

	c := mustCache(t, nodes[0], "default")
	for i := 0; i < 200; i++ {
		_ = c.Put(ctx(), string(rune('A'+i%26))+string(rune('a'+i/26)), i)
	}

	var all []string
	for _, n := range nodes {
		keys, err := mustCache(t, n, "default").LocalKeys(ctx(), cache.PeekPrimary)
		if err != nil {
			t.Fatal(err)
		}
		all = append(all, keys...)
	}
	sort.Strings(all)
	if len(all) != g.Len("default") {
		t.Fatalf("primaries cover %d keys, want %d", len(all), g.Len("default"))
	}
	for i := 1; i < len(all); i++ {
		if all[i] == all[i-1] {
			t.Fatalf("key %q has two primaries", all[i])
		}
	}

	keys, _ := mustCache(t, client, "default").LocalKeys(ctx(), cache.PeekPrimary)
	if len(keys) != 0 {
		t.Fatalf("observer holds %d keys", len(keys))
	}
}

func TestCache_TransactionalLock(t *testing.T) {
	g := memory.NewGrid(memory.WithAtomicity("tx", cache.Transactional))
	c := mustCache(t, g.Join("a", false), "tx")
	if c.Atomicity() != cache.Transactional {
		t.Fatal("expected transactional cache")
	}
	l, ok := c.(cache.Locker)
	if !ok {
		t.Fatal("transactional cache does not implement Locker")
	}

	unlock, err := l.Lock(ctx(), "k")
	if err != nil {
		t.Fatal(err)
	}

	short, cancel := context.WithTimeout(ctx(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(short, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second Lock = %v, want DeadlineExceeded", err)
	}

	unlock()
	unlock2, err := l.Lock(ctx(), "k")
	if err != nil {
		t.Fatal(err)
	}
	unlock2()

	atomicCache := mustCache(t, g.Join("b", false), "default")
	if _, ok := atomicCache.(cache.Locker); ok {
		t.Fatal("atomic cache must not implement Locker")
	}
}

func TestCache_HookInjectsFailures(t *testing.T) {
	g := memory.NewGrid()
	c := mustCache(t, g.Join("a", false), "default")
	boom := errors.New("boom")
	g.SetCacheHook(func(op, _ string) error {
		if op == "put" {
			return boom
		}
		return nil
	})
	if err := c.Put(ctx(), "k", 1); !errors.Is(err, boom) {
		t.Fatalf("Put = %v, want boom", err)
	}
	g.SetCacheHook(nil)
	if err := c.Put(ctx(), "k", 1); err != nil {
		t.Fatal(err)
	}
}

func TestProvider_Destroy(t *testing.T) {
	g := memory.NewGrid()
	n := g.Join("a", false)
	c := mustCache(t, n, "tmp")
	_ = c.Put(ctx(), "k", 1)

	if err := n.Destroy(ctx(), "tmp"); err != nil {
		t.Fatal(err)
	}
	if g.Len("tmp") != 0 {
		t.Fatal("Destroy left data behind")
	}
	c2 := mustCache(t, n, "tmp")
	if v, _ := c2.Get(ctx(), "k"); v != nil {
		t.Fatalf("recreated cache returned %v", v)
	}
}

func TestBroadcast(t *testing.T) {
	g := memory.NewGrid()
	a := g.Join("a", false)
	b := g.Join("b", false)
	c := g.Join("c", false)

	var mu sync.Mutex
	seen := map[string]string{}
	for _, n := range []*memory.Node{a, b, c} {
		n := n
		n.Handle("echo", func(_ context.Context, payload []byte) error {
			mu.Lock()
			seen[string(n.LocalNode().ID)] = string(payload)
			mu.Unlock()
			return nil
		})
	}

	ver, _ := a.TopologyVersion(ctx())
	nodes, _ := a.Nodes(ctx(), ver)
	if err := a.Broadcast(ctx(), nodes, cluster.Call{Op: "echo", Payload: []byte("hi")}); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 3 || seen["b"] != "hi" {
		t.Fatalf("seen = %v", seen)
	}
}

func TestBroadcast_NodeLeftIsTopologyChange(t *testing.T) {
	g := memory.NewGrid()
	a := g.Join("a", false)
	b := g.Join("b", false)
	a.Handle("op", func(context.Context, []byte) error { return nil })
	b.Handle("op", func(context.Context, []byte) error { return nil })

	ver, _ := a.TopologyVersion(ctx())
	nodes, _ := a.Nodes(ctx(), ver)
	g.Leave(b)

	err := a.Broadcast(ctx(), nodes, cluster.Call{Op: "op"})
	if !cluster.IsTopologyChange(err) {
		t.Fatalf("Broadcast = %v, want topology change", err)
	}
	var be *cluster.BroadcastError
	if !errors.As(err, &be) || len(be.Failures) != 1 {
		t.Fatalf("expected one failure, got %v", err)
	}
}

func TestBroadcast_HandlerErrorAndMissingHandler(t *testing.T) {
	g := memory.NewGrid()
	a := g.Join("a", false)
	g.Join("b", false)
	boom := errors.New("boom")
	a.Handle("op", func(context.Context, []byte) error { return boom })

	nodes, _ := a.Nodes(ctx(), g.Version())
	err := a.Broadcast(ctx(), nodes, cluster.Call{Op: "op"})
	if !errors.Is(err, boom) || !errors.Is(err, cluster.ErrNoHandler) {
		t.Fatalf("Broadcast = %v, want boom and ErrNoHandler", err)
	}
	if cluster.IsTopologyChange(err) {
		t.Fatal("plain failures must not count as topology change")
	}
}

func TestNode_CloseLeavesGrid(t *testing.T) {
	g := memory.NewGrid()
	a := g.Join("a", false)
	b := g.Join("b", false)
	before := g.Version()

	if err := b.Close(ctx()); err != nil {
		t.Fatal(err)
	}
	if !b.Left() {
		t.Fatal("closed node has not left")
	}
	if g.Version().Compare(before) <= 0 {
		t.Fatal("close did not bump the topology version")
	}
	alive, err := a.Ping(ctx(), b.LocalNode().ID)
	if err != nil || alive {
		t.Fatalf("Ping(closed) = %v, %v", alive, err)
	}
}
