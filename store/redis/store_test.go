//go:build integration

package redis_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xraph/datastruct"
	"github.com/xraph/datastruct/cache"
	"github.com/xraph/datastruct/cluster"
	"github.com/xraph/datastruct/header"
	"github.com/xraph/datastruct/manager"
	redisstore "github.com/xraph/datastruct/store/redis"
)

// setupClient starts a Redis container and returns a connected client.
func setupClient(t *testing.T) *goredis.Client {
	t.Helper()

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	addr, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("get endpoint: %v", err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newStore(t *testing.T, client *goredis.Client, opts ...redisstore.Option) *redisstore.Store {
	t.Helper()
	opts = append([]redisstore.Option{
		redisstore.WithPrefix("test:"),
		redisstore.WithHeartbeat(50*time.Millisecond, 300*time.Millisecond),
		redisstore.WithCallPoll(100 * time.Millisecond),
	}, opts...)
	s := redisstore.New(client, opts...)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestCache_Operations(t *testing.T) {
	client := setupClient(t)
	s := newStore(t, client)
	ctx := context.Background()

	c, err := s.Cache(ctx, "default")
	if err != nil {
		t.Fatal(err)
	}

	h := header.NewQueueHeader(5, true)
	prev, err := c.GetAndPutIfAbsent(ctx, "hdr:queue:q", h)
	if err != nil || prev != nil {
		t.Fatalf("first put = %v, %v", prev, err)
	}
	prev, err = c.GetAndPutIfAbsent(ctx, "hdr:queue:q", header.NewQueueHeader(1, false))
	if err != nil {
		t.Fatal(err)
	}
	got, ok := header.AsQueueHeader(prev)
	if !ok || got != h {
		t.Fatalf("existing header = %#v", prev)
	}

	next := h
	next.Tail++
	swapped, err := c.Replace(ctx, "hdr:queue:q", h, next)
	if err != nil || !swapped {
		t.Fatalf("Replace = %v, %v", swapped, err)
	}
	swapped, err = c.Replace(ctx, "hdr:queue:q", h, next)
	if err != nil || swapped {
		t.Fatalf("stale Replace = %v, %v", swapped, err)
	}

	if err := c.Put(ctx, "item", "hello"); err != nil {
		t.Fatal(err)
	}
	v, err := c.Get(ctx, "item")
	if err != nil || v != "hello" {
		t.Fatalf("Get = %v, %v", v, err)
	}

	removed, err := c.Remove(ctx, "item")
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v", removed, err)
	}
	if v, _ := c.Get(ctx, "item"); v != nil {
		t.Fatalf("Get after Remove = %v", v)
	}
	if err := c.RemoveAll(ctx, []string{"hdr:queue:q", "missing"}); err != nil {
		t.Fatal(err)
	}
	keys, err := c.LocalKeys(ctx, cache.PeekPrimary)
	if err != nil || len(keys) != 0 {
		t.Fatalf("LocalKeys = %v, %v", keys, err)
	}
}

func TestCache_SubscribeOrdersEventsPerKey(t *testing.T) {
	client := setupClient(t)
	s := newStore(t, client)
	ctx := context.Background()
	c, _ := s.Cache(ctx, "default")

	var (
		mu   sync.Mutex
		seen []cache.Event
	)
	sub, err := c.Subscribe(ctx, header.IsQueueHeaderKey, func(evts []cache.Event) {
		mu.Lock()
		seen = append(seen, evts...)
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()

	h := header.NewQueueHeader(0, false)
	_, _ = c.GetAndPutIfAbsent(ctx, "hdr:queue:a", h)
	_ = c.Put(ctx, "unrelated", 1)
	next := h
	next.Tail = 1
	_, _ = c.Replace(ctx, "hdr:queue:a", h, next)
	_, _ = c.Remove(ctx, "hdr:queue:a")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n >= 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []cache.EventType{cache.EventCreated, cache.EventUpdated, cache.EventRemoved}
	if len(seen) != len(want) {
		t.Fatalf("got %d events, want %d", len(seen), len(want))
	}
	for i, e := range seen {
		if e.Type != want[i] {
			t.Errorf("event %d type = %s, want %s", i, e.Type, want[i])
		}
	}
	if old, ok := header.AsQueueHeader(seen[2].OldValue); !ok || old.Tail != 1 {
		t.Errorf("removal event old value = %#v", seen[2].OldValue)
	}
}

func TestCache_SubscribeSlowListenerKeepsHeaderEvents(t *testing.T) {
	client := setupClient(t)
	s := newStore(t, client)
	ctx := context.Background()
	c, _ := s.Cache(ctx, "default")

	release := make(chan struct{})
	var (
		mu      sync.Mutex
		removed bool
		total   int
	)
	sub, err := c.Subscribe(ctx, nil, func(evts []cache.Event) {
		<-release
		mu.Lock()
		defer mu.Unlock()
		total += len(evts)
		for _, e := range evts {
			if e.Key == "hdr:queue:busy" && e.Type == cache.EventRemoved {
				removed = true
			}
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()

	h := header.NewQueueHeader(0, false)
	if _, err := c.GetAndPutIfAbsent(ctx, "hdr:queue:busy", h); err != nil {
		t.Fatal(err)
	}
	// Far more item writes than the pub/sub buffer holds while the
	// listener is stuck.
	const items = 3000
	for i := range items {
		if err := c.Put(ctx, header.QueueItemKey(h.ID, int64(i)), i); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := c.Remove(ctx, "hdr:queue:busy"); err != nil {
		t.Fatal(err)
	}
	close(release)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := removed
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if !removed {
		t.Fatalf("header removal event lost after %d events", total)
	}
	if total != items+2 {
		t.Errorf("got %d events, want %d", total, items+2)
	}
}

func TestTxCache_Lock(t *testing.T) {
	client := setupClient(t)
	s := newStore(t, client, redisstore.WithAtomicity("tx", cache.Transactional))
	ctx := context.Background()

	c, _ := s.Cache(ctx, "tx")
	locker, ok := c.(cache.Locker)
	if !ok || c.Atomicity() != cache.Transactional {
		t.Fatalf("cache %T is not transactional", c)
	}

	unlock, err := locker.Lock(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(short, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second Lock = %v, want DeadlineExceeded", err)
	}
	unlock()
	unlock2, err := locker.Lock(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	unlock2()
}

func TestCluster_MembershipAndBroadcast(t *testing.T) {
	client := setupClient(t)
	ctx := context.Background()

	stores := make([]*redisstore.Store, 3)
	nodes := make([]*redisstore.Node, 3)
	for i := range stores {
		stores[i] = newStore(t, client)
		n, err := stores[i].Join(ctx, fmt.Sprintf("n%d", i), false)
		if err != nil {
			t.Fatal(err)
		}
		nodes[i] = n
		t.Cleanup(func() { _ = n.Leave(context.Background()) })
	}
	if _, err := stores[0].Join(ctx, "again", false); !errors.Is(err, redisstore.ErrAlreadyJoined) {
		t.Fatalf("second Join = %v", err)
	}

	ver, err := nodes[0].TopologyVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	members, err := nodes[0].Nodes(ctx, ver)
	if err != nil || len(members) != 3 {
		t.Fatalf("Nodes(%s) = %v, %v", ver, members, err)
	}

	var calls sync.Map
	for i, n := range nodes {
		i := i
		n.Handle("echo", func(_ context.Context, payload []byte) error {
			calls.Store(i, string(payload))
			if i == 2 {
				return errors.New("refused")
			}
			return nil
		})
	}

	err = nodes[0].Broadcast(ctx, members, cluster.Call{Op: "echo", Payload: []byte("hi")})
	var be *cluster.BroadcastError
	if !errors.As(err, &be) || len(be.Failures) != 1 {
		t.Fatalf("Broadcast = %v", err)
	}
	var re *redisstore.RemoteError
	if !errors.As(be.Failures["n2"], &re) || re.Msg != "refused" {
		t.Fatalf("n2 failure = %v", be.Failures["n2"])
	}
	for i := range nodes {
		if v, ok := calls.Load(i); !ok || v != "hi" {
			t.Errorf("node %d payload = %v", i, v)
		}
	}

	err = nodes[0].Broadcast(ctx, members[:1], cluster.Call{Op: "missing"})
	if !errors.Is(err, cluster.ErrNoHandler) {
		t.Fatalf("Broadcast(missing) = %v", err)
	}

	// A departed member is reported as a topology change.
	if err := nodes[1].Leave(ctx); err != nil {
		t.Fatal(err)
	}
	err = nodes[0].Broadcast(ctx, members, cluster.Call{Op: "echo"})
	if !cluster.IsTopologyChange(err) {
		t.Fatalf("Broadcast after leave = %v", err)
	}
	cur, _ := nodes[0].TopologyVersion(ctx)
	if cur.Compare(ver) <= 0 {
		t.Fatalf("version did not advance: %s -> %s", ver, cur)
	}
}

func TestCluster_LocalKeysPartitionKeys(t *testing.T) {
	client := setupClient(t)
	ctx := context.Background()

	caches := make([]cache.Cache, 2)
	for i := range caches {
		s := newStore(t, client)
		n, err := s.Join(ctx, fmt.Sprintf("p%d", i), false)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = n.Leave(context.Background()) })
		caches[i], _ = s.Cache(ctx, "default")
	}
	for k := 0; k < 100; k++ {
		if err := caches[0].Put(ctx, fmt.Sprintf("k%d", k), k); err != nil {
			t.Fatal(err)
		}
	}

	owners := map[string]int{}
	for _, c := range caches {
		keys, err := c.LocalKeys(ctx, cache.PeekPrimary)
		if err != nil {
			t.Fatal(err)
		}
		for _, k := range keys {
			owners[k]++
		}
	}
	if len(owners) != 100 {
		t.Fatalf("%d keys have a primary owner, want 100", len(owners))
	}
	for k, n := range owners {
		if n != 1 {
			t.Errorf("key %s has %d primary owners", k, n)
		}
	}
}

func TestManager_RemoveSetOverRedis(t *testing.T) {
	client := setupClient(t)
	ctx := context.Background()

	mgrs := make([]*manager.Manager, 2)
	for i := range mgrs {
		s := newStore(t, client)
		n, err := s.Join(ctx, fmt.Sprintf("m%d", i), false)
		if err != nil {
			t.Fatal(err)
		}
		c, _ := s.Cache(ctx, "default")
		m, err := manager.New(c, manager.WithCluster(n), manager.WithStore(s))
		if err != nil {
			t.Fatal(err)
		}
		if err := m.Start(ctx); err != nil {
			t.Fatal(err)
		}
		mgrs[i] = m
		t.Cleanup(func() {
			_ = m.Stop(context.Background())
			_ = n.Leave(context.Background())
		})
	}

	s0, err := mgrs[0].Set(ctx, "s", false, true, false)
	if err != nil {
		t.Fatal(err)
	}
	s1, _ := mgrs[1].Set(ctx, "s", false, false, false)
	for i := 0; i < 50; i++ {
		if _, err := s0.Add(ctx, i); err != nil {
			t.Fatal(err)
		}
	}

	if removed, err := mgrs[1].RemoveSet(ctx, "s"); err != nil || !removed {
		t.Fatalf("RemoveSet = %v, %v", removed, err)
	}
	if _, err := s0.Add(ctx, 1); !errors.Is(err, datastruct.ErrStructureRemoved) {
		t.Fatalf("s0.Add after removal = %v", err)
	}
	if _, err := s1.Contains(ctx, 1); !errors.Is(err, datastruct.ErrStructureRemoved) {
		t.Fatalf("s1.Contains after removal = %v", err)
	}

	n, err := client.SCard(ctx, "test:c:default:idx").Result()
	if err != nil || n != 0 {
		t.Fatalf("%d keys left in cache index (%v)", n, err)
	}
}

func TestManager_QueueOverRedis(t *testing.T) {
	client := setupClient(t)
	ctx := context.Background()
	s := newStore(t, client)
	c, _ := s.Cache(ctx, "default")
	m, err := manager.New(c)
	if err != nil {
		t.Fatal(err)
	}
	_ = m.Start(ctx)
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	q, err := m.Queue(ctx, "q", 2, false, true)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range []string{"a", "b", "c"} {
		ok, err := q.Offer(ctx, v)
		if err != nil {
			t.Fatal(err)
		}
		if v == "c" && ok {
			t.Fatal("bounded queue accepted a third item")
		}
	}
	v, err := q.Poll(ctx)
	if err != nil || v != "a" {
		t.Fatalf("Poll = %v, %v", v, err)
	}
}
