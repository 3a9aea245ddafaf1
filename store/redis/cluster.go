package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/serialx/hashring"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/datastruct/cache"
	"github.com/xraph/datastruct/cluster"
	"github.com/xraph/datastruct/id"
)

// Compile-time interface checks.
var _ cluster.Cluster = (*Node)(nil)

// ErrAlreadyJoined is returned by Join when the store already has a node.
var ErrAlreadyJoined = errors.New("datastruct/redis: store already joined the cluster")

// request is a broadcast call pushed onto a node inbox.
type request struct {
	ID      string `msgpack:"id"`
	From    string `msgpack:"from"`
	Op      string `msgpack:"op"`
	Payload []byte `msgpack:"payload"`
}

// reply answers one request.
type reply struct {
	Err       string `msgpack:"err,omitempty"`
	NoHandler bool   `msgpack:"no_handler,omitempty"`
	Left      bool   `msgpack:"left,omitempty"`
}

// Node is this process's membership in a Redis-coordinated cluster.
type Node struct {
	store *Store
	info  cluster.Node
	left  atomic.Bool

	mu       sync.RWMutex
	handlers map[string]cluster.Handler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Join registers this process as a cluster member and starts its
// heartbeat and inbox loops. An empty name generates one. Observer nodes
// hold no data and are not broadcast targets.
func (s *Store) Join(ctx context.Context, name string, observer bool) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.node != nil {
		return nil, ErrAlreadyJoined
	}
	if name == "" {
		name = id.NewNodeID().String()
	}

	n := &Node{
		store:    s,
		info:     cluster.Node{ID: cluster.NodeID(name), Observer: observer},
		handlers: make(map[string]cluster.Handler),
	}
	enc, err := msgpack.Marshal(n.info)
	if err != nil {
		return nil, fmt.Errorf("datastruct/redis: encode node: %w", err)
	}
	if err := s.client.Set(ctx, s.aliveKey(name), "1", s.heartbeatTTL).Err(); err != nil {
		return nil, fmt.Errorf("datastruct/redis: join heartbeat: %w", err)
	}
	v, err := joinScript.Run(ctx, s.client,
		[]string{s.membersKey(), s.versionKey()},
		name, enc, s.snapshotPrefix(),
	).Int64()
	if err != nil {
		return nil, fmt.Errorf("datastruct/redis: join: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	n.cancel = cancel
	n.wg.Add(2)
	go n.heartbeatLoop(loopCtx)
	go n.inboxLoop(loopCtx)

	s.node = n
	s.logger.Info("redis node joined",
		slog.String("node", name),
		slog.Bool("observer", observer),
		slog.Int64("version", v),
	)
	return n, nil
}

// Leave deregisters the node and stops its loops. Calls addressed to it
// fail with a *cluster.NodeLeftError from now on.
func (n *Node) Leave(ctx context.Context) error {
	if !n.left.CompareAndSwap(false, true) {
		return nil
	}
	s := n.store
	n.cancel()
	n.wg.Wait()

	name := string(n.info.ID)
	if err := s.client.Del(ctx, s.aliveKey(name), s.inboxKey(name)).Err(); err != nil {
		s.logger.Warn("failed to clear node keys", slog.String("node", name), slog.String("error", err.Error()))
	}
	if _, err := leaveScript.Run(ctx, s.client,
		[]string{s.membersKey(), s.versionKey()},
		name, s.snapshotPrefix(),
	).Int64(); err != nil {
		return fmt.Errorf("datastruct/redis: leave: %w", err)
	}

	s.mu.Lock()
	if s.node == n {
		s.node = nil
	}
	s.mu.Unlock()
	s.logger.Info("redis node left", slog.String("node", name))
	return nil
}

// LocalNode implements cluster.Cluster.
func (n *Node) LocalNode() cluster.Node { return n.info }

// TopologyVersion implements cluster.Cluster.
func (n *Node) TopologyVersion(ctx context.Context) (cluster.Version, error) {
	v, err := n.store.client.Get(ctx, n.store.versionKey()).Int64()
	if errors.Is(err, goredis.Nil) {
		return cluster.Zero, nil
	}
	if err != nil {
		return cluster.Version{}, fmt.Errorf("datastruct/redis: topology version: %w", err)
	}
	return cluster.Version{Major: v}, nil
}

func (n *Node) snapshotKey(ver cluster.Version) string {
	return n.store.snapshotPrefix() + strconv.FormatInt(ver.Major, 10)
}

// AffinityReady implements cluster.Cluster. Ownership is computed from the
// member snapshot, so it only checks that ver is known.
func (n *Node) AffinityReady(ctx context.Context, ver cluster.Version) error {
	ok, err := n.store.client.Exists(ctx, n.snapshotKey(ver)).Result()
	if err != nil {
		return fmt.Errorf("datastruct/redis: affinity ready: %w", err)
	}
	if ok == 0 {
		return fmt.Errorf("datastruct/redis: unknown topology version %s", ver)
	}
	return nil
}

// Nodes implements cluster.Cluster.
func (n *Node) Nodes(ctx context.Context, ver cluster.Version) ([]cluster.Node, error) {
	vals, err := n.store.client.HGetAll(ctx, n.snapshotKey(ver)).Result()
	if err != nil {
		return nil, fmt.Errorf("datastruct/redis: nodes of %s: %w", ver, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("datastruct/redis: unknown topology version %s", ver)
	}
	nodes, err := decodeMembers(vals)
	if err != nil {
		return nil, err
	}
	return cluster.DataNodes(nodes), nil
}

// AffinityNodes implements cluster.Cluster. Every data node owns a share
// of the ring.
func (n *Node) AffinityNodes(ctx context.Context, _ string, ver cluster.Version) ([]cluster.Node, error) {
	return n.Nodes(ctx, ver)
}

// Ping implements cluster.Cluster.
func (n *Node) Ping(ctx context.Context, nodeID cluster.NodeID) (bool, error) {
	ok, err := n.store.client.Exists(ctx, n.store.aliveKey(string(nodeID))).Result()
	if err != nil {
		return false, fmt.Errorf("datastruct/redis: ping %s: %w", nodeID, err)
	}
	return ok == 1, nil
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

// Broadcast implements cluster.Cluster.
func (n *Node) Broadcast(ctx context.Context, nodes []cluster.Node, call cluster.Call) error {
	return cluster.Fanout(ctx, nodes, call.Op, 0, func(ctx context.Context, target cluster.NodeID) error {
		return n.call(ctx, target, call)
	})
}

func (n *Node) call(ctx context.Context, target cluster.NodeID, call cluster.Call) error {
	if target == n.info.ID {
		return n.execute(ctx, call.Op, call.Payload).err(target, call.Op)
	}

	s := n.store
	alive, err := n.Ping(ctx, target)
	if err != nil {
		return err
	}
	if !alive {
		return &cluster.NodeLeftError{Node: target}
	}

	req := request{ID: id.NewRequestID().String(), From: string(n.info.ID), Op: call.Op, Payload: call.Payload}
	enc, err := msgpack.Marshal(&req)
	if err != nil {
		return fmt.Errorf("datastruct/redis: encode request: %w", err)
	}
	if err := s.client.RPush(ctx, s.inboxKey(string(target)), enc).Err(); err != nil {
		return fmt.Errorf("datastruct/redis: send %s to %s: %w", call.Op, target, err)
	}

	for {
		res, err := s.client.BLPop(ctx, s.callPoll, s.replyKey(req.ID)).Result()
		if err == nil {
			var rep reply
			if err := msgpack.Unmarshal([]byte(res[1]), &rep); err != nil {
				return fmt.Errorf("datastruct/redis: decode reply: %w", err)
			}
			return rep.err(target, call.Op)
		}
		if !errors.Is(err, goredis.Nil) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("datastruct/redis: await %s from %s: %w", call.Op, target, err)
		}
		alive, err := n.Ping(ctx, target)
		if err != nil {
			return err
		}
		if !alive {
			return &cluster.NodeLeftError{Node: target}
		}
	}
}

func (r reply) err(target cluster.NodeID, op string) error {
	switch {
	case r.Left:
		return &cluster.NodeLeftError{Node: target}
	case r.NoHandler:
		return fmt.Errorf("%w: %s on %s", cluster.ErrNoHandler, op, target)
	case r.Err != "":
		return &RemoteError{Node: target, Op: op, Msg: r.Err}
	default:
		return nil
	}
}

// RemoteError is a handler failure reported by another node.
type RemoteError struct {
	Node cluster.NodeID
	Op   string
	Msg  string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("datastruct/redis: %s on %s: %s", e.Op, e.Node, e.Msg)
}

func (n *Node) execute(ctx context.Context, op string, payload []byte) reply {
	h, ok := n.handler(op)
	if !ok {
		return reply{NoHandler: true}
	}
	err := h(ctx, payload)
	if n.left.Load() {
		return reply{Left: true}
	}
	if err != nil {
		if cluster.IsTopologyChange(err) {
			return reply{Left: true}
		}
		return reply{Err: err.Error()}
	}
	return reply{}
}

// inboxLoop serves broadcast calls addressed to this node.
func (n *Node) inboxLoop(ctx context.Context) {
	defer n.wg.Done()
	s := n.store
	inbox := s.inboxKey(string(n.info.ID))

	for ctx.Err() == nil {
		res, err := s.client.BLPop(ctx, s.callPoll, inbox).Result()
		if err != nil {
			if !errors.Is(err, goredis.Nil) && ctx.Err() == nil {
				s.logger.Warn("inbox read failed", slog.String("error", err.Error()))
				time.Sleep(s.callPoll / 10)
			}
			continue
		}
		var req request
		if err := msgpack.Unmarshal([]byte(res[1]), &req); err != nil {
			s.logger.Warn("dropping malformed request", slog.String("error", err.Error()))
			continue
		}

		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			rep := n.execute(ctx, req.Op, req.Payload)
			n.respond(req, rep)
		}()
	}
}

func (n *Node) respond(req request, rep reply) {
	s := n.store
	enc, err := msgpack.Marshal(&rep)
	if err != nil {
		s.logger.Error("failed to encode reply", slog.String("op", req.Op), slog.String("error", err.Error()))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.heartbeatTTL)
	defer cancel()

	key := s.replyKey(req.ID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, enc)
	pipe.Expire(ctx, key, s.heartbeatTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("failed to send reply",
			slog.String("op", req.Op),
			slog.String("to", req.From),
			slog.String("error", err.Error()),
		)
	}
}

// heartbeatLoop refreshes this node's heartbeat and reaps members whose
// heartbeat expired.
func (n *Node) heartbeatLoop(ctx context.Context) {
	defer n.wg.Done()
	s := n.store
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := s.client.Set(ctx, s.aliveKey(string(n.info.ID)), "1", s.heartbeatTTL).Err(); err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("heartbeat failed", slog.String("error", err.Error()))
			}
			continue
		}
		if err := n.reap(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("reap failed", slog.String("error", err.Error()))
		}
	}
}

func (n *Node) reap(ctx context.Context) error {
	s := n.store
	ids, err := s.client.HKeys(ctx, s.membersKey()).Result()
	if err != nil {
		return err
	}
	for _, nid := range ids {
		if nid == string(n.info.ID) {
			continue
		}
		alive, err := n.Ping(ctx, cluster.NodeID(nid))
		if err != nil {
			return err
		}
		if alive {
			continue
		}
		v, err := leaveScript.Run(ctx, s.client,
			[]string{s.membersKey(), s.versionKey()},
			nid, s.snapshotPrefix(),
		).Int64()
		if err != nil {
			return err
		}
		if v > 0 {
			s.logger.Info("reaped silent node", slog.String("node", nid), slog.Int64("version", v))
		}
	}
	return nil
}

// ── ownership ──

// ownerRing maps keys to owning nodes.
type ownerRing struct {
	ring *hashring.HashRing
}

func (n *Node) ring(ctx context.Context) (*ownerRing, error) {
	vals, err := n.store.client.HGetAll(ctx, n.store.membersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("datastruct/redis: read members: %w", err)
	}
	nodes, err := decodeMembers(vals)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(nodes))
	for _, m := range cluster.DataNodes(nodes) {
		names = append(names, string(m.ID))
	}
	return &ownerRing{ring: hashring.New(names)}, nil
}

// owns reports whether self holds key in the given role.
func (r *ownerRing) owns(key, self string, mode cache.PeekMode) bool {
	ns, ok := r.ring.GetNodes(key, 2)
	if !ok {
		// Fewer than two data nodes: the single owner is primary.
		n, ok := r.ring.GetNode(key)
		return ok && n == self && mode != cache.PeekBackup
	}
	switch mode {
	case cache.PeekPrimary:
		return ns[0] == self
	case cache.PeekBackup:
		return ns[1] == self
	default:
		return ns[0] == self || ns[1] == self
	}
}

func decodeMembers(vals map[string]string) ([]cluster.Node, error) {
	nodes := make([]cluster.Node, 0, len(vals))
	for field, raw := range vals {
		if field == "" {
			continue
		}
		var m cluster.Node
		if err := msgpack.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("datastruct/redis: decode member %s: %w", field, err)
		}
		nodes = append(nodes, m)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}
