package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/datastruct/cluster"
	"github.com/xraph/datastruct/id"
	mw "github.com/xraph/datastruct/middleware"
)

// Remote operation names. The cache name is appended so that managers of
// different caches on one node register distinct handlers.
const (
	OpBlockSet = "set.block"
	OpPurgeSet = "set.purge"
)

// BlockSetRequest asks a node to evict and block its handle of a set.
type BlockSetRequest struct {
	CacheName string `json:"cache" msgpack:"cache"`
	SetID     id.ID  `json:"set_id" msgpack:"set_id"`
}

// PurgeSetRequest asks an affinity node to delete its primary share of a
// set's items once the given topology version is ready.
type PurgeSetRequest struct {
	CacheName       string          `json:"cache" msgpack:"cache"`
	SetID           id.ID           `json:"set_id" msgpack:"set_id"`
	TopologyVersion cluster.Version `json:"topology_version" msgpack:"topology_version"`
}

func opName(op, cacheName string) string {
	return "datastruct." + op + "/" + cacheName
}

// registerHandlers installs this manager's remote call handlers.
func (m *Manager) registerHandlers() {
	name := m.cache.Name()

	m.cluster.Handle(opName(OpBlockSet, name), func(ctx context.Context, payload []byte) error {
		var req BlockSetRequest
		if err := m.codec.Unmarshal(payload, &req); err != nil {
			return fmt.Errorf("datastruct/manager: decode block request: %w", err)
		}
		if req.CacheName != name {
			return nil
		}
		return m.serve(ctx, OpBlockSet, req.SetID, func(ctx context.Context) error {
			return m.blockSetLocal(ctx, req.SetID)
		})
	})

	m.cluster.Handle(opName(OpPurgeSet, name), func(ctx context.Context, payload []byte) error {
		var req PurgeSetRequest
		if err := m.codec.Unmarshal(payload, &req); err != nil {
			return fmt.Errorf("datastruct/manager: decode purge request: %w", err)
		}
		if req.CacheName != name {
			return nil
		}
		return m.serve(ctx, OpPurgeSet, req.SetID, func(ctx context.Context) error {
			if err := m.cluster.AffinityReady(ctx, req.TopologyVersion); err != nil {
				return err
			}
			return m.purgeSetLocal(ctx, req.SetID)
		})
	})
}

// serve runs a remote call through the middleware chain.
func (m *Manager) serve(ctx context.Context, op string, target id.ID, fn mw.Handler) error {
	c := &mw.Call{Op: op, Cache: m.cache.Name(), Target: target}
	return m.chain(ctx, c, fn)
}

// broadcast encodes req and sends it to nodes. Failures from nodes that
// do not serve this cache are dropped.
func (m *Manager) broadcast(ctx context.Context, op string, nodes []cluster.Node, req any) error {
	if len(nodes) == 0 {
		return nil
	}
	payload, err := m.codec.Marshal(req)
	if err != nil {
		return fmt.Errorf("datastruct/manager: encode %s request: %w", op, err)
	}
	err = m.cluster.Broadcast(ctx, nodes, cluster.Call{Op: opName(op, m.cache.Name()), Payload: payload})
	return dropUnserved(err)
}

func dropUnserved(err error) error {
	var be *cluster.BroadcastError
	if !errors.As(err, &be) {
		return err
	}
	kept := make(map[cluster.NodeID]error, len(be.Failures))
	for nodeID, ferr := range be.Failures {
		if !errors.Is(ferr, cluster.ErrNoHandler) {
			kept[nodeID] = ferr
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return &cluster.BroadcastError{Op: be.Op, Failures: kept}
}
