package cluster

import (
	"context"
	"fmt"
)

// NodeID identifies a cluster member.
type NodeID string

// Node is a cluster member.
type Node struct {
	ID       NodeID `json:"id" msgpack:"id"`
	Addr     string `json:"addr,omitempty" msgpack:"addr,omitempty"`
	Observer bool   `json:"observer,omitempty" msgpack:"observer,omitempty"`
}

// Version is a topology snapshot id. Major changes on membership changes;
// Minor on partition reassignments without membership changes.
type Version struct {
	Major int64 `json:"major" msgpack:"major"`
	Minor int64 `json:"minor" msgpack:"minor"`
}

// Zero is the version used by single-process deployments.
var Zero Version

// Compare returns -1, 0 or 1 as v is older than, equal to or newer than o.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major < o.Major:
		return -1
	case v.Major > o.Major:
		return 1
	case v.Minor < o.Minor:
		return -1
	case v.Minor > o.Minor:
		return 1
	default:
		return 0
	}
}

// String renders the version as "major.minor".
func (v Version) String() string { return fmt.Sprintf("%d.%d", v.Major, v.Minor) }

// Call is a remote operation addressed by name with an encoded payload.
type Call struct {
	Op      string
	Payload []byte
}

// Handler runs a remote operation on the receiving node.
type Handler func(ctx context.Context, payload []byte) error

// Cluster is the contract of the membership and broadcast service, as seen
// from one node.
type Cluster interface {
	// LocalNode returns the node this view belongs to.
	LocalNode() Node

	// TopologyVersion returns the current topology version once the
	// membership exchange for it has completed.
	TopologyVersion(ctx context.Context) (Version, error)

	// AffinityReady blocks until the partition assignment of ver is ready
	// and rebalancing for it has settled on this node.
	AffinityReady(ctx context.Context, ver Version) error

	// Nodes returns the non-observer members of ver.
	Nodes(ctx context.Context, ver Version) ([]Node, error)

	// AffinityNodes returns the members of ver owning primary partitions of
	// the named cache.
	AffinityNodes(ctx context.Context, cacheName string, ver Version) ([]Node, error)

	// Ping reports whether the node is still alive.
	Ping(ctx context.Context, id NodeID) (bool, error)

	// Broadcast runs call on every node and waits for all of them. Per-node
	// failures are aggregated into a *BroadcastError.
	Broadcast(ctx context.Context, nodes []Node, call Call) error

	// Handle registers the local handler for op.
	Handle(op string, h Handler)
}

// IDs returns the ids of nodes.
func IDs(nodes []Node) []NodeID {
	out := make([]NodeID, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

// DataNodes filters out observer nodes.
func DataNodes(nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if !n.Observer {
			out = append(out, n)
		}
	}
	return out
}
