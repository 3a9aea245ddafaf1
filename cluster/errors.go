package cluster

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrTopologyChanged signals that an operation failed because cluster
	// membership changed while it was in flight.
	ErrTopologyChanged = errors.New("cluster: topology changed")

	// ErrNoHandler is returned when a target has no handler for an op.
	ErrNoHandler = errors.New("cluster: no handler registered")
)

// NodeLeftError reports that a target node left before answering.
type NodeLeftError struct {
	Node NodeID
}

func (e *NodeLeftError) Error() string {
	return fmt.Sprintf("cluster: node %s left the topology", e.Node)
}

// Is makes NodeLeftError match ErrTopologyChanged.
func (e *NodeLeftError) Is(target error) bool { return target == ErrTopologyChanged }

// BroadcastError aggregates per-node failures of a broadcast call.
type BroadcastError struct {
	Op       string
	Failures map[NodeID]error
}

func (e *BroadcastError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	var b strings.Builder
	fmt.Fprintf(&b, "cluster: broadcast %s failed on %d node(s):", e.Op, len(e.Failures))
	for _, id := range ids {
		fmt.Fprintf(&b, " [%s: %v]", id, e.Failures[NodeID(id)])
	}
	return b.String()
}

// Unwrap exposes every per-node failure to errors.Is / errors.As.
func (e *BroadcastError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		out = append(out, err)
	}
	return out
}

// IsTopologyChange reports whether any error in err's chain is a
// topology-change signal.
func IsTopologyChange(err error) bool {
	return errors.Is(err, ErrTopologyChanged)
}
