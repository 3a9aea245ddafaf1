// Package cluster describes the membership and remote-call services the
// coordination core consumes.
//
// # Topology versions
//
// Every membership change produces a new [Version]. The removal protocol
// captures one version per round, addresses its broadcasts to the members
// of that version and re-reads the version afterwards; a mismatch means the
// round raced a join or leave and must be repeated.
//
// # Nodes
//
// Each participant is a [Node]. Observer nodes (clients, daemons) take part
// in membership but hold no data and are never broadcast targets.
//
// # Churn errors
//
// A broadcast that fails because a target left mid-call reports an error
// matching [ErrTopologyChanged] (see [NodeLeftError]). Callers inspect the
// whole chain with [IsTopologyChange]; per-node failures are aggregated in
// [BroadcastError].
//
// The sub-packages under store/ provide an in-process grid and a Redis
// implementation.
package cluster
