// Package datastruct coordinates named distributed data structures (queues
// and sets) whose data lives as entries in a partitioned, replicated cache.
//
// The core guarantees exactly-once creation of a named structure across
// racing nodes, fans structural changes (capacity, removal) out to every
// node holding a local handle, and tears a structure's data down safely
// while cluster membership shifts underneath it.
//
// # Quick Start
//
//	grid := memory.NewGrid()
//	node := grid.Join("node-1", false)
//
//	c, err := node.Cache(ctx, "structs")
//	m, err := manager.New(c,
//	    manager.WithCluster(node),
//	    manager.WithStore(node),
//	)
//	if err := m.Start(ctx); err != nil { ... }
//
//	q, err := m.Queue(ctx, "jobs", 100, false, true)
//	s, err := m.Set(ctx, "seen", false, true, false)
//
// # Architecture
//
// The root package holds configuration and sentinel errors. Collaborators
// are described by interfaces: [cache.Cache] for the backing store and
// [cluster.Cluster] for membership and broadcast calls. Two backends ship
// with the module: an in-process grid (store/memory) and Redis
// (store/redis).
//
// Every structure is identified by a header stored under a key derived from
// its name. The header id, not the name, is the durable handle used by the
// registry, the change listener and the removal protocol.
package datastruct
