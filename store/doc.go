// Package store defines the aggregate backend interface.
//
// A backend stores the caches that hold structure headers and items, and
// gives each node a view of cluster membership and node-to-node calls.
// Managers take the cache, the cluster view and the backend (as the cache
// provider for separated sets) separately:
//
//	mgr, err := manager.New(c,
//	    manager.WithCluster(node),
//	    manager.WithStore(backend),
//	)
//
// # Available Backends
//
//   - store/memory: in-process grid for development and testing
//   - store/redis: Redis backend
package store
