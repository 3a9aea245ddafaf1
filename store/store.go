// Package store defines the contract shared by backends. Each backend
// provides caches (cache.Provider) and, once joined, a cluster view
// (cluster.Cluster). Backends: Memory and Redis.
package store

import (
	"context"

	"github.com/xraph/datastruct/cache"
)

// Store is the aggregate backend interface.
// A single backend serves every named cache of a node, including the
// dedicated caches of separated sets.
type Store interface {
	cache.Provider

	// Close releases the backend's cluster membership. Clients owned by
	// the caller are left open.
	Close(ctx context.Context) error
}
