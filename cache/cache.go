// Package cache describes the key/value cache that physically stores
// structure headers and items.
//
// The cache engine itself (storage, replication, transactions) is a
// collaborator: this package only fixes the contract the coordination core
// consumes. Implementations live under store/.
package cache

import "context"

// EventType classifies a change event.
type EventType uint8

const (
	EventCreated EventType = iota + 1
	EventUpdated
	EventRemoved
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventUpdated:
		return "updated"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event describes one committed mutation. OldValue is nil for creations;
// Value is nil for removals.
type Event struct {
	Key      string
	OldValue any
	Value    any
	Type     EventType
}

// Filter selects which keys a subscription receives.
type Filter func(key string) bool

// Listener receives batches of events. Events for the same key arrive in
// commit order; there is no ordering across keys. Listeners must not call
// back into the subscription they are attached to.
type Listener func(events []Event)

// Subscription is a live change-event stream.
type Subscription interface {
	// Cancel stops delivery. Safe to call multiple times.
	Cancel()
}

// PeekMode selects which locally held entries LocalKeys returns.
type PeekMode uint8

const (
	// PeekPrimary returns keys for which this node owns the primary copy.
	PeekPrimary PeekMode = iota + 1
	// PeekBackup returns keys for which this node holds a backup copy.
	PeekBackup
	// PeekAll returns every locally held key.
	PeekAll
)

// Atomicity is the write mode of a cache.
type Atomicity uint8

const (
	// Atomic caches support single-key compare-and-set only.
	Atomic Atomicity = iota + 1
	// Transactional caches additionally support key locking (see Locker).
	Transactional
)

// Cache is the contract of the backing key/value store.
type Cache interface {
	// Name returns the cache name. Broadcast calls carry it so that nodes
	// route them to the right manager.
	Name() string

	// Atomicity reports the cache write mode.
	Atomicity() Atomicity

	// GetAndPutIfAbsent stores value under key unless a value exists, and
	// returns the previous value (nil if the put happened).
	GetAndPutIfAbsent(ctx context.Context, key string, value any) (any, error)

	// Get returns the value under key, or nil if absent.
	Get(ctx context.Context, key string) (any, error)

	// Put stores value under key unconditionally.
	Put(ctx context.Context, key string, value any) error

	// Replace stores value under key only if the current value equals old.
	Replace(ctx context.Context, key string, old, value any) (bool, error)

	// Remove deletes key and reports whether it existed.
	Remove(ctx context.Context, key string) (bool, error)

	// RemoveAll deletes all given keys. Missing keys are ignored.
	RemoveAll(ctx context.Context, keys []string) error

	// Subscribe installs a cluster-wide change listener.
	Subscribe(ctx context.Context, filter Filter, listener Listener) (Subscription, error)

	// LocalKeys returns the keys this node holds in the given role.
	LocalKeys(ctx context.Context, mode PeekMode) ([]string, error)
}

// Locker is implemented by transactional caches.
type Locker interface {
	// Lock acquires an exclusive cluster-wide lock on key. The returned
	// function releases it.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Provider creates and destroys dedicated caches, used by separated sets.
type Provider interface {
	// Cache returns the named cache, creating it on first use.
	Cache(ctx context.Context, name string) (Cache, error)

	// Destroy drops the named cache and all of its data.
	Destroy(ctx context.Context, name string) error
}
