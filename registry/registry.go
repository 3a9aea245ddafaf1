// Package registry keeps the node-local handle registries that map a
// structure id to the handle serving it.
package registry

import (
	"sync"

	"github.com/xraph/datastruct/id"
)

// Registry is a concurrent map from structure id to handle. The zero value
// is ready to use.
type Registry[H comparable] struct {
	m sync.Map
}

// Resolve returns the handle registered for structID.
func (r *Registry[H]) Resolve(structID id.ID) (H, bool) {
	v, ok := r.m.Load(structID)
	if !ok {
		var zero H
		return zero, false
	}
	return v.(H), true
}

// Register stores h unless a handle is already registered, and returns the
// handle that ended up registered.
func (r *Registry[H]) Register(structID id.ID, h H) (actual H, loaded bool) {
	v, loaded := r.m.LoadOrStore(structID, h)
	return v.(H), loaded
}

// Remove unregisters and returns the handle for structID.
func (r *Registry[H]) Remove(structID id.ID) (H, bool) {
	v, ok := r.m.LoadAndDelete(structID)
	if !ok {
		var zero H
		return zero, false
	}
	return v.(H), true
}

// RemoveIf unregisters structID only while it still maps to h.
func (r *Registry[H]) RemoveIf(structID id.ID, h H) bool {
	return r.m.CompareAndDelete(structID, h)
}

// Range calls fn for each registered handle until fn returns false.
func (r *Registry[H]) Range(fn func(id.ID, H) bool) {
	r.m.Range(func(k, v any) bool {
		return fn(k.(id.ID), v.(H))
	})
}

// Len returns the number of registered handles.
func (r *Registry[H]) Len() int {
	n := 0
	r.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
