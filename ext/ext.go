// Package ext defines the extension system for datastruct.
// Extensions are notified of structure lifecycle events (header created,
// structure removed, purge retried, etc.) and can react to them: logging,
// metrics, auditing.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"

	"github.com/xraph/datastruct/header"
	"github.com/xraph/datastruct/id"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Header lifecycle hooks
// ──────────────────────────────────────────────────

// HeaderCreated is called after this node stored a new header.
type HeaderCreated interface {
	OnHeaderCreated(ctx context.Context, kind header.Kind, name string, structID id.ID) error
}

// HeaderConflict is called when a create request did not match the
// configuration of the existing header.
type HeaderConflict interface {
	OnHeaderConflict(ctx context.Context, kind header.Kind, name string, err error) error
}

// ──────────────────────────────────────────────────
// Removal hooks
// ──────────────────────────────────────────────────

// StructureRemoved is called when this node learns that a structure's
// header was removed.
type StructureRemoved interface {
	OnStructureRemoved(ctx context.Context, kind header.Kind, name string, structID id.ID) error
}

// RemovalRetrying is called when a set data removal round failed because
// of a topology change and will be repeated.
type RemovalRetrying interface {
	OnRemovalRetrying(ctx context.Context, setID id.ID, attempt int, err error) error
}

// SetDataPurged is called on each node after it purged its primary share
// of a removed set's items.
type SetDataPurged interface {
	OnSetDataPurged(ctx context.Context, setID id.ID, removed int) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called when the manager stops.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
