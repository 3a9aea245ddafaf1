package ext

import (
	"context"
	"log/slog"

	"github.com/xraph/datastruct/header"
	"github.com/xraph/datastruct/id"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time.
type headerCreatedEntry struct {
	name string
	hook HeaderCreated
}

type headerConflictEntry struct {
	name string
	hook HeaderConflict
}

type structureRemovedEntry struct {
	name string
	hook StructureRemoved
}

type removalRetryingEntry struct {
	name string
	hook RemovalRetrying
}

type setDataPurgedEntry struct {
	name string
	hook SetDataPurged
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// Register must not be called concurrently with the emitters.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	headerCreated    []headerCreatedEntry
	headerConflict   []headerConflictEntry
	structureRemoved []structureRemovedEntry
	removalRetrying  []removalRetryingEntry
	setDataPurged    []setDataPurgedEntry
	shutdown         []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(HeaderCreated); ok {
		r.headerCreated = append(r.headerCreated, headerCreatedEntry{name, h})
	}
	if h, ok := e.(HeaderConflict); ok {
		r.headerConflict = append(r.headerConflict, headerConflictEntry{name, h})
	}
	if h, ok := e.(StructureRemoved); ok {
		r.structureRemoved = append(r.structureRemoved, structureRemovedEntry{name, h})
	}
	if h, ok := e.(RemovalRetrying); ok {
		r.removalRetrying = append(r.removalRetrying, removalRetryingEntry{name, h})
	}
	if h, ok := e.(SetDataPurged); ok {
		r.setDataPurged = append(r.setDataPurged, setDataPurgedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitHeaderCreated notifies all extensions that implement HeaderCreated.
func (r *Registry) EmitHeaderCreated(ctx context.Context, kind header.Kind, name string, structID id.ID) {
	for _, e := range r.headerCreated {
		if err := e.hook.OnHeaderCreated(ctx, kind, name, structID); err != nil {
			r.logHookError("OnHeaderCreated", e.name, err)
		}
	}
}

// EmitHeaderConflict notifies all extensions that implement HeaderConflict.
func (r *Registry) EmitHeaderConflict(ctx context.Context, kind header.Kind, name string, conflict error) {
	for _, e := range r.headerConflict {
		if err := e.hook.OnHeaderConflict(ctx, kind, name, conflict); err != nil {
			r.logHookError("OnHeaderConflict", e.name, err)
		}
	}
}

// EmitStructureRemoved notifies all extensions that implement StructureRemoved.
func (r *Registry) EmitStructureRemoved(ctx context.Context, kind header.Kind, name string, structID id.ID) {
	for _, e := range r.structureRemoved {
		if err := e.hook.OnStructureRemoved(ctx, kind, name, structID); err != nil {
			r.logHookError("OnStructureRemoved", e.name, err)
		}
	}
}

// EmitRemovalRetrying notifies all extensions that implement RemovalRetrying.
func (r *Registry) EmitRemovalRetrying(ctx context.Context, setID id.ID, attempt int, cause error) {
	for _, e := range r.removalRetrying {
		if err := e.hook.OnRemovalRetrying(ctx, setID, attempt, cause); err != nil {
			r.logHookError("OnRemovalRetrying", e.name, err)
		}
	}
}

// EmitSetDataPurged notifies all extensions that implement SetDataPurged.
func (r *Registry) EmitSetDataPurged(ctx context.Context, setID id.ID, removed int) {
	for _, e := range r.setDataPurged {
		if err := e.hook.OnSetDataPurged(ctx, setID, removed); err != nil {
			r.logHookError("OnSetDataPurged", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Hook errors are never propagated.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
