package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/xraph/datastruct/ext"
	"github.com/xraph/datastruct/header"
	"github.com/xraph/datastruct/id"
)

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnHeaderCreated(_ context.Context, _ header.Kind, _ string, _ id.ID) error {
	e.calls = append(e.calls, "OnHeaderCreated")
	return nil
}

func (e *allHooksExt) OnHeaderConflict(_ context.Context, _ header.Kind, _ string, _ error) error {
	e.calls = append(e.calls, "OnHeaderConflict")
	return nil
}

func (e *allHooksExt) OnStructureRemoved(_ context.Context, _ header.Kind, _ string, _ id.ID) error {
	e.calls = append(e.calls, "OnStructureRemoved")
	return nil
}

func (e *allHooksExt) OnRemovalRetrying(_ context.Context, _ id.ID, _ int, _ error) error {
	e.calls = append(e.calls, "OnRemovalRetrying")
	return nil
}

func (e *allHooksExt) OnSetDataPurged(_ context.Context, _ id.ID, _ int) error {
	e.calls = append(e.calls, "OnSetDataPurged")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// removalOnlyExt only implements the removal hook.
type removalOnlyExt struct {
	removed []string
}

func (e *removalOnlyExt) Name() string { return "removal-only" }

func (e *removalOnlyExt) OnStructureRemoved(_ context.Context, _ header.Kind, name string, _ id.ID) error {
	e.removed = append(e.removed, name)
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnHeaderCreated(_ context.Context, _ header.Kind, _ string, _ id.ID) error {
	return errors.New("boom")
}

func (e *failingExt) OnShutdown(_ context.Context) error {
	return errors.New("shutdown boom")
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRegistry_RegisterDiscoversInterfaces(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	r.Register(&allHooksExt{})

	if got := len(r.Extensions()); got != 1 {
		t.Fatalf("expected 1 extension, got %d", got)
	}
	if got := r.Extensions()[0].Name(); got != "all-hooks" {
		t.Fatalf("expected name 'all-hooks', got %q", got)
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	ro := &removalOnlyExt{}
	r.Register(all)
	r.Register(ro)

	ctx := context.Background()
	setID := id.NewSetID()

	r.EmitStructureRemoved(ctx, header.KindSet, "s1", setID)
	if len(all.calls) != 1 || all.calls[0] != "OnStructureRemoved" {
		t.Fatalf("all: expected [OnStructureRemoved], got %v", all.calls)
	}
	if len(ro.removed) != 1 || ro.removed[0] != "s1" {
		t.Fatalf("ro: expected [s1], got %v", ro.removed)
	}

	r.EmitHeaderCreated(ctx, header.KindSet, "s2", setID)
	if len(all.calls) != 2 || all.calls[1] != "OnHeaderCreated" {
		t.Fatalf("all: expected OnHeaderCreated as 2nd, got %v", all.calls)
	}
	if len(ro.removed) != 1 {
		t.Fatalf("ro: should still have 1 call, got %v", ro.removed)
	}
}

func TestRegistry_AllHooksFire(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	qid := id.NewQueueID()
	sid := id.NewSetID()

	r.EmitHeaderCreated(ctx, header.KindQueue, "q", qid)
	r.EmitHeaderConflict(ctx, header.KindQueue, "q", errors.New("conflict"))
	r.EmitStructureRemoved(ctx, header.KindQueue, "q", qid)
	r.EmitRemovalRetrying(ctx, sid, 1, errors.New("churn"))
	r.EmitSetDataPurged(ctx, sid, 10)
	r.EmitShutdown(ctx)

	expected := []string{
		"OnHeaderCreated", "OnHeaderConflict", "OnStructureRemoved",
		"OnRemovalRetrying", "OnSetDataPurged", "OnShutdown",
	}
	if len(all.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(all.calls), all.calls)
	}
	for i, want := range expected {
		if all.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, all.calls[i], want)
		}
	}
}

func TestRegistry_HookErrorsDoNotStopFanOut(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(&failingExt{})
	r.Register(all)

	ctx := context.Background()
	r.EmitHeaderCreated(ctx, header.KindSet, "s", id.NewSetID())
	r.EmitShutdown(ctx)

	if len(all.calls) != 2 {
		t.Fatalf("expected later extension to see both events, got %v", all.calls)
	}
}

func TestRegistry_Empty(t *testing.T) {
	r := ext.NewRegistry(nil)
	r.EmitShutdown(context.Background())
	if len(r.Extensions()) != 0 {
		t.Fatal("expected no extensions")
	}
}
