package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/datastruct/ext"
	"github.com/xraph/datastruct/header"
	"github.com/xraph/datastruct/id"
)

// Compile-time interface checks.
var (
	_ ext.Extension        = (*MetricsExtension)(nil)
	_ ext.HeaderCreated    = (*MetricsExtension)(nil)
	_ ext.HeaderConflict   = (*MetricsExtension)(nil)
	_ ext.StructureRemoved = (*MetricsExtension)(nil)
	_ ext.RemovalRetrying  = (*MetricsExtension)(nil)
	_ ext.SetDataPurged    = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/datastruct/observability"

// MetricsExtension records structure lifecycle counters. Register it as a
// manager extension to track header creation, configuration conflicts,
// removals, removal retries and purged set items.
type MetricsExtension struct {
	HeaderCreated    metric.Int64Counter
	HeaderConflict   metric.Int64Counter
	StructureRemoved metric.Int64Counter
	RemovalRetried   metric.Int64Counter
	SetItemsPurged   metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	// Instrument errors fall back to noop instruments.
	created, _ := meter.Int64Counter("datastruct.header.created",
		metric.WithDescription("Headers stored by this node"))
	conflict, _ := meter.Int64Counter("datastruct.header.conflict",
		metric.WithDescription("Create requests rejected for configuration mismatch"))
	removed, _ := meter.Int64Counter("datastruct.structure.removed",
		metric.WithDescription("Structure removals observed by this node"))
	retried, _ := meter.Int64Counter("datastruct.removal.retried",
		metric.WithDescription("Set data removal rounds repeated after a topology change"))
	purged, _ := meter.Int64Counter("datastruct.set.items_purged",
		metric.WithDescription("Set item entries purged by this node"),
		metric.WithUnit("{item}"))

	return &MetricsExtension{
		HeaderCreated:    created,
		HeaderConflict:   conflict,
		StructureRemoved: removed,
		RemovalRetried:   retried,
		SetItemsPurged:   purged,
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func kindAttr(kind header.Kind) metric.AddOption {
	return metric.WithAttributes(attribute.String("kind", kind.String()))
}

// OnHeaderCreated implements ext.HeaderCreated.
func (m *MetricsExtension) OnHeaderCreated(ctx context.Context, kind header.Kind, _ string, _ id.ID) error {
	m.HeaderCreated.Add(ctx, 1, kindAttr(kind))
	return nil
}

// OnHeaderConflict implements ext.HeaderConflict.
func (m *MetricsExtension) OnHeaderConflict(ctx context.Context, kind header.Kind, _ string, _ error) error {
	m.HeaderConflict.Add(ctx, 1, kindAttr(kind))
	return nil
}

// OnStructureRemoved implements ext.StructureRemoved.
func (m *MetricsExtension) OnStructureRemoved(ctx context.Context, kind header.Kind, _ string, _ id.ID) error {
	m.StructureRemoved.Add(ctx, 1, kindAttr(kind))
	return nil
}

// OnRemovalRetrying implements ext.RemovalRetrying.
func (m *MetricsExtension) OnRemovalRetrying(ctx context.Context, _ id.ID, _ int, _ error) error {
	m.RemovalRetried.Add(ctx, 1)
	return nil
}

// OnSetDataPurged implements ext.SetDataPurged.
func (m *MetricsExtension) OnSetDataPurged(ctx context.Context, _ id.ID, removed int) error {
	m.SetItemsPurged.Add(ctx, int64(removed))
	return nil
}
