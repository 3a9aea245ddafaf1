package manager

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/datastruct/backoff"
	"github.com/xraph/datastruct/cluster"
	"github.com/xraph/datastruct/id"
)

// RemoveSetData blocks every node's handle of setID and deletes the set's
// items on their primary owners. Rounds are repeated until one completes
// under an unchanged topology version. Separated sets are only blocked;
// their dedicated cache is dropped by the caller.
func (m *Manager) RemoveSetData(ctx context.Context, setID id.ID, separated bool) (err error) {
	ctx, span := m.tracer.Start(ctx, "datastruct.set.remove_data",
		trace.WithAttributes(
			attribute.String("datastruct.set_id", setID.String()),
			attribute.String("datastruct.cache", m.cache.Name()),
			attribute.Bool("datastruct.separated", separated),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	if m.cluster == nil {
		if err := m.blockSetLocal(ctx, setID); err != nil {
			return err
		}
		if separated {
			return nil
		}
		return m.purgeSetLocal(ctx, setID)
	}

	bo := backoff.NewExponentialWithJitter(m.config.RetryInitialDelay, m.config.RetryMaxDelay)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		ver, err := m.cluster.TopologyVersion(ctx)
		if err != nil {
			return fmt.Errorf("datastruct/manager: read topology version: %w", err)
		}
		span.AddEvent("round", trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.String("topology_version", ver.String()),
		))

		targets, err := m.removalRound(ctx, setID, separated, ver)
		if err != nil {
			if !m.retryable(ctx, err, targets) {
				return err
			}
			m.roundFailed(ctx, setID, attempt, err)
			if !backoff.Sleep(ctx.Done(), bo.Delay(attempt)) {
				return ctx.Err()
			}
			continue
		}

		cur, err := m.cluster.TopologyVersion(ctx)
		if err != nil {
			return fmt.Errorf("datastruct/manager: read topology version: %w", err)
		}
		if cur.Compare(ver) == 0 {
			span.SetAttributes(attribute.Int("datastruct.rounds", attempt))
			return nil
		}
		m.roundFailed(ctx, setID, attempt, fmt.Errorf("topology moved from %s to %s: %w", ver, cur, cluster.ErrTopologyChanged))
	}
}

// removalRound runs the block phase and, for shared sets, the purge phase
// against the members of ver. It returns every node it addressed.
func (m *Manager) removalRound(ctx context.Context, setID id.ID, separated bool, ver cluster.Version) ([]cluster.Node, error) {
	// In-flight calls complete even if the caller gives up.
	callCtx := context.WithoutCancel(ctx)

	nodes, err := m.cluster.Nodes(ctx, ver)
	if err != nil {
		return nil, fmt.Errorf("datastruct/manager: list nodes of %s: %w", ver, err)
	}
	targets := nodes

	err = m.broadcast(callCtx, OpBlockSet, nodes, BlockSetRequest{CacheName: m.cache.Name(), SetID: setID})
	if err != nil {
		return targets, fmt.Errorf("datastruct/manager: block set %s: %w", setID, err)
	}
	if separated {
		return targets, nil
	}

	owners, err := m.cluster.AffinityNodes(ctx, m.cache.Name(), ver)
	if err != nil {
		return targets, fmt.Errorf("datastruct/manager: list affinity nodes of %s: %w", ver, err)
	}
	targets = append(targets, owners...)

	err = m.broadcast(callCtx, OpPurgeSet, owners, PurgeSetRequest{
		CacheName:       m.cache.Name(),
		SetID:           setID,
		TopologyVersion: ver,
	})
	if err != nil {
		return targets, fmt.Errorf("datastruct/manager: purge set %s: %w", setID, err)
	}
	return targets, nil
}

// retryable reports whether a failed round raced a topology change: the
// error says so, or one of the addressed nodes is gone.
func (m *Manager) retryable(ctx context.Context, err error, targets []cluster.Node) bool {
	if cluster.IsTopologyChange(err) {
		return true
	}
	for _, n := range targets {
		alive, perr := m.cluster.Ping(ctx, n.ID)
		if perr == nil && !alive {
			return true
		}
	}
	return false
}

func (m *Manager) roundFailed(ctx context.Context, setID id.ID, attempt int, cause error) {
	m.logger.Debug("set removal round raced a topology change, retrying",
		slog.String("set_id", setID.String()),
		slog.Int("attempt", attempt),
		slog.String("cause", cause.Error()),
	)
	m.extensions.EmitRemovalRetrying(ctx, setID, attempt, cause)
}
