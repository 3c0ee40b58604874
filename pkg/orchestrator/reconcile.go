package orchestrator

import (
	"context"
	"time"

	"github.com/faaslocal/platform/pkg/metrics"
	"github.com/faaslocal/platform/pkg/runtime"
	"github.com/faaslocal/platform/pkg/types"
)

// StartupReconcile runs once at boot. Any container already running and
// carrying the product label is adopted into the last-access map with a
// fresh timestamp (so it survives at least one idle interval before the
// reaper reconsiders it); anything else carrying the label is force-
// removed rather than left in an indeterminate state.
func (o *Orchestrator) StartupReconcile(ctx context.Context) error {
	val, err := o.run(ctx, func() (any, error) {
		return o.driver.List(ctx, map[string]string{runtime.CreatedByLabel: runtime.CreatedByValue})
	})
	if err != nil {
		return err
	}
	list, _ := val.([]runtime.Inspection)

	stateCounts := make(map[types.ContainerState]int)
	for _, insp := range list {
		stateCounts[insp.State]++

		if insp.State == types.ContainerStateRunning {
			o.touch(insp.Name)
			o.logger.Info().Str("container", insp.Name).Msg("adopted running container at startup")
			continue
		}
		if _, err := o.run(ctx, func() (any, error) {
			return nil, o.driver.Remove(ctx, insp.Name, true)
		}); err != nil {
			o.logger.Warn().Err(err).Str("container", insp.Name).Msg("failed to remove non-running container during startup reconciliation")
			continue
		}
		o.logger.Info().Str("container", insp.Name).Msg("removed non-running container at startup")
	}

	for state, count := range stateCounts {
		metrics.ContainersTotal.WithLabelValues(string(state)).Set(float64(count))
	}
	return nil
}

// Reap performs a single idle sweep: any container whose last recorded
// access is older than the configured idle timeout is stopped and
// removed. A failure on one container is logged and does not abort the
// sweep over the rest.
func (o *Orchestrator) Reap(ctx context.Context) {
	cutoff := time.Now().Add(-o.cfg.IdleTimeout)

	o.accessMu.Lock()
	candidates := make([]string, 0, len(o.lastAccess))
	for name, ts := range o.lastAccess {
		if ts.Before(cutoff) {
			candidates = append(candidates, name)
		}
	}
	o.accessMu.Unlock()

	for _, name := range candidates {
		if _, err := o.run(ctx, func() (any, error) {
			return nil, o.driver.Remove(ctx, name, true)
		}); err != nil {
			o.logger.Warn().Err(err).Str("container", name).Msg("idle reap failed")
			continue
		}
		o.forget(name)
		metrics.ContainersReapedTotal.WithLabelValues(functionFromName(name)).Inc()
		o.logger.Info().Str("container", name).Msg("reaped idle container")
	}
}
