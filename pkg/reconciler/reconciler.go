// Package reconciler runs the idle-reap ticker that periodically asks
// the Orchestrator to sweep containers whose last access has aged past
// the configured idle timeout.
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/faaslocal/platform/pkg/log"
	"github.com/faaslocal/platform/pkg/metrics"
)

// Reaper is the subset of the Orchestrator the reconciler depends on.
type Reaper interface {
	Reap(ctx context.Context)
}

// Reconciler drives one Reaper on a fixed interval. The interval should
// be set well below the reaper's own idle timeout -- a container must
// survive several ticks of inactivity before it is swept, not just one.
type Reconciler struct {
	reaper   Reaper
	interval time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
}

// New constructs a Reconciler. interval defaults to 30s when zero.
func New(reaper Reaper, interval time.Duration) *Reconciler {
	if interval == 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{
		reaper:   reaper,
		interval: interval,
		logger:   log.WithComponent("reconciler"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the reaping loop in its own goroutine.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop halts the reaping loop.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.stopCh:
		// already stopped
	default:
		close(r.stopCh)
	}
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("idle reaper started")

	for {
		select {
		case <-ticker.C:
			r.tick()
		case <-r.stopCh:
			r.logger.Info().Msg("idle reaper stopped")
			return
		}
	}
}

func (r *Reconciler) tick() {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.interval)
	defer cancel()

	r.reaper.Reap(ctx)
}
