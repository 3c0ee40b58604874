package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/faaslocal/platform/pkg/log"
)

// OrchestratorClient is the subset of the Orchestrator's HTTP client a
// Janitor needs.
type OrchestratorClient interface {
	Heartbeat(ctx context.Context, functionName string, containerNames []string) error
}

// Janitor periodically reports every pool's live container names to the
// Orchestrator, so containers a function's pool is still using survive
// the idle reaper even between invocations.
type Janitor struct {
	pools    map[string]*Pool
	client   OrchestratorClient
	interval time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
}

// NewJanitor constructs a Janitor. interval defaults to 5s when zero.
func NewJanitor(pools map[string]*Pool, client OrchestratorClient, interval time.Duration) *Janitor {
	if interval == 0 {
		interval = 5 * time.Second
	}
	return &Janitor{
		pools:    pools,
		client:   client,
		interval: interval,
		logger:   log.WithComponent("janitor"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the heartbeat loop in its own goroutine.
func (j *Janitor) Start() {
	go j.run()
}

// Stop halts the heartbeat loop.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	select {
	case <-j.stopCh:
	default:
		close(j.stopCh)
	}
}

func (j *Janitor) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info().Dur("interval", j.interval).Msg("heartbeat janitor started")

	for {
		select {
		case <-ticker.C:
			j.beat()
		case <-j.stopCh:
			j.logger.Info().Msg("heartbeat janitor stopped")
			return
		}
	}
}

func (j *Janitor) beat() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()

	for name, pool := range j.pools {
		names := pool.Names()
		if len(names) == 0 {
			continue
		}
		if err := j.client.Heartbeat(ctx, name, names); err != nil {
			j.logger.Warn().Err(err).Str("function", name).Msg("heartbeat failed")
		}
	}
}
