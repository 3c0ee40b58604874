package gateway

import (
	"context"
	"sync"

	"github.com/faaslocal/platform/pkg/metrics"
	"github.com/faaslocal/platform/pkg/platformerr"
	"github.com/faaslocal/platform/pkg/types"
)

// Provisioner is the subset of the Orchestrator client a Pool needs: the
// ability to bring up a worker for a function, one of two ways.
// ProvisionOne always creates a fresh, uniquely-suffixed container --
// used by every pool configured for more than one concurrent instance.
// EnsureOne returns the function's single named instance, creating it
// only if it isn't already running -- used when a function's
// max_capacity is 1, so it keeps one stable container identity across
// acquire/release/evict cycles instead of accumulating a new suffixed
// name every time the pool's lone slot is re-filled.
type Provisioner interface {
	ProvisionOne(ctx context.Context, functionName string) (*types.Worker, error)
	EnsureOne(ctx context.Context, functionName string) (*types.Worker, error)
}

// Pool bounds concurrent container usage for one function to
// maxCapacity: count tracks how many containers the pool currently
// knows about (busy or idle), the idle slice holds containers ready for
// immediate reuse in FIFO order, and the ledger tracks every worker by
// name so eviction can always find it. notify is closed and replaced on
// every state change so blocked acquirers wake whether capacity freed up
// (an eviction) or an idle worker became available (a release) -- a
// plain semaphore only wakes for the former and would starve the
// latter.
type Pool struct {
	functionName string
	provisioner  Provisioner
	maxCapacity  int

	mu     sync.Mutex
	count  int
	idle   []*types.Worker
	ledger map[string]*types.Worker
	notify chan struct{}
}

// NewPool constructs a Pool with room for maxCapacity concurrent
// containers.
func NewPool(functionName string, maxCapacity int, provisioner Provisioner) *Pool {
	if maxCapacity <= 0 {
		maxCapacity = 1
	}
	return &Pool{
		functionName: functionName,
		provisioner:  provisioner,
		maxCapacity:  maxCapacity,
		ledger:       make(map[string]*types.Worker),
		notify:       make(chan struct{}),
	}
}

// Acquire returns a ready worker, reusing an idle one if available or
// provisioning a fresh one if capacity allows. It blocks until a slot
// frees up or ctx is cancelled -- callers are expected to bound ctx with
// the function's configured acquire_timeout.
func (p *Pool) Acquire(ctx context.Context) (*types.Worker, error) {
	for {
		p.mu.Lock()
		if len(p.idle) > 0 {
			w := p.idle[0]
			p.idle = p.idle[1:]
			p.mu.Unlock()
			p.reportGauges()
			return w, nil
		}

		if p.count < p.maxCapacity {
			p.count++
			p.mu.Unlock()

			bringUp := p.provisioner.ProvisionOne
			if p.maxCapacity == 1 {
				bringUp = p.provisioner.EnsureOne
			}
			worker, err := bringUp(ctx, p.functionName)
			if err != nil {
				p.mu.Lock()
				p.count--
				p.mu.Unlock()
				p.signal()
				return nil, err
			}

			p.mu.Lock()
			p.ledger[worker.Name] = worker
			p.mu.Unlock()
			p.reportGauges()
			return worker, nil
		}

		wake := p.notify
		p.mu.Unlock()

		select {
		case <-wake:
			continue
		case <-ctx.Done():
			return nil, platformerr.Wrap(platformerr.KindAcquireTimeout, "no capacity available for "+p.functionName, ctx.Err())
		}
	}
}

// Release returns a worker to the idle queue for reuse.
func (p *Pool) Release(worker *types.Worker) {
	p.mu.Lock()
	if _, known := p.ledger[worker.Name]; known {
		p.idle = append(p.idle, worker)
	}
	p.mu.Unlock()
	p.reportGauges()
	p.signal()
}

// Evict removes a worker from the pool entirely -- its container is
// presumed dead -- and frees its capacity slot so a replacement can be
// provisioned.
func (p *Pool) Evict(worker *types.Worker) {
	p.mu.Lock()
	_, known := p.ledger[worker.Name]
	delete(p.ledger, worker.Name)
	if known {
		p.count--
	}
	p.mu.Unlock()
	p.reportGauges()
	p.signal()
}

// Names returns the container names of every worker currently in the
// ledger, for heartbeating.
func (p *Pool) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.ledger))
	for name := range p.ledger {
		names = append(names, name)
	}
	return names
}

func (p *Pool) signal() {
	p.mu.Lock()
	close(p.notify)
	p.notify = make(chan struct{})
	p.mu.Unlock()
}

func (p *Pool) reportGauges() {
	p.mu.Lock()
	size := len(p.ledger)
	idle := len(p.idle)
	p.mu.Unlock()
	metrics.PoolSize.WithLabelValues(p.functionName).Set(float64(size))
	metrics.PoolIdle.WithLabelValues(p.functionName).Set(float64(idle))
}
