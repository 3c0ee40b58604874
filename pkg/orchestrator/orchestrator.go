// Package orchestrator owns container lifecycle: ensure/provision/
// heartbeat over the Container Driver, startup reconciliation at boot,
// and ongoing idle reaping (the ticking half of which lives in
// pkg/reconciler, driving this package's Reap method).
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/faaslocal/platform/pkg/log"
	"github.com/faaslocal/platform/pkg/metrics"
	"github.com/faaslocal/platform/pkg/platformerr"
	"github.com/faaslocal/platform/pkg/runtime"
	"github.com/faaslocal/platform/pkg/types"
)

// Config controls the Orchestrator's behaviour. Image and environment
// for any given function are supplied per-call by the Gateway (which
// reads them from the Registry); the Orchestrator itself is
// registry-agnostic.
type Config struct {
	InvocationPort    int
	InvocationPath    string
	ReadinessTimeout  time.Duration // default 30s
	ReadinessInterval time.Duration // default 500ms
	IdleTimeout       time.Duration // default 5m, the reaper's threshold
}

// Orchestrator owns the container_name -> last_access_ts map and
// serialises create/create races per container name via a map-of-locks.
type Orchestrator struct {
	driver     runtime.Driver
	offloader  *runtime.Offloader
	cfg        Config
	logger     zerolog.Logger

	namesMu sync.Mutex
	names   map[string]*sync.Mutex

	accessMu   sync.Mutex
	lastAccess map[string]time.Time
}

// New constructs an Orchestrator over driver, which it does not own the
// lifetime of (callers close it).
func New(driver runtime.Driver, offloader *runtime.Offloader, cfg Config) *Orchestrator {
	if cfg.ReadinessTimeout == 0 {
		cfg.ReadinessTimeout = 30 * time.Second
	}
	if cfg.ReadinessInterval == 0 {
		cfg.ReadinessInterval = 500 * time.Millisecond
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	return &Orchestrator{
		driver:     driver,
		offloader:  offloader,
		cfg:        cfg,
		logger:     log.WithComponent("orchestrator"),
		names:      make(map[string]*sync.Mutex),
		lastAccess: make(map[string]time.Time),
	}
}

func (o *Orchestrator) nameLock(name string) *sync.Mutex {
	o.namesMu.Lock()
	defer o.namesMu.Unlock()
	m, ok := o.names[name]
	if !ok {
		m = &sync.Mutex{}
		o.names[name] = m
	}
	return m
}

func (o *Orchestrator) touch(name string) {
	o.accessMu.Lock()
	o.lastAccess[name] = time.Now()
	o.accessMu.Unlock()
}

func (o *Orchestrator) forget(name string) {
	o.accessMu.Lock()
	delete(o.lastAccess, name)
	o.accessMu.Unlock()

	o.namesMu.Lock()
	delete(o.names, name)
	o.namesMu.Unlock()
}

func ensureName(function string) string {
	return "lambda-" + function
}

func provisionName(function string) string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return fmt.Sprintf("lambda-%s-%s", function, hex.EncodeToString(b))
}

// functionFromName recovers the function name encoded in a container
// name by ensureName/provisionName, so per-function metrics and logs
// don't need a second name->function map.
func functionFromName(name string) string {
	name = strings.TrimPrefix(name, "lambda-")
	if idx := strings.LastIndex(name, "-"); idx != -1 && len(name)-idx-1 == 6 {
		if _, err := hex.DecodeString(name[idx+1:]); err == nil {
			return name[:idx]
		}
	}
	return name
}

func (o *Orchestrator) run(ctx context.Context, fn func() (any, error)) (any, error) {
	return o.offloader.Submit(ctx, fn)
}

// Ensure returns the host at which a single named instance of
// functionName is reachable, creating it if necessary.
func (o *Orchestrator) Ensure(ctx context.Context, functionName, image string, env map[string]string) (*types.Worker, error) {
	name := ensureName(functionName)
	lock := o.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	worker, err := o.ensureLocked(ctx, name, functionName, image, env)
	if err != nil {
		return nil, err
	}
	o.touch(name)
	return worker, nil
}

func (o *Orchestrator) ensureLocked(ctx context.Context, name, functionName, image string, env map[string]string) (*types.Worker, error) {
	insp, err := o.inspect(ctx, name)
	if err != nil && err != runtime.ErrNotFound {
		return nil, platformerr.Wrap(platformerr.KindEngineError, "inspect failed", err)
	}

	switch {
	case insp == nil:
		return o.createAndAwaitReady(ctx, name, functionName, image, env)

	case insp.State == types.ContainerStateRunning:
		return o.workerFromInspection(insp), nil

	case insp.State == types.ContainerStateComplete || insp.State == types.ContainerStateFailed:
		if _, err := o.run(ctx, func() (any, error) {
			return nil, o.driver.Start(ctx, name)
		}); err != nil {
			return nil, platformerr.Wrap(platformerr.KindEngineError, "restart failed", err)
		}
		return o.awaitReady(ctx, name, functionName)

	default:
		if _, err := o.run(ctx, func() (any, error) {
			return nil, o.driver.Remove(ctx, name, true)
		}); err != nil {
			return nil, platformerr.Wrap(platformerr.KindEngineError, "force-remove failed", err)
		}
		return o.createAndAwaitReady(ctx, name, functionName, image, env)
	}
}

func (o *Orchestrator) createAndAwaitReady(ctx context.Context, name, functionName, image string, env map[string]string) (*types.Worker, error) {
	spec := runtime.ContainerSpec{
		Name:  name,
		Image: image,
		Env:   env,
		Labels: map[string]string{
			runtime.FunctionLabel: functionName,
		},
	}

	val, err := o.run(ctx, func() (any, error) {
		return o.driver.CreateAndStart(ctx, spec)
	})
	if err != nil {
		if err == runtime.ErrImageNotFound {
			return nil, platformerr.New(platformerr.KindFunctionNotFound, "image not found: "+image)
		}
		if err == runtime.ErrNameConflict {
			// Lost a race against another caller or our own startup
			// reconciliation; re-inspect and fall through to the
			// matching branch instead of failing outright.
			return o.ensureLocked(ctx, name, functionName, image, env)
		}
		return nil, platformerr.Wrap(platformerr.KindEngineError, "create failed", err)
	}

	metrics.ContainersCreatedTotal.WithLabelValues(functionName).Inc()
	_ = val

	return o.awaitReady(ctx, name, functionName)
}

func (o *Orchestrator) awaitReady(ctx context.Context, name, functionName string) (*types.Worker, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ReadinessDuration, functionName)

	insp, err := o.waitReady(ctx, name)
	if err != nil {
		return nil, err
	}
	return o.workerFromInspection(insp), nil
}

func (o *Orchestrator) workerFromInspection(insp *runtime.Inspection) *types.Worker {
	return &types.Worker{
		ID:        insp.ID,
		Name:      insp.Name,
		IP:        insp.IP,
		Port:      o.cfg.InvocationPort,
		CreatedAt: time.Now(),
	}
}

func (o *Orchestrator) inspect(ctx context.Context, name string) (*runtime.Inspection, error) {
	val, err := o.run(ctx, func() (any, error) {
		return o.driver.Inspect(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	insp, _ := val.(*runtime.Inspection)
	return insp, nil
}

// Provision creates count fresh containers with unique suffixed names,
// all-or-nothing: any failure after earlier successes tears down every
// container this call created.
func (o *Orchestrator) Provision(ctx context.Context, functionName string, count int, image string, env map[string]string) ([]*types.Worker, error) {
	created := make([]*types.Worker, 0, count)
	names := make([]string, 0, count)

	rollback := func() {
		for _, n := range names {
			_, _ = o.run(context.Background(), func() (any, error) {
				return nil, o.driver.Remove(context.Background(), n, true)
			})
			o.forget(n)
		}
	}

	for i := 0; i < count; i++ {
		name := provisionName(functionName)
		names = append(names, name)
		worker, err := o.createAndAwaitReady(ctx, name, functionName, image, env)
		if err != nil {
			rollback()
			return nil, err
		}
		o.touch(name)
		created = append(created, worker)
	}

	return created, nil
}

// Heartbeat touches last-access for every listed container name. Names
// unknown to the Orchestrator are accepted without error and recorded
// like any other.
func (o *Orchestrator) Heartbeat(functionName string, containerNames []string) {
	for _, n := range containerNames {
		o.touch(n)
	}
	_ = functionName
}
