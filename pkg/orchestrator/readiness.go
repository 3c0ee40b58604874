package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/faaslocal/platform/pkg/health"
	"github.com/faaslocal/platform/pkg/platformerr"
	"github.com/faaslocal/platform/pkg/runtime"
	"github.com/faaslocal/platform/pkg/types"
)

var readinessPing = []byte(`{"ping":true}`)

// waitReady polls a freshly (re)started container's invocation endpoint
// with a sentinel ping until it answers or the readiness timeout elapses.
// Fixed interval, context-aware sleep, no backoff, first success wins.
func (o *Orchestrator) waitReady(ctx context.Context, name string) (*runtime.Inspection, error) {
	deadline := time.Now().Add(o.cfg.ReadinessTimeout)
	ticker := time.NewTicker(o.cfg.ReadinessInterval)
	defer ticker.Stop()

	for {
		insp, err := o.inspect(ctx, name)
		if err == nil && insp.State == types.ContainerStateRunning && insp.IP != "" {
			if o.pingOnce(ctx, insp.IP) {
				return insp, nil
			}
		}

		if time.Now().After(deadline) {
			return nil, platformerr.New(platformerr.KindStartupTimeout, fmt.Sprintf("container %s did not become ready within %s", name, o.cfg.ReadinessTimeout))
		}

		select {
		case <-ctx.Done():
			return nil, platformerr.Wrap(platformerr.KindStartupTimeout, "readiness wait cancelled", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) pingOnce(ctx context.Context, ip string) bool {
	url := fmt.Sprintf("http://%s:%d%s", ip, o.cfg.InvocationPort, o.cfg.InvocationPath)

	checker := health.NewHTTPChecker(url).
		WithMethod(http.MethodPost).
		WithBody(readinessPing).
		WithStatusRange(200, 299).
		WithTimeout(o.cfg.ReadinessInterval)

	reqCtx, cancel := context.WithTimeout(ctx, o.cfg.ReadinessInterval)
	defer cancel()

	return checker.Check(reqCtx).Healthy
}
