package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/faaslocal/platform/pkg/metrics"
	"github.com/faaslocal/platform/pkg/platformerr"
	"github.com/faaslocal/platform/pkg/tracecontext"
	"github.com/faaslocal/platform/pkg/types"
)

// InvocationType distinguishes synchronous ("RequestResponse") from
// fire-and-forget ("Event") invocations, selected by the caller via the
// X-Amz-Invocation-Type header on the direct-invocation form.
type InvocationType string

const (
	InvocationTypeRequestResponse InvocationType = "RequestResponse"
	InvocationTypeEvent           InvocationType = "Event"
)

// Invoker dispatches one event envelope to a function's pool and
// translates the container's response (or its absence) into a
// *types.ProxyResponse or an error.
type Invoker struct {
	pools          map[string]*Pool
	breakers       map[string]*Breaker
	client         *http.Client
	invocationPort int
	invocationPath string
}

// NewInvoker constructs an Invoker. pools and breakers must already be
// populated per function name by the caller (the Server, at startup).
// invocationPort/invocationPath must match the Orchestrator's own
// --invocation-port/--invocation-path, since that's what decides where
// inside a container the invocation endpoint actually listens;
// invocationPort is only a fallback for a worker whose Port wasn't set.
func NewInvoker(pools map[string]*Pool, breakers map[string]*Breaker, invocationPort int, invocationPath string) *Invoker {
	if invocationPath == "" {
		invocationPath = "/"
	}
	return &Invoker{
		pools:          pools,
		breakers:       breakers,
		client:         &http.Client{Timeout: 60 * time.Second},
		invocationPort: invocationPort,
		invocationPath: invocationPath,
	}
}

// Invoke runs one function call. On a transport failure the container is
// evicted from the pool (it's presumed dead); on success or on a
// well-formed logical error it is released for reuse.
func (inv *Invoker) Invoke(ctx context.Context, functionName string, env types.Envelope, invocationType InvocationType, acquireTimeout time.Duration) (*types.ProxyResponse, error) {
	pool, ok := inv.pools[functionName]
	if !ok {
		return nil, platformerr.New(platformerr.KindFunctionNotFound, "unknown function "+functionName)
	}
	breaker := inv.breakers[functionName]

	if err := breaker.Allow(); err != nil {
		metrics.InvocationsTotal.WithLabelValues(functionName, "breaker_open").Inc()
		return nil, platformerr.Wrap(platformerr.KindBreakerOpen, "circuit open for "+functionName, err)
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.InvocationDuration, functionName)

	acquireCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()

	acquireTimer := metrics.NewTimer()
	worker, err := pool.Acquire(acquireCtx)
	acquireTimer.ObserveDurationVec(metrics.AcquireDuration, functionName)
	if err != nil {
		// Capacity saturation, not upstream health -- the breaker tracks
		// container failures, and no container was ever reached here.
		metrics.InvocationsTotal.WithLabelValues(functionName, "acquire_timeout").Inc()
		return nil, err
	}

	if invocationType == InvocationTypeEvent {
		go inv.dispatch(context.Background(), functionName, worker, env, pool, breaker)
		return &types.ProxyResponse{StatusCode: http.StatusAccepted}, nil
	}

	resp, err := inv.dispatch(ctx, functionName, worker, env, pool, breaker)
	return resp, err
}

func (inv *Invoker) dispatch(ctx context.Context, functionName string, worker *types.Worker, env types.Envelope, pool *Pool, breaker *Breaker) (*types.ProxyResponse, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		pool.Release(worker)
		breaker.Report(false)
		return nil, platformerr.Wrap(platformerr.KindInternal, "failed to encode event envelope", err)
	}

	port := worker.Port
	if port == 0 {
		port = inv.invocationPort
	}
	url := fmt.Sprintf("http://%s:%d%s", worker.IP, port, inv.invocationPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		pool.Release(worker)
		breaker.Report(false)
		return nil, platformerr.Wrap(platformerr.KindInternal, "failed to build upstream request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	tracecontext.Propagate(req, ctx)

	httpResp, err := inv.client.Do(req)
	if err != nil {
		pool.Evict(worker)
		breaker.Report(false)
		metrics.InvocationsTotal.WithLabelValues(functionName, "upstream_transport").Inc()
		return nil, platformerr.Wrap(platformerr.KindUpstreamTransport, "container unreachable", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		pool.Evict(worker)
		breaker.Report(false)
		return nil, platformerr.Wrap(platformerr.KindUpstreamTransport, "failed to read container response", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		pool.Release(worker)
		breaker.Report(false)
		metrics.InvocationsTotal.WithLabelValues(functionName, "upstream_logical").Inc()
		return nil, platformerr.New(platformerr.KindUpstreamLogical, fmt.Sprintf("container responded with status %d", httpResp.StatusCode))
	}

	proxyResp, logicalErr := parseProxyResponse(functionName, raw)
	if logicalErr != nil {
		pool.Release(worker)
		breaker.Report(false)
		metrics.InvocationsTotal.WithLabelValues(functionName, "upstream_logical").Inc()
		return nil, logicalErr
	}

	pool.Release(worker)
	breaker.Report(true)
	metrics.InvocationsTotal.WithLabelValues(functionName, "success").Inc()
	return proxyResp, nil
}
