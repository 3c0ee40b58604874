package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/faaslocal/platform/pkg/platformerr"
	"github.com/faaslocal/platform/pkg/registry"
	"github.com/faaslocal/platform/pkg/tracecontext"
	"github.com/faaslocal/platform/pkg/types"
)

// OrchestratorHTTPClient talks to the Orchestrator's internal HTTP
// protocol. It implements both Provisioner (for Pool) and
// OrchestratorClient (for Janitor).
type OrchestratorHTTPClient struct {
	baseURL string
	client  *http.Client
	reg     *registry.Registry
}

// NewOrchestratorHTTPClient builds a client bound to one Orchestrator
// instance. reg supplies each function's image and environment so the
// Gateway never needs to pass them explicitly at call sites.
func NewOrchestratorHTTPClient(baseURL string, reg *registry.Registry) *OrchestratorHTTPClient {
	return &OrchestratorHTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		reg:     reg,
	}
}

type provisionRequest struct {
	FunctionName string            `json:"function_name"`
	Count        int               `json:"count"`
	Image        string            `json:"image,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
}

type provisionResponse struct {
	Workers []types.Worker `json:"workers"`
}

// ProvisionOne asks the Orchestrator for exactly one fresh container of
// functionName.
func (c *OrchestratorHTTPClient) ProvisionOne(ctx context.Context, functionName string) (*types.Worker, error) {
	fd, ok := c.reg.GetFunction(functionName)
	if !ok {
		return nil, platformerr.New(platformerr.KindFunctionNotFound, "unknown function "+functionName)
	}

	req := provisionRequest{FunctionName: functionName, Count: 1, Image: fd.Image, Env: fd.Environment}
	var resp provisionResponse
	if err := c.postJSON(ctx, "/containers/provision", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Workers) != 1 {
		return nil, platformerr.New(platformerr.KindEngineError, "orchestrator returned an unexpected worker count")
	}
	return &resp.Workers[0], nil
}

type ensureRequest struct {
	FunctionName string            `json:"function_name"`
	Image        string            `json:"image,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
}

type ensureResponse struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// EnsureOne asks the Orchestrator for functionName's single named
// instance, which it creates only if it isn't already running. The
// response carries only host/port; the worker is named after the
// Orchestrator's single-instance container, lambda-<functionName>, so the
// name the Janitor heartbeats is the one the Orchestrator tracks.
func (c *OrchestratorHTTPClient) EnsureOne(ctx context.Context, functionName string) (*types.Worker, error) {
	fd, ok := c.reg.GetFunction(functionName)
	if !ok {
		return nil, platformerr.New(platformerr.KindFunctionNotFound, "unknown function "+functionName)
	}

	req := ensureRequest{FunctionName: functionName, Image: fd.Image, Env: fd.Environment}
	var resp ensureResponse
	if err := c.postJSON(ctx, "/containers/ensure", req, &resp); err != nil {
		return nil, err
	}
	return &types.Worker{Name: "lambda-" + functionName, IP: resp.Host, Port: resp.Port}, nil
}

type heartbeatRequest struct {
	FunctionName   string   `json:"function_name"`
	ContainerNames []string `json:"container_names"`
}

// Heartbeat reports functionName's live container names to the
// Orchestrator.
func (c *OrchestratorHTTPClient) Heartbeat(ctx context.Context, functionName string, containerNames []string) error {
	req := heartbeatRequest{FunctionName: functionName, ContainerNames: containerNames}
	return c.postJSON(ctx, "/containers/heartbeat", req, nil)
}

func (c *OrchestratorHTTPClient) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return platformerr.Wrap(platformerr.KindInternal, "failed to encode orchestrator request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", c.baseURL, path), bytes.NewReader(payload))
	if err != nil {
		return platformerr.Wrap(platformerr.KindInternal, "failed to build orchestrator request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	tracecontext.Propagate(httpReq, ctx)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return platformerr.Wrap(platformerr.KindEngineError, "orchestrator unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return platformerr.New(platformerr.Kind(errBody.Error), errBody.Detail)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
