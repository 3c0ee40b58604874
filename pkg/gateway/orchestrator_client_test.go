package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/faaslocal/platform/pkg/registry"
)

func writeClientRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	dir := t.TempDir()
	routesPath := filepath.Join(dir, "routes.yaml")
	functionsPath := filepath.Join(dir, "functions.yaml")

	require.NoError(t, os.WriteFile(routesPath, []byte(`routes: []`), 0o644))
	require.NoError(t, os.WriteFile(functionsPath, []byte(`
functions:
  echo:
    image: registry.local/echo:latest
    scaling:
      max_capacity: 1
      acquire_timeout: 2s
`), 0o644))

	reg, err := registry.Load(registry.Config{RoutesPath: routesPath, FunctionsPath: functionsPath})
	require.NoError(t, err)
	return reg
}

func TestEnsureOneSendsDocumentedRequestAndParsesResponse(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/containers/ensure", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"host": "10.0.0.5", "port": 9001})
	}))
	t.Cleanup(srv.Close)

	client := NewOrchestratorHTTPClient(srv.URL, writeClientRegistry(t))
	worker, err := client.EnsureOne(context.Background(), "echo")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5", worker.IP)
	require.Equal(t, 9001, worker.Port)
	require.Equal(t, "lambda-echo", worker.Name)

	require.Equal(t, "echo", captured["function_name"])
	require.Contains(t, captured, "image")
	require.NotContains(t, captured, "function")
	require.NotContains(t, captured, "environment")
}

func TestProvisionOneSendsDocumentedRequest(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/containers/provision", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"workers": []map[string]any{{"id": "c1", "name": "echo-1", "ip_address": "10.0.0.6", "port": 9002}},
		})
	}))
	t.Cleanup(srv.Close)

	client := NewOrchestratorHTTPClient(srv.URL, writeClientRegistry(t))
	worker, err := client.ProvisionOne(context.Background(), "echo")
	require.NoError(t, err)
	require.Equal(t, "echo-1", worker.Name)
	require.Equal(t, "10.0.0.6", worker.IP)
	require.Equal(t, 9002, worker.Port)

	require.Equal(t, "echo", captured["function_name"])
	require.NotContains(t, captured, "function")
}

func TestHeartbeatSendsDocumentedRequest(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/containers/heartbeat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	t.Cleanup(srv.Close)

	client := NewOrchestratorHTTPClient(srv.URL, writeClientRegistry(t))
	err := client.Heartbeat(context.Background(), "echo", []string{"echo-1"})
	require.NoError(t, err)

	require.Equal(t, "echo", captured["function_name"])
	require.NotContains(t, captured, "function")
}
