package orchestrator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/faaslocal/platform/pkg/runtime"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	driver := newFakeDriver()
	offloader := runtime.NewOffloader(2)
	t.Cleanup(offloader.Close)
	orch := New(driver, offloader, readyServerConfig(t))
	return NewServer(orch)
}

func TestHandleEnsureReturnsHostPortEnvelope(t *testing.T) {
	s := newTestServer(t)

	body := `{"function_name":"echo","image":"echo:latest"}`
	req := httptest.NewRequest(http.MethodPost, "/containers/ensure", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp, "host")
	require.Contains(t, resp, "port")
	require.NotContains(t, resp, "worker")
}

func TestHandleProvisionReturnsWorkersEnvelope(t *testing.T) {
	s := newTestServer(t)

	body := `{"function_name":"echo","image":"echo:latest","count":2}`
	req := httptest.NewRequest(http.MethodPost, "/containers/provision", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Workers []struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			IPAddress string `json:"ip_address"`
			Port      int    `json:"port"`
		} `json:"workers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Workers, 2)
	require.NotEmpty(t, resp.Workers[0].Name)
}

func TestHandleHeartbeatReturnsStatusOK(t *testing.T) {
	s := newTestServer(t)

	body := `{"function_name":"echo","container_names":["lambda-echo"]}`
	req := httptest.NewRequest(http.MethodPost, "/containers/heartbeat", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp["status"])
}
