package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/faaslocal/platform/pkg/registry"
)

func writeServerConfig(t *testing.T, containerHost string, containerPort int) *registry.Registry {
	t.Helper()
	dir := t.TempDir()
	routesPath := filepath.Join(dir, "routes.yaml")
	functionsPath := filepath.Join(dir, "functions.yaml")

	require.NoError(t, os.WriteFile(routesPath, []byte(`
routes:
  - path: /api/echo
    method: POST
    function: echo
`), 0o644))
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

func newTestGatewayServer(t *testing.T, containerHandler http.HandlerFunc) (*Server, *Authenticator) {
	t.Helper()
	host, port := newContainerServer(t, containerHandler)
	reg := writeServerConfig(t, host, port)

	auth := NewAuthenticator([]byte("test-secret"), map[string]string{"client": "secret"}, time.Hour)
	prov := &staticProvisioner{host: host, port: port}
	pool := NewPool("echo", 1, prov)
	breaker := NewBreaker("echo", DefaultBreakerConfig())

	s := NewServer(reg, auth, map[string]*Pool{"echo": pool}, map[string]*Breaker{"echo": breaker}, 0, "/")
	return s, auth
}

func TestServerRejectsMissingBearerToken(t *testing.T) {
	s, _ := newTestGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodPost, "/api/echo", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServerRoutedDispatchHappyPath(t *testing.T) {
	s, auth := newTestGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"statusCode":200,"body":"pong"}`))
	})

	token, _, err := auth.Issue("client", "secret")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/echo", strings.NewReader(`{"ping":true}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "pong", body)
}

func TestServerDirectInvocationHappyPath(t *testing.T) {
	s, auth := newTestGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"statusCode":200,"body":"direct"}`))
	})

	token, _, err := auth.Issue("client", "secret")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/2015-03-31/functions/echo/invocations", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServerIssueTokenMatchesDocumentedContract(t *testing.T) {
	s, _ := newTestGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {})

	body := `{"AuthParameters":{"USERNAME":"client","PASSWORD":"secret"}}`
	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AuthenticationResult.IdToken)
}

func TestServerIssueTokenRejectsBadCredentials(t *testing.T) {
	s, _ := newTestGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {})

	body := `{"AuthParameters":{"USERNAME":"client","PASSWORD":"wrong"}}`
	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServerUnmatchedRouteIsNotFound(t *testing.T) {
	s, auth := newTestGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {})
	token, _, err := auth.Issue("client", "secret")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
