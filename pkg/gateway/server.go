package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/faaslocal/platform/pkg/metrics"
	"github.com/faaslocal/platform/pkg/platformerr"
	"github.com/faaslocal/platform/pkg/registry"
	"github.com/faaslocal/platform/pkg/tracecontext"
	"github.com/faaslocal/platform/pkg/types"
)

// Server is the Gateway's HTTP surface: bearer-token issuance, the
// direct-invocation form, and route-matched dispatch through the
// Registry.
type Server struct {
	reg     *registry.Registry
	auth    *Authenticator
	invoker *Invoker
	mux     *http.ServeMux
}

// NewServer wires a Server from a loaded Registry, an Authenticator, and
// per-function pools/breakers already constructed by the caller.
// invocationPort/invocationPath must match the Orchestrator's own
// --invocation-port/--invocation-path flags.
func NewServer(reg *registry.Registry, auth *Authenticator, pools map[string]*Pool, breakers map[string]*Breaker, invocationPort int, invocationPath string) *Server {
	s := &Server{
		reg:     reg,
		auth:    auth,
		invoker: NewInvoker(pools, breakers, invocationPort, invocationPath),
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", metrics.Handler())
	s.mux.HandleFunc("/auth/token", s.handleIssueToken)
	s.mux.HandleFunc("/", s.handleDispatch)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := tracecontext.Adopt(r.Context(), r)
	tracecontext.Echo(w, ctx)
	s.mux.ServeHTTP(w, r.WithContext(ctx))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type tokenRequest struct {
	AuthParameters struct {
		Username string `json:"USERNAME"`
		Password string `json:"PASSWORD"`
	} `json:"AuthParameters"`
}

type tokenResponse struct {
	AuthenticationResult struct {
		IdToken string `json:"IdToken"`
	} `json:"AuthenticationResult"`
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		platformerr.WriteHTTP(w, platformerr.New(platformerr.KindClient, "POST required"))
		return
	}
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		platformerr.WriteHTTP(w, platformerr.New(platformerr.KindClient, "malformed request body"))
		return
	}

	token, _, err := s.auth.Issue(req.AuthParameters.Username, req.AuthParameters.Password)
	if err != nil {
		platformerr.WriteHTTP(w, platformerr.New(platformerr.KindUnauthorized, "invalid credentials"))
		return
	}

	var resp tokenResponse
	resp.AuthenticationResult.IdToken = token
	writeJSON(w, http.StatusOK, resp)
}

// handleDispatch serves both request forms: the direct-invocation path
// .../functions/{name}/invocations, and route-matched dispatch for
// everything else. Both require a valid bearer token.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	subject, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	ctx := context.WithValue(r.Context(), authClaimsKey{}, map[string]string{"sub": subject})
	r = r.WithContext(ctx)

	if functionName, ok := directInvocationFunction(r.URL.Path); ok {
		s.invokeDirect(w, r, functionName)
		return
	}

	functionName, pathParams, matchedPath, ok := s.reg.Match(r.Method, r.URL.Path)
	if !ok {
		platformerr.WriteHTTP(w, platformerr.New(platformerr.KindRouteNotFound, "no route matches "+r.Method+" "+r.URL.Path))
		return
	}
	s.invokeRouted(w, r, functionName, pathParams, matchedPath)
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		platformerr.WriteHTTP(w, platformerr.New(platformerr.KindUnauthorized, "missing bearer token"))
		return "", false
	}

	subject, err := s.auth.Validate(strings.TrimPrefix(authz, prefix))
	if err != nil {
		platformerr.WriteHTTP(w, platformerr.New(platformerr.KindUnauthorized, "invalid or expired token"))
		return "", false
	}
	return subject, true
}

// directInvocationFunction extracts {function_name} from the
// /<api-prefix>/functions/{function_name}/invocations form, matching the
// trailing three path segments regardless of prefix depth.
func directInvocationFunction(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 {
		return "", false
	}
	last, secondLast := parts[len(parts)-1], parts[len(parts)-3]
	if last != "invocations" || secondLast != "functions" {
		return "", false
	}
	return parts[len(parts)-2], true
}

func (s *Server) invokeDirect(w http.ResponseWriter, r *http.Request, functionName string) {
	fd, ok := s.reg.GetFunction(functionName)
	if !ok {
		platformerr.WriteHTTP(w, platformerr.New(platformerr.KindFunctionNotFound, "unknown function "+functionName))
		return
	}

	invocationType := InvocationTypeRequestResponse
	if v := InvocationType(r.Header.Get("X-Amz-Invocation-Type")); v == InvocationTypeEvent {
		invocationType = InvocationTypeEvent
	}

	env, err := buildEnvelope(r, functionName, "/functions/"+functionName+"/invocations", nil, "$default")
	if err != nil {
		platformerr.WriteHTTP(w, platformerr.New(platformerr.KindClient, "failed to read request body"))
		return
	}

	s.runInvocation(w, r.Context(), functionName, env, invocationType, fd.Scaling.AcquireTimeout)
}

func (s *Server) invokeRouted(w http.ResponseWriter, r *http.Request, functionName string, pathParams map[string]string, matchedPath string) {
	fd, ok := s.reg.GetFunction(functionName)
	if !ok {
		platformerr.WriteHTTP(w, platformerr.New(platformerr.KindFunctionNotFound, "unknown function "+functionName))
		return
	}

	env, err := buildEnvelope(r, functionName, matchedPath, pathParams, "$default")
	if err != nil {
		platformerr.WriteHTTP(w, platformerr.New(platformerr.KindClient, "failed to read request body"))
		return
	}

	s.runInvocation(w, r.Context(), functionName, env, InvocationTypeRequestResponse, fd.Scaling.AcquireTimeout)
}

func (s *Server) runInvocation(w http.ResponseWriter, ctx context.Context, functionName string, env types.Envelope, invocationType InvocationType, acquireTimeout time.Duration) {
	resp, err := s.invoker.Invoke(ctx, functionName, env, invocationType, acquireTimeout)
	if err != nil {
		platformerr.WriteHTTP(w, err)
		return
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json")
	tracecontext.Echo(w, ctx)
	w.WriteHeader(resp.StatusCode)
	_ = json.NewEncoder(w).Encode(resp.Body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
