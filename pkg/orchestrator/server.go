package orchestrator

import (
	"encoding/json"
	"net/http"

	"github.com/faaslocal/platform/pkg/metrics"
	"github.com/faaslocal/platform/pkg/platformerr"
	"github.com/faaslocal/platform/pkg/tracecontext"
	"github.com/faaslocal/platform/pkg/types"
)

// Server exposes the Orchestrator over the internal HTTP protocol the
// Gateway speaks to it with.
type Server struct {
	orch *Orchestrator
	mux  *http.ServeMux
}

// NewServer builds the Orchestrator's HTTP surface.
func NewServer(orch *Orchestrator) *Server {
	s := &Server{orch: orch, mux: http.NewServeMux()}
	s.mux.HandleFunc("/containers/ensure", s.handleEnsure)
	s.mux.HandleFunc("/containers/provision", s.handleProvision)
	s.mux.HandleFunc("/containers/heartbeat", s.handleHeartbeat)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", metrics.Handler())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := tracecontext.Adopt(r.Context(), r)
	tracecontext.Echo(w, ctx)
	s.mux.ServeHTTP(w, r.WithContext(ctx))
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

func (s *Server) handleEnsure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		platformerr.WriteHTTP(w, platformerr.New(platformerr.KindClient, "POST required"))
		return
	}
	var req ensureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		platformerr.WriteHTTP(w, platformerr.New(platformerr.KindClient, "malformed request body"))
		return
	}
	if req.FunctionName == "" || req.Image == "" {
		platformerr.WriteHTTP(w, platformerr.New(platformerr.KindClient, "function_name and image are required"))
		return
	}

	worker, err := s.orch.Ensure(r.Context(), req.FunctionName, req.Image, req.Env)
	if err != nil {
		platformerr.WriteHTTP(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ensureResponse{Host: worker.IP, Port: worker.Port})
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

func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		platformerr.WriteHTTP(w, platformerr.New(platformerr.KindClient, "POST required"))
		return
	}
	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		platformerr.WriteHTTP(w, platformerr.New(platformerr.KindClient, "malformed request body"))
		return
	}
	if req.FunctionName == "" || req.Image == "" || req.Count <= 0 {
		platformerr.WriteHTTP(w, platformerr.New(platformerr.KindClient, "function_name, image and a positive count are required"))
		return
	}

	workers, err := s.orch.Provision(r.Context(), req.FunctionName, req.Count, req.Image, req.Env)
	if err != nil {
		platformerr.WriteHTTP(w, err)
		return
	}

	out := make([]types.Worker, len(workers))
	for i, w := range workers {
		out[i] = *w
	}
	writeJSON(w, http.StatusOK, provisionResponse{Workers: out})
}

type heartbeatRequest struct {
	FunctionName   string   `json:"function_name"`
	ContainerNames []string `json:"container_names"`
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		platformerr.WriteHTTP(w, platformerr.New(platformerr.KindClient, "POST required"))
		return
	}
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		platformerr.WriteHTTP(w, platformerr.New(platformerr.KindClient, "malformed request body"))
		return
	}
	s.orch.Heartbeat(req.FunctionName, req.ContainerNames)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
