// Package registry loads the two declarative configuration files at
// startup and answers the Gateway's two questions: which function does
// this request belong to, and what are that function's settings. It is
// not re-read at runtime — the process restarts on config change.
package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/faaslocal/platform/pkg/types"
)

// Registry is the in-memory, immutable-after-load route table and
// function dictionary.
type Registry struct {
	routes    []types.Route
	compiled  []compiledRoute
	functions map[string]types.FunctionDescriptor
}

// Config controls where the two files are loaded from and the defaults
// applied when a function omits a scaling field.
type Config struct {
	RoutesPath            string
	FunctionsPath         string
	DefaultAcquireTimeout time.Duration
	DefaultIdleTimeout    time.Duration
}

// Load reads and compiles both configuration files.
func Load(cfg Config) (*Registry, error) {
	if cfg.DefaultAcquireTimeout == 0 {
		cfg.DefaultAcquireTimeout = 10 * time.Second
	}
	if cfg.DefaultIdleTimeout == 0 {
		cfg.DefaultIdleTimeout = 5 * time.Minute
	}

	routes, err := LoadRoutes(cfg.RoutesPath)
	if err != nil {
		return nil, err
	}
	functions, err := LoadFunctions(cfg.FunctionsPath, cfg.DefaultAcquireTimeout, cfg.DefaultIdleTimeout)
	if err != nil {
		return nil, err
	}

	for _, r := range routes {
		if _, ok := functions[r.Function]; !ok {
			return nil, fmt.Errorf("route %s %s references unknown function %q", r.Method, r.Path, r.Function)
		}
	}

	compiled := make([]compiledRoute, len(routes))
	for i, r := range routes {
		compiled[i] = compiledRoute{
			method:   strings.ToUpper(r.Method),
			segments: compile(r.Path),
			route:    i,
		}
	}

	return &Registry{routes: routes, compiled: compiled, functions: functions}, nil
}

// Match performs a linear scan of routes in declared order, returning the
// first route whose method (case-insensitive) and compiled pattern match
// the full path. Returns ok=false on miss.
func (r *Registry) Match(method, path string) (functionName string, pathParams map[string]string, matchedPattern string, ok bool) {
	method = strings.ToUpper(method)
	for _, c := range r.compiled {
		if c.method != method {
			continue
		}
		params, matched := matchPath(c.segments, path)
		if !matched {
			continue
		}
		route := r.routes[c.route]
		return route.Function, params, route.Path, true
	}
	return "", nil, "", false
}

// GetFunction looks up a function descriptor by name.
func (r *Registry) GetFunction(name string) (types.FunctionDescriptor, bool) {
	fd, ok := r.functions[name]
	return fd, ok
}

// Functions returns every configured function descriptor, keyed by name.
// Callers that need to provision a pool and breaker per function at
// startup use this instead of walking routes, since a function may be
// reachable only through direct invocation and never appear in a route.
func (r *Registry) Functions() map[string]types.FunctionDescriptor {
	return r.functions
}
