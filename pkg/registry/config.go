package registry

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/faaslocal/platform/pkg/types"
)

// routesFile is the on-disk shape of the routes configuration file: an
// ordered sequence of {path, method, function} entries.
type routesFile struct {
	Routes []routeEntry `yaml:"routes"`
}

type routeEntry struct {
	Path     string `yaml:"path"`
	Method   string `yaml:"method"`
	Function string `yaml:"function"`
}

// functionsFile is the on-disk shape of the functions configuration
// file: defaults merged beneath each function's own environment.
type functionsFile struct {
	Defaults  defaultsEntry            `yaml:"defaults"`
	Functions map[string]functionEntry `yaml:"functions"`
}

type defaultsEntry struct {
	Environment map[string]string `yaml:"environment"`
}

type functionEntry struct {
	Image       string            `yaml:"image"`
	Environment map[string]string `yaml:"environment"`
	Scaling     scalingEntry      `yaml:"scaling"`
	IdleTimeout string            `yaml:"idle_timeout"`
}

type scalingEntry struct {
	MaxCapacity    int    `yaml:"max_capacity"`
	MinCapacity    int    `yaml:"min_capacity"`
	AcquireTimeout string `yaml:"acquire_timeout"`
}

// LoadRoutes parses the routes configuration file, preserving declaration
// order (the matcher relies on first-match-wins over this order).
func LoadRoutes(path string) ([]types.Route, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes file: %w", err)
	}

	var parsed routesFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse routes file: %w", err)
	}

	routes := make([]types.Route, 0, len(parsed.Routes))
	seen := make(map[string]bool, len(parsed.Routes))
	for _, e := range parsed.Routes {
		key := fmt.Sprintf("%s %s", e.Method, e.Path)
		if seen[key] {
			return nil, fmt.Errorf("duplicate route for %s %s", e.Method, e.Path)
		}
		seen[key] = true
		routes = append(routes, types.Route{Method: e.Method, Path: e.Path, Function: e.Function})
	}
	return routes, nil
}

// LoadFunctions parses the functions configuration file and merges
// per-function environment over the shared defaults.
func LoadFunctions(path string, defaultAcquireTimeout, defaultIdleTimeout time.Duration) (map[string]types.FunctionDescriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read functions file: %w", err)
	}

	var parsed functionsFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse functions file: %w", err)
	}

	out := make(map[string]types.FunctionDescriptor, len(parsed.Functions))
	for name, f := range parsed.Functions {
		env := make(map[string]string, len(parsed.Defaults.Environment)+len(f.Environment))
		for k, v := range parsed.Defaults.Environment {
			env[k] = v
		}
		for k, v := range f.Environment {
			env[k] = v
		}

		acquireTimeout := defaultAcquireTimeout
		if f.Scaling.AcquireTimeout != "" {
			d, err := time.ParseDuration(f.Scaling.AcquireTimeout)
			if err != nil {
				return nil, fmt.Errorf("function %s: invalid acquire_timeout: %w", name, err)
			}
			acquireTimeout = d
		}

		idleTimeout := defaultIdleTimeout
		if f.IdleTimeout != "" {
			d, err := time.ParseDuration(f.IdleTimeout)
			if err != nil {
				return nil, fmt.Errorf("function %s: invalid idle_timeout: %w", name, err)
			}
			idleTimeout = d
		}

		maxCap := f.Scaling.MaxCapacity
		if maxCap <= 0 {
			maxCap = 1
		}
		minCap := f.Scaling.MinCapacity
		if minCap > maxCap {
			return nil, fmt.Errorf("function %s: min_capacity %d exceeds max_capacity %d", name, minCap, maxCap)
		}

		out[name] = types.FunctionDescriptor{
			Name:        name,
			Image:       f.Image,
			Environment: env,
			Scaling: types.ScalingBounds{
				MaxCapacity:    maxCap,
				MinCapacity:    minCap,
				AcquireTimeout: acquireTimeout,
			},
			IdleTimeout: idleTimeout,
		}
	}
	return out, nil
}
