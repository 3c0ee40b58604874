package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T) (routesPath, functionsPath string) {
	t.Helper()
	dir := t.TempDir()

	routesPath = filepath.Join(dir, "routes.yaml")
	functionsPath = filepath.Join(dir, "functions.yaml")

	routes := `
routes:
  - path: /api/echo
    method: POST
    function: echo
  - path: /api/users/{id}
    method: GET
    function: users
`
	functions := `
defaults:
  environment:
    LOG_LEVEL: info

functions:
  echo:
    image: registry.local/echo:latest
    environment:
      NAME: echo
    scaling:
      max_capacity: 3
      min_capacity: 0
      acquire_timeout: 5s
  users:
    image: registry.local/users:latest
    scaling:
      max_capacity: 1
`
	require.NoError(t, os.WriteFile(routesPath, []byte(routes), 0o644))
	require.NoError(t, os.WriteFile(functionsPath, []byte(functions), 0o644))
	return routesPath, functionsPath
}

func TestLoadAndMatch(t *testing.T) {
	routesPath, functionsPath := writeTestConfig(t)

	reg, err := Load(Config{RoutesPath: routesPath, FunctionsPath: functionsPath})
	require.NoError(t, err)

	fn, params, pattern, ok := reg.Match("POST", "/api/echo")
	require.True(t, ok)
	require.Equal(t, "echo", fn)
	require.Empty(t, params)
	require.Equal(t, "/api/echo", pattern)

	fn, params, _, ok = reg.Match("get", "/api/users/42")
	require.True(t, ok)
	require.Equal(t, "users", fn)
	require.Equal(t, "42", params["id"])

	_, _, _, ok = reg.Match("POST", "/api/unknown")
	require.False(t, ok)
}

func TestDefaultsMergedBeneathPerFunctionEnvironment(t *testing.T) {
	routesPath, functionsPath := writeTestConfig(t)
	reg, err := Load(Config{RoutesPath: routesPath, FunctionsPath: functionsPath})
	require.NoError(t, err)

	fd, ok := reg.GetFunction("echo")
	require.True(t, ok)
	require.Equal(t, "info", fd.Environment["LOG_LEVEL"])
	require.Equal(t, "echo", fd.Environment["NAME"])
	require.Equal(t, 3, fd.Scaling.MaxCapacity)

	fd, ok = reg.GetFunction("users")
	require.True(t, ok)
	require.Equal(t, "info", fd.Environment["LOG_LEVEL"])
	require.Equal(t, 1, fd.Scaling.MaxCapacity)
}

func TestFirstMatchWins(t *testing.T) {
	dir := t.TempDir()
	routesPath := filepath.Join(dir, "routes.yaml")
	functionsPath := filepath.Join(dir, "functions.yaml")

	require.NoError(t, os.WriteFile(routesPath, []byte(`
routes:
  - path: /api/{name}
    method: GET
    function: a
  - path: /api/special
    method: GET
    function: b
`), 0o644))
	require.NoError(t, os.WriteFile(functionsPath, []byte(`
functions:
  a:
    image: a:latest
  b:
    image: b:latest
`), 0o644))

	reg, err := Load(Config{RoutesPath: routesPath, FunctionsPath: functionsPath})
	require.NoError(t, err)

	fn, params, _, ok := reg.Match("GET", "/api/special")
	require.True(t, ok)
	require.Equal(t, "a", fn)
	require.Equal(t, "special", params["name"])
}

func TestMinCapacityExceedsMaxCapacityRejected(t *testing.T) {
	dir := t.TempDir()
	routesPath := filepath.Join(dir, "routes.yaml")
	functionsPath := filepath.Join(dir, "functions.yaml")
	require.NoError(t, os.WriteFile(routesPath, []byte("routes: []\n"), 0o644))
	require.NoError(t, os.WriteFile(functionsPath, []byte(`
functions:
  bad:
    image: bad:latest
    scaling:
      max_capacity: 1
      min_capacity: 2
`), 0o644))

	_, err := Load(Config{RoutesPath: routesPath, FunctionsPath: functionsPath})
	require.Error(t, err)
}
