package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/faaslocal/platform/pkg/runtime"
	"github.com/faaslocal/platform/pkg/types"
)

// fakeDriver is an in-memory runtime.Driver double for exercising the
// Orchestrator's state machine without a real container engine.
type fakeDriver struct {
	mu          sync.Mutex
	containers  map[string]*runtime.Inspection
	createErr   error
	failAfter   int // with createErr set, fail every CreateAndStart call once createCalls > failAfter; a nil createErr disables failure
	seq         int
	createCalls int
	removeCalls int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{containers: make(map[string]*runtime.Inspection)}
}

func (f *fakeDriver) CreateAndStart(ctx context.Context, spec runtime.ContainerSpec) (*runtime.Inspection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil && f.createCalls > f.failAfter {
		return nil, f.createErr
	}
	if _, exists := f.containers[spec.Name]; exists {
		return nil, runtime.ErrNameConflict
	}
	f.seq++
	insp := &runtime.Inspection{
		ID:    strconv.Itoa(f.seq),
		Name:  spec.Name,
		State: types.ContainerStateRunning,
		IP:    "127.0.0.1",
	}
	f.containers[spec.Name] = insp
	return insp, nil
}

func (f *fakeDriver) Start(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	insp, ok := f.containers[id]
	if !ok {
		return runtime.ErrNotFound
	}
	insp.State = types.ContainerStateRunning
	return nil
}

func (f *fakeDriver) Stop(ctx context.Context, id string, timeout time.Duration) error {
	return nil
}

func (f *fakeDriver) Remove(ctx context.Context, id string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls++
	delete(f.containers, id)
	return nil
}

func (f *fakeDriver) Inspect(ctx context.Context, id string) (*runtime.Inspection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	insp, ok := f.containers[id]
	if !ok {
		return nil, runtime.ErrNotFound
	}
	cp := *insp
	return &cp, nil
}

func (f *fakeDriver) List(ctx context.Context, labelFilter map[string]string) ([]runtime.Inspection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]runtime.Inspection, 0, len(f.containers))
	for _, insp := range f.containers {
		out = append(out, *insp)
	}
	return out, nil
}

func (f *fakeDriver) PruneByLabel(ctx context.Context, key, value string) error { return nil }

func (f *fakeDriver) Close() error { return nil }

func readyServerConfig(t *testing.T) Config {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"statusCode": 200, "body": "pong"})
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	return Config{
		InvocationPort:    port,
		InvocationPath:    "/",
		ReadinessTimeout:  2 * time.Second,
		ReadinessInterval: 10 * time.Millisecond,
		IdleTimeout:       50 * time.Millisecond,
	}
}

func TestEnsureCreatesOnFirstCall(t *testing.T) {
	driver := newFakeDriver()
	offloader := runtime.NewOffloader(2)
	defer offloader.Close()

	orch := New(driver, offloader, readyServerConfig(t))

	worker, err := orch.Ensure(context.Background(), "echo", "echo:latest", nil)
	require.NoError(t, err)
	require.Equal(t, "lambda-echo", worker.Name)
	require.Equal(t, 1, driver.createCalls)
}

func TestEnsureReusesRunningContainer(t *testing.T) {
	driver := newFakeDriver()
	offloader := runtime.NewOffloader(2)
	defer offloader.Close()

	orch := New(driver, offloader, readyServerConfig(t))

	_, err := orch.Ensure(context.Background(), "echo", "echo:latest", nil)
	require.NoError(t, err)
	_, err = orch.Ensure(context.Background(), "echo", "echo:latest", nil)
	require.NoError(t, err)

	require.Equal(t, 1, driver.createCalls)
}

func TestProvisionCreatesDistinctNames(t *testing.T) {
	driver := newFakeDriver()
	offloader := runtime.NewOffloader(4)
	defer offloader.Close()

	orch := New(driver, offloader, readyServerConfig(t))

	workers, err := orch.Provision(context.Background(), "echo", 3, "echo:latest", nil)
	require.NoError(t, err)
	require.Len(t, workers, 3)

	seen := map[string]bool{}
	for _, w := range workers {
		require.False(t, seen[w.Name])
		seen[w.Name] = true
	}
}

func TestProvisionRollsBackOnPartialFailure(t *testing.T) {
	driver := newFakeDriver()
	offloader := runtime.NewOffloader(4)
	defer offloader.Close()

	orch := New(driver, offloader, readyServerConfig(t))

	driver.mu.Lock()
	driver.createErr = runtime.ErrImageNotFound
	driver.failAfter = 2
	driver.mu.Unlock()

	_, err := orch.Provision(context.Background(), "echo", 5, "missing:latest", nil)
	require.Error(t, err)

	driver.mu.Lock()
	remaining := len(driver.containers)
	driver.mu.Unlock()
	require.Equal(t, 0, remaining)
}

func TestReapRemovesContainersPastIdleTimeout(t *testing.T) {
	driver := newFakeDriver()
	offloader := runtime.NewOffloader(2)
	defer offloader.Close()

	cfg := readyServerConfig(t)
	cfg.IdleTimeout = 10 * time.Millisecond
	orch := New(driver, offloader, cfg)

	_, err := orch.Ensure(context.Background(), "echo", "echo:latest", nil)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	orch.Reap(context.Background())

	driver.mu.Lock()
	remaining := len(driver.containers)
	driver.mu.Unlock()
	require.Equal(t, 0, remaining)
}

func TestStartupReconcileAdoptsRunningAndRemovesOthers(t *testing.T) {
	driver := newFakeDriver()
	driver.containers["lambda-old"] = &runtime.Inspection{Name: "lambda-old", State: types.ContainerStateRunning}
	driver.containers["lambda-dead"] = &runtime.Inspection{Name: "lambda-dead", State: types.ContainerStateFailed}

	offloader := runtime.NewOffloader(2)
	defer offloader.Close()

	orch := New(driver, offloader, readyServerConfig(t))
	require.NoError(t, orch.StartupReconcile(context.Background()))

	driver.mu.Lock()
	_, oldExists := driver.containers["lambda-old"]
	_, deadExists := driver.containers["lambda-dead"]
	driver.mu.Unlock()

	require.True(t, oldExists)
	require.False(t, deadExists)

	orch.accessMu.Lock()
	_, tracked := orch.lastAccess["lambda-old"]
	orch.accessMu.Unlock()
	require.True(t, tracked)
}
