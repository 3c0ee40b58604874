package runtime

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"

	"github.com/faaslocal/platform/pkg/types"
)

const (
	// DefaultNamespace isolates this process's containers from anything
	// else using the same containerd socket.
	DefaultNamespace = "faaslocal"

	// DefaultSocketPath is the conventional containerd socket location.
	DefaultSocketPath = "/run/containerd/containerd.sock"

	// CreatedByLabel marks every container this process creates, so
	// startup reconciliation and prune_by_label can find them again.
	CreatedByLabel = "created_by"

	// CreatedByValue is the label value stamped on every container.
	CreatedByValue = "faaslocal-platform"

	// FunctionLabel records which function a container instance belongs to.
	FunctionLabel = "faaslocal.function"
)

// ContainerdRuntime implements Driver over a containerd socket.
type ContainerdRuntime struct {
	client    *containerd.Client
	namespace string
}

// NewContainerdRuntime dials the containerd socket at socketPath (or
// DefaultSocketPath if empty).
func NewContainerdRuntime(socketPath string) (*ContainerdRuntime, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}

	return &ContainerdRuntime{
		client:    client,
		namespace: DefaultNamespace,
	}, nil
}

// Close closes the underlying containerd client connection.
func (r *ContainerdRuntime) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *ContainerdRuntime) ctx(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, r.namespace)
}

// CreateAndStart pulls the image if needed, creates the container with
// the given env and labels (always including CreatedByLabel), starts
// it, and returns its initial inspection.
func (r *ContainerdRuntime) CreateAndStart(ctx context.Context, spec ContainerSpec) (*Inspection, error) {
	ctx = r.ctx(ctx)

	image, err := r.client.GetImage(ctx, spec.Image)
	if err != nil {
		if _, pullErr := r.client.Pull(ctx, spec.Image, containerd.WithPullUnpack); pullErr != nil {
			if errdefs.IsNotFound(pullErr) {
				return nil, ErrImageNotFound
			}
			return nil, &EngineError{Op: "pull", Err: pullErr}
		}
		image, err = r.client.GetImage(ctx, spec.Image)
		if err != nil {
			return nil, &EngineError{Op: "get_image", Err: err}
		}
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	labels := map[string]string{CreatedByLabel: CreatedByValue}
	for k, v := range spec.Labels {
		labels[k] = v
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(env),
	}

	ctrdContainer, err := r.client.NewContainer(
		ctx,
		spec.Name,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(spec.Name+"-snapshot", image),
		containerd.WithNewSpec(opts...),
		containerd.WithContainerLabels(labels),
	)
	if err != nil {
		if errdefs.IsAlreadyExists(err) {
			return nil, ErrNameConflict
		}
		return nil, &EngineError{Op: "create", Err: err}
	}

	task, err := ctrdContainer.NewTask(ctx, cio.NullIO)
	if err != nil {
		return nil, &EngineError{Op: "create_task", Err: err}
	}
	if err := task.Start(ctx); err != nil {
		return nil, &EngineError{Op: "start_task", Err: err}
	}

	ip, _ := r.containerIP(ctx, task)

	return &Inspection{
		ID:    ctrdContainer.ID(),
		Name:  spec.Name,
		State: types.ContainerStateRunning,
		IP:    ip,
	}, nil
}

// Start starts an existing, stopped container's task.
func (r *ContainerdRuntime) Start(ctx context.Context, id string) error {
	ctx = r.ctx(ctx)

	c, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return ErrNotFound
	}

	task, err := c.NewTask(ctx, cio.NullIO)
	if err != nil {
		return &EngineError{Op: "create_task", Err: err}
	}
	if err := task.Start(ctx); err != nil {
		return &EngineError{Op: "start_task", Err: err}
	}
	return nil
}

// Stop sends SIGTERM, waits up to timeout, then SIGKILLs. Stopping an
// already-stopped container is a no-op.
func (r *ContainerdRuntime) Stop(ctx context.Context, id string, timeout time.Duration) error {
	ctx = r.ctx(ctx)

	c, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return nil
	}

	task, err := c.Task(ctx, nil)
	if err != nil {
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return &EngineError{Op: "kill", Err: err}
	}

	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return &EngineError{Op: "wait", Err: err}
	}

	select {
	case <-statusC:
	case <-stopCtx.Done():
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return &EngineError{Op: "force_kill", Err: err}
		}
	}

	if _, err := task.Delete(ctx); err != nil {
		return &EngineError{Op: "delete_task", Err: err}
	}
	return nil
}

// Remove stops (if running) and deletes a container and its snapshot.
// Removing a missing container succeeds.
func (r *ContainerdRuntime) Remove(ctx context.Context, id string, force bool) error {
	ctx = r.ctx(ctx)

	c, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return nil
	}

	timeout := 10 * time.Second
	if force {
		timeout = time.Second
	}
	if err := r.Stop(ctx, id, timeout); err != nil {
		// Stop failures don't block removal; the engine error is logged
		// by the caller, not fatal to teardown.
		_ = err
	}

	if err := c.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return &EngineError{Op: "delete", Err: err}
	}
	return nil
}

// Inspect returns the current state and network info of one container.
func (r *ContainerdRuntime) Inspect(ctx context.Context, id string) (*Inspection, error) {
	ctx = r.ctx(ctx)

	c, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}

	insp := &Inspection{ID: id, Name: id}

	task, err := c.Task(ctx, nil)
	if err != nil {
		insp.State = types.ContainerStatePending
		return insp, nil
	}

	status, err := task.Status(ctx)
	if err != nil {
		return nil, &EngineError{Op: "status", Err: err}
	}

	switch status.Status {
	case containerd.Running, containerd.Paused:
		insp.State = types.ContainerStateRunning
		if ip, err := r.containerIP(ctx, task); err == nil {
			insp.IP = ip
		}
	case containerd.Stopped:
		if status.ExitStatus == 0 {
			insp.State = types.ContainerStateComplete
		} else {
			insp.State = types.ContainerStateFailed
		}
	default:
		insp.State = types.ContainerStatePending
	}

	return insp, nil
}

// List returns every container carrying all of labelFilter.
func (r *ContainerdRuntime) List(ctx context.Context, labelFilter map[string]string) ([]Inspection, error) {
	ctx = r.ctx(ctx)

	containers, err := r.client.Containers(ctx)
	if err != nil {
		return nil, &EngineError{Op: "list", Err: err}
	}

	out := make([]Inspection, 0, len(containers))
	for _, c := range containers {
		labels, err := c.Labels(ctx)
		if err != nil {
			continue
		}
		if !hasAll(labels, labelFilter) {
			continue
		}
		insp, err := r.Inspect(ctx, c.ID())
		if err != nil {
			continue
		}
		insp.Name = c.ID()
		out = append(out, *insp)
	}
	return out, nil
}

// PruneByLabel removes every container carrying key=value. Used at
// teardown and is tolerant of per-container failures.
func (r *ContainerdRuntime) PruneByLabel(ctx context.Context, key, value string) error {
	targets, err := r.List(ctx, map[string]string{key: value})
	if err != nil {
		return err
	}
	for _, t := range targets {
		_ = r.Remove(ctx, t.ID, true)
	}
	return nil
}

func hasAll(labels, filter map[string]string) bool {
	for k, v := range filter {
		if labels[k] != v {
			return false
		}
	}
	return true
}

// containerIP extracts the container's eth0 address by entering its
// network namespace via nsenter, the same approach the host-local engine
// wrapper this is grounded on uses in the absence of a CNI API.
func (r *ContainerdRuntime) containerIP(ctx context.Context, task containerd.Task) (string, error) {
	pid := task.Pid()
	if pid == 0 {
		return "", fmt.Errorf("container task has no PID")
	}

	cmd := exec.CommandContext(ctx, "nsenter", "-t", fmt.Sprintf("%d", pid), "-n", "ip", "-4", "addr", "show", "eth0")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to get container IP: %w (output: %s)", err, string(output))
	}

	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "inet ") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		ip, _, err := net.ParseCIDR(parts[1])
		if err != nil {
			return "", fmt.Errorf("failed to parse IP address %s: %w", parts[1], err)
		}
		return ip.String(), nil
	}

	return "", fmt.Errorf("no IP address found for container")
}
