package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/faaslocal/platform/pkg/types"
)

// Driver is a typed, async facade over a local container engine. It does
// not interpret function or pool semantics — callers decide what a
// container means; the driver only manages its lifecycle.
//
// Operations are idempotent with respect to the target state where
// physically meaningful: Stop on an already-stopped container is a
// no-op, Remove on a missing container succeeds.
type Driver interface {
	CreateAndStart(ctx context.Context, spec ContainerSpec) (*Inspection, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string, timeout time.Duration) error
	Remove(ctx context.Context, id string, force bool) error
	Inspect(ctx context.Context, id string) (*Inspection, error)
	List(ctx context.Context, labelFilter map[string]string) ([]Inspection, error)
	PruneByLabel(ctx context.Context, key, value string) error
	Close() error
}

// ContainerSpec describes a container to create. Env and Labels are
// copied; callers may mutate the maps they pass in afterward.
type ContainerSpec struct {
	Name   string
	Image  string
	Env    map[string]string
	Labels map[string]string
}

// Inspection is a point-in-time read of one container's state.
type Inspection struct {
	ID    string
	Name  string
	State types.ContainerState
	IP    string
	Port  int
}

// Sentinel engine errors. Orchestrator.ensure/provision translate these
// into platformerr kinds.
var (
	ErrImageNotFound = errors.New("image not found")
	ErrNameConflict  = errors.New("container name already exists")
	ErrNotFound      = errors.New("container not found")
)

// EngineError wraps an unclassified failure from the container engine.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error during %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }
