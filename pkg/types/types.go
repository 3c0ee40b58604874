// Package types holds the shared data model for the invocation plane:
// function descriptors, routes, workers, pools, and the container-facing
// event envelope.
package types

import "time"

// FunctionDescriptor is immutable after the registry loads it.
type FunctionDescriptor struct {
	Name        string
	Image       string
	Environment map[string]string
	Scaling     ScalingBounds
	IdleTimeout time.Duration // zero means use the process-wide default
}

// ScalingBounds are the per-function capacity bounds. MinCapacity <=
// MaxCapacity is enforced by the registry at load time.
type ScalingBounds struct {
	MaxCapacity    int
	MinCapacity    int
	AcquireTimeout time.Duration
}

// Route maps one (method, path pattern) to a function name.
type Route struct {
	Method   string
	Path     string
	Function string
}

// Worker is a reference to one running container. Field names follow the
// internal ensure/provision protocol's wire shapes: id, name, ip_address,
// port.
type Worker struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IP        string    `json:"ip_address"`
	Port      int       `json:"port"`
	CreatedAt time.Time `json:"-"`
}

// ContainerState is the lifecycle state of a managed container as seen by
// the Orchestrator's reconciliation loop.
type ContainerState string

const (
	ContainerStatePending  ContainerState = "pending"
	ContainerStateStarting ContainerState = "starting"
	ContainerStateRunning  ContainerState = "running"
	ContainerStateFailed   ContainerState = "failed"
	ContainerStateComplete ContainerState = "complete"
	ContainerStateRemoved  ContainerState = "removed"
)

// Container tracks both the desired and the actual state of one managed
// container, so the reconciliation loop has somewhere to record a
// transient failure instead of only a boolean.
type Container struct {
	ID           string
	Name         string
	Function     string
	Image        string
	DesiredState ContainerState
	ActualState  ContainerState
	IP           string
	Port         int
	CreatedAt    time.Time
	FinishedAt   time.Time
	Error        string
}

// EngineInfo describes the container engine backing the Orchestrator.
// The Orchestrator's health endpoint does not include it; that endpoint
// reports only a status field.
type EngineInfo struct {
	Namespace      string `json:"namespace"`
	ContainerCount int    `json:"container_count"`
}

// BreakerState is one of the three circuit-breaker states.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// TraceContext is the per-request correlation pair carried on
// context.Context for the life of one request.
type TraceContext struct {
	TraceID   string
	RequestID string
}

// Identity is the caller-identity block of an event envelope.
type Identity struct {
	SourceIP  string `json:"sourceIp"`
	UserAgent string `json:"userAgent"`
}

// Authorizer carries the authenticated subject under the conventional
// claims alias used by the container runtime convention.
type Authorizer struct {
	Claims map[string]string `json:"claims"`
}

// RequestContext is the requestContext block of an event envelope.
type RequestContext struct {
	Identity   Identity   `json:"identity"`
	Authorizer Authorizer `json:"authorizer"`
	RequestID  string     `json:"requestId"`
	Stage      string     `json:"stage"`
	Protocol   string     `json:"protocol"`
	Path       string     `json:"path"`
}

// Envelope is the document handed to a container invocation endpoint.
type Envelope struct {
	Resource                        string               `json:"resource"`
	Path                            string               `json:"path"`
	HTTPMethod                      string               `json:"httpMethod"`
	Headers                         map[string]string    `json:"headers"`
	MultiValueHeaders               map[string][]string  `json:"multiValueHeaders"`
	QueryStringParameters           map[string]string    `json:"queryStringParameters,omitempty"`
	MultiValueQueryStringParameters map[string][]string  `json:"multiValueQueryStringParameters,omitempty"`
	PathParameters                  map[string]string    `json:"pathParameters,omitempty"`
	RequestContext                  RequestContext       `json:"requestContext"`
	Body                            string               `json:"body"`
	IsBase64Encoded                 bool                 `json:"isBase64Encoded"`
}

// ProxyResponse is the shape a container returns on success.
type ProxyResponse struct {
	StatusCode      int               `json:"statusCode"`
	Headers         map[string]string `json:"headers"`
	Body            any               `json:"body"`
	IsBase64Encoded bool              `json:"isBase64Encoded"`
}

// ErrorDocument is the shape a container returns to signal a logical
// failure, even when the HTTP status is 200.
type ErrorDocument struct {
	ErrorType    string `json:"errorType"`
	ErrorMessage string `json:"errorMessage"`
}
