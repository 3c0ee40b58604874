/*
Package types defines the data structures shared across the invocation
plane: the Gateway and the Orchestrator.

It has no behaviour of its own — every operation that acts on these
types lives in the package that owns the concern (pkg/gateway for pools
and breakers, pkg/orchestrator for container lifecycle, pkg/registry for
routes and function descriptors).

# Core Types

Function shape:
  - FunctionDescriptor: name, image, environment, scaling bounds
  - ScalingBounds: max/min capacity and acquire timeout

Routing:
  - Route: one (method, path pattern) to function name mapping

Runtime:
  - Worker: one running container reference (id, name, ip, port)
  - Container: desired/actual state pair for one managed container
  - ContainerState: pending, starting, running, failed, complete, removed

Invocation:
  - Envelope: the Lambda-style event handed to a container
  - ProxyResponse / ErrorDocument: the two shapes a container may reply with
  - TraceContext: the trace_id/request_id pair carried per request
  - BreakerState: closed, open, half_open
*/
package types
