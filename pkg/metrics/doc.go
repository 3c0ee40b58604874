// Package metrics registers the process-wide Prometheus collectors for
// the Gateway and the Orchestrator and exposes the /metrics handler both
// processes mount. A Timer helper times an operation and reports it
// against a histogram at the call site, rather than threading start
// times through every function signature.
package metrics
