// Package orchestrator implements the ensure/provision/heartbeat state
// machine over a runtime.Driver: given a function name it reconciles
// actual container state to "one ready instance exists" (Ensure) or "N
// fresh instances exist" (Provision), tracks last access per container
// name, and on request sweeps containers that have gone idle past a
// configured threshold.
package orchestrator
