/*
Package runtime is the Container Driver: a typed, async facade over the
local container engine (containerd). It exposes create/start/stop/
remove/inspect/list, offloading every blocking engine call through an
Offloader so request-handling goroutines never stall on engine I/O.

The Driver interface is deliberately ignorant of function or pool
semantics; the Orchestrator decides what a container means, this package
only manages whether it exists and what state it's in.
*/
package runtime
