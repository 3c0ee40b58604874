// Package reconciler is the ticking half of idle container reaping: it
// owns a timer and nothing else, delegating every decision about which
// containers are idle to the Orchestrator's Reap method. Keeping the
// timer and the sweep logic in separate packages lets the sweep be unit
// tested without a clock and the timer be tested without a container
// engine.
package reconciler
