// Package gateway is the request-facing half of the emulator: bearer
// auth, building the Lambda-style event envelope, routing a request to
// the right function's bounded worker pool behind its circuit breaker,
// and translating container responses (or their absence) back into an
// HTTP response.
package gateway
