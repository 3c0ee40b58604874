// Package platformerr is the sum-typed error taxonomy shared by the
// Gateway and the Orchestrator. Each boundary has exactly one function
// that translates an error into an HTTP status and JSON body; nothing
// upstream of that boundary inspects or panics on these values.
package platformerr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Kind classifies an error by its user-visible disposition.
type Kind string

const (
	KindClient            Kind = "client_error"
	KindUnauthorized      Kind = "unauthorized"
	KindFunctionNotFound  Kind = "function_not_found"
	KindRouteNotFound     Kind = "route_not_found"
	KindAcquireTimeout    Kind = "acquire_timeout"
	KindStartupTimeout    Kind = "startup_timeout"
	KindNameConflict      Kind = "name_conflict"
	KindUpstreamTransport Kind = "upstream_transport"
	KindUpstreamLogical   Kind = "upstream_logical"
	KindBreakerOpen       Kind = "breaker_open"
	KindEngineError       Kind = "engine_error"
	KindInternal          Kind = "internal"
)

// Error is the sum-typed error value carried through the system. Detail
// is safe to return to the caller; Err (if set) is logged but never
// serialized.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Detail + ": " + e.Err.Error()
	}
	return e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a platform error of the given kind.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap builds a platform error of the given kind around an underlying
// cause, preserving it for logging via errors.Unwrap.
func Wrap(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// Status maps a Kind to its corresponding HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindFunctionNotFound, KindRouteNotFound:
		return http.StatusNotFound
	case KindAcquireTimeout, KindStartupTimeout:
		return http.StatusRequestTimeout
	case KindNameConflict:
		return http.StatusConflict
	case KindUpstreamTransport, KindUpstreamLogical, KindBreakerOpen:
		return http.StatusBadGateway
	case KindClient:
		return http.StatusBadRequest
	case KindEngineError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// body is the wire shape of every error response: {"error": "<kind>",
// "detail": "<message>"}.
type body struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// WriteHTTP is the single translation point at a process boundary: it
// converts err (classified or not) into a status code and JSON body and
// writes both to w. Unclassified errors become KindInternal / 500,
// never leaking internal detail to the client.
func WriteHTTP(w http.ResponseWriter, err error) {
	var perr *Error
	if !errors.As(err, &perr) {
		perr = &Error{Kind: KindInternal, Detail: "internal error", Err: err}
	}

	status := Status(perr.Kind)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body{Error: string(perr.Kind), Detail: perr.Detail})
}
