// Package tracecontext carries the per-request trace_id/request_id pair
// on context.Context and derives a zerolog child logger pre-populated
// with both, so any log call reachable from request handling
// automatically carries the same correlation ids — the same child-logger
// discipline pkg/log uses for component names, applied per request
// instead of per process.
package tracecontext

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/faaslocal/platform/pkg/log"
	"github.com/faaslocal/platform/pkg/types"
)

// HeaderName is the trace-propagation header, in the X-Ray-style format
// `Root=1-<epoch_hex>-<random_hex>;Sampled=1`.
const HeaderName = "X-Amzn-Trace-Id"

// RequestIDHeader echoes the hop-local request id back to the caller.
const RequestIDHeader = "x-amzn-RequestId"

type ctxKey struct{}

// WithContext returns a context carrying tc, retrievable via From.
func WithContext(ctx context.Context, tc types.TraceContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// From retrieves the TraceContext previously attached with WithContext.
// Returns the zero value if none was attached.
func From(ctx context.Context) types.TraceContext {
	tc, _ := ctx.Value(ctxKey{}).(types.TraceContext)
	return tc
}

// Logger returns a child of the global logger enriched with the
// context's trace_id and request_id fields.
func Logger(ctx context.Context) zerolog.Logger {
	tc := From(ctx)
	return log.WithTrace(tc.TraceID, tc.RequestID)
}

// Adopt reads the inbound trace header, adopting it if present and
// well-formed or synthesising a fresh one otherwise, always mints a new
// request id, and returns a context carrying both.
func Adopt(ctx context.Context, r *http.Request) context.Context {
	traceID := r.Header.Get(HeaderName)
	if !looksValid(traceID) {
		traceID = synthesize()
	}
	tc := types.TraceContext{
		TraceID:   traceID,
		RequestID: uuid.New().String(),
	}
	return WithContext(ctx, tc)
}

// Echo writes both correlation ids back on the response, per the
// propagation contract: trace id on the same header it arrived on (or
// was synthesised into), request id on RequestIDHeader.
func Echo(w http.ResponseWriter, ctx context.Context) {
	tc := From(ctx)
	w.Header().Set(HeaderName, tc.TraceID)
	w.Header().Set(RequestIDHeader, tc.RequestID)
}

// Propagate sets the trace header (and only the trace header) on an
// outbound request to the Orchestrator, which applies the same adoption
// middleware and mints its own hop-local request id.
func Propagate(req *http.Request, ctx context.Context) {
	tc := From(ctx)
	req.Header.Set(HeaderName, tc.TraceID)
}

func looksValid(h string) bool {
	return strings.HasPrefix(h, "Root=1-")
}

func synthesize() string {
	epoch := fmt.Sprintf("%x", time.Now().Unix())
	randBytes := make([]byte, 12)
	_, _ = rand.Read(randBytes)
	return fmt.Sprintf("Root=1-%s-%s;Sampled=1", epoch, hex.EncodeToString(randBytes))
}
