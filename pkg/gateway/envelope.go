package gateway

import (
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/faaslocal/platform/pkg/tracecontext"
	"github.com/faaslocal/platform/pkg/types"
)

// buildEnvelope assembles the event document handed to a container
// invocation endpoint from an inbound HTTP request. Body is carried as
// valid UTF-8 text verbatim; anything else (binary payloads, a
// Content-Encoding that signals compression, or text that merely
// happens to contain invalid UTF-8) is base64-encoded with
// IsBase64Encoded set, mirroring the convention of the managed platform
// this emulates.
func buildEnvelope(r *http.Request, resource, matchedPath string, pathParams map[string]string, stage string) (types.Envelope, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return types.Envelope{}, err
	}

	body, isBase64 := encodeBody(raw, r.Header.Get("Content-Encoding"))

	headers := make(map[string]string, len(r.Header))
	multiHeaders := make(map[string][]string, len(r.Header))
	for k, vs := range r.Header {
		multiHeaders[k] = vs
		headers[k] = vs[len(vs)-1]
	}

	query := make(map[string]string, len(r.URL.Query()))
	multiQuery := make(map[string][]string, len(r.URL.Query()))
	for k, vs := range r.URL.Query() {
		multiQuery[k] = vs
		query[k] = vs[len(vs)-1]
	}

	tc := tracecontext.From(r.Context())

	return types.Envelope{
		Resource:                        resource,
		Path:                            r.URL.Path,
		HTTPMethod:                      strings.ToUpper(r.Method),
		Headers:                         headers,
		MultiValueHeaders:               multiHeaders,
		QueryStringParameters:           query,
		MultiValueQueryStringParameters: multiQuery,
		PathParameters:                  pathParams,
		RequestContext: types.RequestContext{
			Identity: types.Identity{
				SourceIP:  sourceIP(r),
				UserAgent: r.UserAgent(),
			},
			Authorizer: types.Authorizer{Claims: claimsFromContext(r)},
			RequestID:  tc.RequestID,
			Stage:      stage,
			Protocol:   r.Proto,
			Path:       matchedPath,
		},
		Body:            body,
		IsBase64Encoded: isBase64,
	}, nil
}

func encodeBody(raw []byte, contentEncoding string) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	if !isCompressed(contentEncoding) && utf8.Valid(raw) {
		return string(raw), false
	}
	return base64.StdEncoding.EncodeToString(raw), true
}

// isCompressed reports whether Content-Encoding names a compression
// scheme, taking gzip as the scheme a container is ever configured to
// emit.
func isCompressed(contentEncoding string) bool {
	return strings.Contains(strings.ToLower(contentEncoding), "gzip")
}

func sourceIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i != -1 {
		return host[:i]
	}
	return host
}

type authClaimsKey struct{}

func claimsFromContext(r *http.Request) map[string]string {
	if v, ok := r.Context().Value(authClaimsKey{}).(map[string]string); ok {
		return v
	}
	return map[string]string{}
}
