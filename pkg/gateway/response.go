package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/faaslocal/platform/pkg/log"
	"github.com/faaslocal/platform/pkg/platformerr"
	"github.com/faaslocal/platform/pkg/types"
)

// parseProxyResponse interprets a container's raw HTTP body as either a
// proxy response or an error document, and is the one place that
// decides which. A container that fails at the transport level never
// reaches here (that's KindUpstreamTransport, raised before this is
// called); everything this function sees arrived as a well-formed HTTP
// response and is judged purely on its JSON shape.
func parseProxyResponse(functionName string, raw []byte) (*types.ProxyResponse, error) {
	var probe map[string]any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, platformerr.Wrap(platformerr.KindUpstreamLogical, "container response is not valid JSON", err)
	}

	if _, isError := probe["errorType"]; isError {
		var doc types.ErrorDocument
		if err := json.Unmarshal(raw, &doc); err == nil {
			return nil, platformerr.New(platformerr.KindUpstreamLogical, doc.ErrorType+": "+doc.ErrorMessage)
		}
	}

	var resp types.ProxyResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, platformerr.Wrap(platformerr.KindUpstreamLogical, "container response does not match the proxy response shape", err)
	}
	if resp.StatusCode == 0 {
		resp.StatusCode = http.StatusOK
	}

	// The body is carried as a JSON string by convention; re-parse it to
	// its underlying value so callers see structured JSON rather than a
	// doubly-encoded string. A body that fails to re-parse is not an
	// error -- it's surfaced to the caller exactly as the container sent
	// it, with a warning logged for operators.
	if s, ok := resp.Body.(string); ok && s != "" {
		var reparsed any
		if err := json.Unmarshal([]byte(s), &reparsed); err == nil {
			resp.Body = reparsed
		} else {
			log.WithFunction(functionName).Warn().Msg("container body was not re-parseable JSON; returning as-is")
		}
	}

	return &resp, nil
}
