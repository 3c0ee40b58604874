package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseProxyResponseReparsesJSONStringBody(t *testing.T) {
	raw := []byte(`{"statusCode":200,"body":"{\"greeting\":\"hi\"}"}`)
	resp, err := parseProxyResponse("echo", raw)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, map[string]any{"greeting": "hi"}, resp.Body)
}

func TestParseProxyResponseSurfacesUnparseableBodyAsString(t *testing.T) {
	raw := []byte(`{"statusCode":200,"body":"not json at all"}`)
	resp, err := parseProxyResponse("echo", raw)
	require.NoError(t, err)
	require.Equal(t, "not json at all", resp.Body)
}

func TestParseProxyResponseDetectsErrorDocument(t *testing.T) {
	raw := []byte(`{"errorType":"ValueError","errorMessage":"bad input"}`)
	_, err := parseProxyResponse("echo", raw)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ValueError")
}

func TestParseProxyResponseRejectsNonJSON(t *testing.T) {
	_, err := parseProxyResponse("echo", []byte("<html>not json</html>"))
	require.Error(t, err)
}

func TestParseProxyResponseDefaultsMissingStatusCode(t *testing.T) {
	raw := []byte(`{"body":"ok"}`)
	resp, err := parseProxyResponse("echo", raw)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
}
