package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ryotayamanaka/mcp-city/internal/config"
	"github.com/ryotayamanaka/mcp-city/pkg/mcpserver"
)

func fakeDevices(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method + " " + r.URL.Path {
		case "GET /api/health":
			_, _ = io.WriteString(w, `{"status":"ok"}`)
		case "GET /api/vending/inventory":
			_, _ = io.WriteString(w, `{"inventory":{"p001":{"name":"Coca Cola","stock":10,"category":"drinks"}}}`)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// env points the commands at the fake gateway with only the vending tools.
func env(t *testing.T, gatewayURL string) {
	t.Helper()
	t.Setenv("CITYBRIDGE_GATEWAY_URL", gatewayURL)
	t.Setenv("CITYBRIDGE_TOOLS_SETS", "vending")
	t.Setenv("CITYBRIDGE_LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := runTraced(t, args...)
	return out, err
}

// runTraced also returns the spans written by the stdout exporter.
func runTraced(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, spans bytes.Buffer
	root, a := newRootCmd()
	a.traceOut = &spans
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := a.execute(context.Background(), root)
	return out.String(), spans.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "citybridge dev"), out)
}

func TestToolsCommandFormats(t *testing.T) {
	env(t, "http://127.0.0.1:1")

	out, err := run(t, "tools")
	require.NoError(t, err)
	assert.Contains(t, out, "make_purchase")
	assert.NotContains(t, out, "execute_sql")

	out, err = run(t, "tools", "--format", "openai")
	require.NoError(t, err)
	var tools []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &tools))
	assert.Len(t, tools, 5)
	assert.Equal(t, "function", tools[0]["type"])

	_, err = run(t, "tools", "--format", "yaml")
	assert.Error(t, err)
}

func TestCallCommand(t *testing.T) {
	gw := fakeDevices(t)
	env(t, gw.URL)

	out, err := run(t, "call", "get_inventory", "--json")
	require.NoError(t, err)
	var envelope struct {
		OK     bool            `json:"ok"`
		Result json.RawMessage `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &envelope))
	assert.True(t, envelope.OK)
	assert.Contains(t, string(envelope.Result), "Coca Cola")

	out, err = run(t, "call", "get_inventory")
	require.NoError(t, err)
	assert.Contains(t, out, "Coca Cola")

	out, err = run(t, "call", "teleport")
	require.Error(t, err)
	assert.Contains(t, out, "unknown_tool")

	out, err = run(t, "call", "get_sales_data")
	require.Error(t, err)
	assert.Contains(t, out, "remote_unavailable")
}

func TestCheckCommand(t *testing.T) {
	gw := fakeDevices(t)
	env(t, gw.URL)
	out, err := run(t, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "ok")

	env(t, "http://127.0.0.1:1")
	_, err = run(t, "check")
	assert.Error(t, err)
}

func TestInvalidConfigFailsEarly(t *testing.T) {
	env(t, "ftp://nowhere")
	_, err := run(t, "tools")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway.url")
}

func newTestMux(t *testing.T, gatewayURL, apiKey string) *httptest.Server {
	t.Helper()
	env(t, gatewayURL)
	cfg, err := config.Load("")
	require.NoError(t, err)
	b, err := buildBridge(context.Background(), cfg, zap.NewNop(), false)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	srv := httptest.NewServer(buildMux(b, mcpserver.New(b.disp), apiKey))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	res, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer res.Body.Close()
	var doc map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&doc))
	return res, doc
}

func TestInvokeEndpoint(t *testing.T) {
	srv := newTestMux(t, fakeDevices(t).URL, "")

	res, doc := post(t, srv.URL+"/v1/invoke", `{"tool":"get_inventory"}`)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, true, doc["ok"])

	res, doc = post(t, srv.URL+"/v1/invoke", `{"tool":"teleport","arguments":{}}`)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "unknown_tool", doc["error"].(map[string]any)["code"])

	res, doc = post(t, srv.URL+"/v1/invoke", `{"tool":"make_purchase","arguments":{}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Equal(t, "missing_argument", doc["error"].(map[string]any)["code"])

	res, _ = post(t, srv.URL+"/v1/invoke", `not json`)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)

	res, doc = post(t, srv.URL+"/v1/invoke", `{"tool":"get_sales_data"}`)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, "remote_unavailable", doc["error"].(map[string]any)["code"])
}

func TestToolsEndpointAndHealth(t *testing.T) {
	srv := newTestMux(t, "http://127.0.0.1:1", "")

	res, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	for _, format := range []string{"", "mcp", "openai", "gemini"} {
		res, err := http.Get(srv.URL + "/v1/tools?format=" + format)
		require.NoError(t, err)
		body, _ := io.ReadAll(res.Body)
		_ = res.Body.Close()
		assert.Equal(t, http.StatusOK, res.StatusCode, format)
		assert.Contains(t, string(body), "get_products", format)
	}

	res, err = http.Get(srv.URL + "/v1/tools?format=xml")
	require.NoError(t, err)
	_ = res.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
}

func TestFailedCommandStillFlushesSpans(t *testing.T) {
	gw := fakeDevices(t)
	env(t, gw.URL)
	t.Setenv("CITYBRIDGE_OTEL_STDOUT", "true")

	_, spans, err := runTraced(t, "call", "get_sales_data")
	require.Error(t, err)
	assert.Contains(t, spans, "Dispatcher.Invoke")
}

func TestAPIKeyGuardsRoutes(t *testing.T) {
	srv := newTestMux(t, fakeDevices(t).URL, "s3cret")

	res, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, doc := post(t, srv.URL+"/v1/invoke", `{"tool":"get_inventory"}`)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", doc["error"].(map[string]any)["code"])
	assert.Equal(t, "policy", doc["error"].(map[string]any)["category"])

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/invoke", strings.NewReader(`{"tool":"get_inventory"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer s3cret")
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(srv.URL + "/v1/tools")
	require.NoError(t, err)
	_ = res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestServeStdioRejectsStdoutLogs(t *testing.T) {
	env(t, "http://127.0.0.1:1")
	t.Setenv("CITYBRIDGE_SERVE_TRANSPORT", "http")
	t.Setenv("CITYBRIDGE_LOG_OUTPUT", "stdout")

	_, err := run(t, "serve", "--transport", "stdio")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.output")
}
