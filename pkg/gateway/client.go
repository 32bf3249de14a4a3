// Package gateway is the HTTP client for the device gateway REST API. Every
// call is bounded by a timeout and mapped onto the invocation error taxonomy;
// the gateway's response body is passed back unchanged on success.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/ryotayamanaka/mcp-city/pkg/dispatch"
	"github.com/ryotayamanaka/mcp-city/pkg/errmodel"
	"github.com/ryotayamanaka/mcp-city/pkg/tool"
)

const (
	DefaultTimeout = 10 * time.Second
	maxBodyBytes   = 4 << 20
)

// Call is one concrete request against the gateway.
type Call struct {
	Method string
	// Path is relative to the base URL and already percent-escaped.
	Path  string
	Query url.Values
	// Body is JSON-encoded when non-nil.
	Body any
}

// Client talks to one gateway base URL. It is safe for concurrent use.
type Client struct {
	base    *url.URL
	apiKey  string
	timeout time.Duration
	hc      *http.Client
	log     *zap.Logger
}

type Option func(*Client)

// WithAPIKey sends "Authorization: Bearer <key>" on every request.
func WithAPIKey(key string) Option { return func(c *Client) { c.apiKey = key } }

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("gateway url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("gateway url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base:    u,
		timeout: DefaultTimeout,
		hc:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) BaseURL() string { return c.base.String() }

// Do performs call and maps the outcome. Cancellation of ctx is not
// propagated: a started request runs until it completes or the client
// timeout expires.
func (c *Client) Do(ctx context.Context, call Call) tool.Result {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	method := call.Method
	if method == "" {
		method = http.MethodGet
	}
	target := c.endpointURL(call)
	errCtx := map[string]any{"method": method, "path": call.Path}

	var body io.Reader
	if call.Body != nil {
		b, err := json.Marshal(call.Body)
		if err != nil {
			return tool.Fail(errmodel.System(errmodel.CodeInternal, "encode request body", errCtx, err))
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return tool.Fail(errmodel.System(errmodel.CodeInternal, "build request", errCtx, err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if id := dispatch.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		c.log.Warn("gateway request failed", zap.String("method", method), zap.String("path", call.Path), zap.Error(err))
		if errors.Is(err, context.DeadlineExceeded) {
			return tool.Fail(errmodel.RemoteUnavailable(fmt.Sprintf("gateway timed out after %s", c.timeout), errCtx, err))
		}
		return tool.Fail(errmodel.RemoteUnavailable("gateway unreachable", errCtx, err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	c.log.Debug("gateway request",
		zap.String("method", method),
		zap.String("path", call.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	errCtx["status"] = resp.StatusCode
	if err != nil {
		return tool.Fail(errmodel.RemoteUnavailable(fmt.Sprintf("gateway response read failed (status %d)", resp.StatusCode), errCtx, err))
	}
	if len(raw) > maxBodyBytes {
		return tool.Fail(errmodel.RemoteRejected(fmt.Sprintf("gateway response exceeds %d bytes", maxBodyBytes), errCtx))
	}
	return mapResponse(resp.StatusCode, raw, errCtx)
}

func mapResponse(status int, raw []byte, errCtx map[string]any) tool.Result {
	switch {
	case status >= 200 && status < 300:
		return tool.Success(payload(raw))
	case status >= 500:
		errCtx["body"] = string(raw)
		return tool.Fail(errmodel.RemoteUnavailable(fmt.Sprintf("gateway returned %d %s", status, http.StatusText(status)), errCtx, nil))
	default:
		errCtx["body"] = string(raw)
		msg := fmt.Sprintf("gateway returned %d %s", status, http.StatusText(status))
		if detail := detailOf(raw); detail != "" {
			msg += ": " + detail
		}
		return tool.Fail(errmodel.RemoteRejected(msg, errCtx))
	}
}

// payload returns raw unchanged when it is JSON; otherwise raw as a JSON string.
func payload(raw []byte) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(raw) {
		return raw
	}
	b, _ := json.Marshal(string(raw))
	return b
}

// detailOf extracts the conventional "detail"/"error"/"message" field of an error body.
func detailOf(raw []byte) string {
	var doc map[string]any
	if json.Unmarshal(raw, &doc) != nil {
		return ""
	}
	for _, k := range []string{"detail", "error", "message"} {
		if s, ok := doc[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func (c *Client) endpointURL(call Call) string {
	u := *c.base
	raw := strings.TrimRight(c.base.EscapedPath(), "/") + "/" + strings.TrimLeft(call.Path, "/")
	if p, err := url.PathUnescape(raw); err == nil {
		u.Path, u.RawPath = p, raw
	} else {
		u.Path, u.RawPath = raw, ""
	}
	u.RawQuery = call.Query.Encode()
	return u.String()
}

// Health calls GET /api/health.
func (c *Client) Health(ctx context.Context) tool.Result {
	return c.Do(ctx, Call{Method: http.MethodGet, Path: "/api/health"})
}
