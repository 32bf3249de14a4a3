// Package mcpserver exposes the tool registry over the Model Context Protocol.
// Every registered tool becomes an MCP tool whose call goes through the
// dispatcher and returns the rendered text of the result.
package mcpserver

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ryotayamanaka/mcp-city/pkg/dispatch"
	"github.com/ryotayamanaka/mcp-city/pkg/render"
	"github.com/ryotayamanaka/mcp-city/pkg/tool"
)

const defaultName = "citybridge"

// Server wraps an MCP server bound to one dispatcher.
type Server struct {
	disp    *dispatch.Dispatcher
	render  *render.Renderer
	log     *zap.Logger
	name    string
	version string
	mcp     *mcp.Server
}

type Option func(*Server)

// WithRenderer sets the renderer used for tool output.
func WithRenderer(r *render.Renderer) Option {
	return func(s *Server) {
		if r != nil {
			s.render = r
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithImplementation sets the name and version announced during initialization.
func WithImplementation(name, version string) Option {
	return func(s *Server) {
		if name != "" {
			s.name = name
		}
		s.version = version
	}
}

// New builds a server exporting every tool of the dispatcher's registry.
func New(d *dispatch.Dispatcher, opts ...Option) *Server {
	s := &Server{
		disp:    d,
		render:  render.New(),
		log:     zap.NewNop(),
		name:    defaultName,
		version: "dev",
	}
	for _, o := range opts {
		o(s)
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: s.name, Version: s.version}, nil)
	for _, def := range d.Registry().Definitions() {
		s.mcp.AddTool(&mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema(),
		}, s.handler(def.Name))
	}
	s.log.Info("mcp tools registered", zap.Int("count", d.Registry().Len()))
	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcp.Server { return s.mcp }

// ServeStdio serves a single session over stdin/stdout until ctx is done or
// the peer disconnects.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.log.Info("serving mcp over stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// Handler serves MCP over streamable HTTP.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
}

func (s *Server) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := s.disp.InvokeJSON(ctx, name, req.Params.Arguments)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: s.text(name, res)}},
			IsError: !res.OK(),
		}, nil
	}
}

func (s *Server) text(name string, res tool.Result) string {
	var format tool.Formatter
	if e, err := s.disp.Registry().Entry(name); err == nil {
		format = e.Format
	}
	return s.render.Result(res, format)
}
