package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/ryotayamanaka/mcp-city/pkg/dispatch"
	"github.com/ryotayamanaka/mcp-city/pkg/errmodel"
	"github.com/ryotayamanaka/mcp-city/pkg/hostconv"
	"github.com/ryotayamanaka/mcp-city/pkg/mcpserver"
)

const maxRequestBytes = 1 << 20

func newServeCmd(a *app) *cobra.Command {
	var transport, addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tools over MCP stdio or HTTP",
		Long: `Serve the configured tools.

With --transport stdio a single MCP session is served on stdin/stdout; logs go
to stderr. With --transport http the following routes are served:

  POST /mcp         MCP streamable HTTP
  POST /v1/invoke   {"tool": "...", "arguments": {...}}
  GET  /v1/tools    tool definitions (?format=mcp|openai|gemini)
  GET  /healthz     liveness`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if transport != "" {
				a.cfg.Serve.Transport = transport
			}
			if addr != "" {
				a.cfg.Serve.Addr = addr
			}
			if err := a.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			b, err := buildBridge(cmd.Context(), a.cfg, a.log, true)
			if err != nil {
				return err
			}
			defer b.Close()

			srv := mcpserver.New(b.disp,
				mcpserver.WithRenderer(b.render),
				mcpserver.WithLogger(a.log.Named("mcp")),
				mcpserver.WithImplementation("citybridge", version),
			)
			switch a.cfg.Serve.Transport {
			case "stdio":
				return srv.ServeStdio(cmd.Context())
			case "http":
				return serveHTTP(cmd.Context(), a.cfg.Serve.Addr, buildMux(b, srv, a.cfg.Serve.APIKey), a.log)
			default:
				return errors.New("serve.transport must be stdio or http")
			}
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "", "stdio or http (overrides serve.transport)")
	cmd.Flags().StringVar(&addr, "addr", "", "http listen address (overrides serve.addr)")
	return cmd
}

func serveHTTP(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(h, "citybridge"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		log.Info("http server shutting down")
		return server.Shutdown(shutdownCtx)
	}
}

// buildMux serves the HTTP routes. A non-empty apiKey guards every route
// except /healthz with a bearer token.
func buildMux(b *bridge, srv *mcpserver.Server, apiKey string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/mcp", requireKey(apiKey, srv.Handler()))
	mux.Handle("POST /v1/invoke", requireKey(apiKey, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
		if err != nil {
			errmodel.WriteHTTP(w, r, errmodel.Validation(errmodel.CodeInvalidArgument, "unreadable request body", nil))
			return
		}
		var req dispatch.Request
		if err := json.Unmarshal(body, &req); err != nil {
			errmodel.WriteHTTP(w, r, errmodel.Validation(errmodel.CodeInvalidArgument, "request body must be {\"tool\": ..., \"arguments\": {...}}", nil))
			return
		}
		ctx := r.Context()
		if id := r.Header.Get("X-Request-ID"); id != "" {
			ctx = dispatch.WithRequestID(ctx, id)
		}
		res := b.disp.Handle(ctx, req)
		if !res.OK() {
			errmodel.WriteHTTP(w, r, res.Failure)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})))
	mux.Handle("GET /v1/tools", requireKey(apiKey, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defs := b.disp.Registry().Definitions()
		var (
			out any
			err error
		)
		switch r.URL.Query().Get("format") {
		case "", "mcp":
			out = mcpTools(defs)
		case "openai":
			out, err = hostconv.OpenAITools(defs)
		case "gemini":
			out, err = hostconv.GeminiTool(defs)
		default:
			errmodel.WriteHTTP(w, r, errmodel.Validation(errmodel.CodeInvalidArgument, "format must be mcp, openai or gemini", nil))
			return
		}
		if err != nil {
			errmodel.WriteHTTP(w, r, errmodel.System(errmodel.CodeInternal, "export tools", nil, err))
			return
		}
		writeJSON(w, http.StatusOK, out)
	})))
	return mux
}

func requireKey(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte("Bearer " + apiKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), want) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="citybridge"`)
			errmodel.WriteHTTP(w, r, errmodel.Unauthorized("missing or invalid bearer token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
