package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ryotayamanaka/mcp-city/internal/config"
	"github.com/ryotayamanaka/mcp-city/internal/logger"
	"github.com/ryotayamanaka/mcp-city/pkg/otel"
)

// app carries state shared by every subcommand after the root pre-run.
type app struct {
	cfgPath  string
	logLevel string
	// traceOut receives stdout-exporter spans; nil means os.Stderr.
	traceOut io.Writer

	cfg      *config.Config
	log      *zap.Logger
	shutdown func(context.Context) error
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}
	root := &cobra.Command{
		Use:   "citybridge",
		Short: "Tool-calling bridge for the mock city devices",
		Long: `citybridge exposes the vending machine, the ePalette delivery cart and the
city database as tools an agent can call.

Tools are served over MCP (stdio or streamable HTTP) and a JSON HTTP API, and
can be called directly from the command line.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config file (yaml, toml or json)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level")

	root.AddCommand(
		newServeCmd(a),
		newCallCmd(a),
		newToolsCmd(a),
		newCheckCmd(a),
		newDBCmd(a),
		newInspectCmd(a),
		newVersionCmd(),
	)
	return root, a
}

// execute runs root and releases tracing and logging afterwards, also when
// the command fails. cobra skips post-run hooks on error.
func (a *app) execute(ctx context.Context, root *cobra.Command) error {
	defer a.teardown(ctx)
	return root.ExecuteContext(ctx)
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	if err != nil {
		return err
	}
	// Spans must never reach stdout, which carries MCP frames in stdio mode.
	traceOut := a.traceOut
	if traceOut == nil {
		traceOut = os.Stderr
	}
	shutdown, err := otel.Init(cmd.Context(), otel.Config{
		ServiceVersion: version,
		UseStdout:      cfg.OTel.Stdout,
		Writer:         traceOut,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.cfg, a.log, a.shutdown = cfg, log, shutdown
	return nil
}

func (a *app) teardown(ctx context.Context) {
	if a.shutdown != nil {
		if err := a.shutdown(context.WithoutCancel(ctx)); err != nil {
			a.log.Warn("tracer shutdown", zap.Error(err))
		}
		a.shutdown = nil
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "citybridge %s (commit=%s, date=%s)\n", version, commit, date)
		},
	}
}
