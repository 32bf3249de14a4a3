package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ryotayamanaka/mcp-city/pkg/citydb"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check connectivity to the device gateway and the city database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := buildBridge(cmd.Context(), a.cfg, a.log, false)
			if err != nil {
				return err
			}
			defer b.Close()
			out := cmd.OutOrStdout()
			var failed []error

			if res := b.gateway.Health(cmd.Context()); res.OK() {
				fmt.Fprintf(out, "gateway  %s  ok\n", b.gateway.BaseURL())
			} else {
				fmt.Fprintf(out, "gateway  %s  %s\n", b.gateway.BaseURL(), res.Failure.Message)
				failed = append(failed, fmt.Errorf("gateway: %s", res.Kind()))
			}

			if a.cfg.NeedsDatabase() {
				db, err := citydb.Open(cmd.Context(), a.cfg.Database.URL)
				if err == nil {
					fmt.Fprintf(out, "database %s  ok\n", db.Dialect())
					_ = db.Close()
				} else {
					fmt.Fprintf(out, "database  %v\n", err)
					failed = append(failed, fmt.Errorf("database: %w", err))
				}
			}
			return errors.Join(failed...)
		},
	}
}
