package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ryotayamanaka/mcp-city/pkg/dispatch"
)

func newCallCmd(a *app) *cobra.Command {
	var asJSON bool
	var requestID string
	cmd := &cobra.Command{
		Use:   "call <tool> [arguments-json]",
		Short: "Invoke one tool and print its result",
		Example: `  citybridge call get_inventory
  citybridge call make_purchase '{"product_id":"p001","quantity":2}'
  citybridge call execute_sql '{"query":"SELECT district, COUNT(*) FROM residents GROUP BY 1"}' --json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := buildBridge(cmd.Context(), a.cfg, a.log, true)
			if err != nil {
				return err
			}
			defer b.Close()

			var raw json.RawMessage
			if len(args) == 2 {
				raw = json.RawMessage(args[1])
			}
			ctx := cmd.Context()
			if requestID != "" {
				ctx = dispatch.WithRequestID(ctx, requestID)
			}
			res := b.disp.InvokeJSON(ctx, args[0], raw)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, b.text(args[0], res))
			}
			if !res.OK() {
				return fmt.Errorf("%s failed: %s", args[0], res.Kind())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result envelope instead of rendered text")
	cmd.Flags().StringVar(&requestID, "request-id", "", "request id sent to the gateway")
	return cmd
}
