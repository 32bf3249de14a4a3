package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ryotayamanaka/mcp-city/pkg/mcpclient"
)

func newInspectCmd(a *app) *cobra.Command {
	var endpoint, callName, callArgs string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Connect to a bridge over MCP and list or call its tools",
		Long: `Connect to a running bridge as an MCP client.

Without --url a child "citybridge serve --transport stdio" is started with the
same config file.`,
		Example: `  citybridge inspect --url http://localhost:8080/mcp
  citybridge inspect --call get_inventory`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var (
				c   *mcpclient.Client
				err error
			)
			if endpoint != "" {
				c, err = mcpclient.HTTP(ctx, endpoint)
			} else {
				exe, exeErr := os.Executable()
				if exeErr != nil {
					return exeErr
				}
				args := []string{"serve", "--transport", "stdio"}
				if a.cfgPath != "" {
					args = append(args, "--config", a.cfgPath)
				}
				c, err = mcpclient.Command(ctx, exe, args...)
			}
			if err != nil {
				return err
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			if callName == "" {
				tools, err := c.ListTools(ctx)
				if err != nil {
					return err
				}
				for _, t := range tools {
					fmt.Fprintf(out, "%-22s %s\n", t.Name, t.Description)
				}
				return nil
			}

			var raw json.RawMessage
			if callArgs != "" {
				raw = json.RawMessage(callArgs)
			}
			res, err := c.CallTool(ctx, callName, raw)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, res.Text)
			if res.IsError {
				return errors.New(callName + " returned an error")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&endpoint, "url", "", "streamable HTTP endpoint of a running bridge")
	cmd.Flags().StringVar(&callName, "call", "", "tool to call instead of listing")
	cmd.Flags().StringVar(&callArgs, "args", "", "JSON arguments for --call")
	return cmd
}
