package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ryotayamanaka/mcp-city/pkg/hostconv"
	"github.com/ryotayamanaka/mcp-city/pkg/tool"
)

type mcpTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

func mcpTools(defs []tool.Definition) []mcpTool {
	out := make([]mcpTool, 0, len(defs))
	for _, d := range defs {
		out = append(out, mcpTool{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema()})
	}
	return out
}

func newToolsCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List tool definitions",
		Long:  "List the configured tools as a table or as mcp, openai or gemini JSON declarations.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := buildBridge(cmd.Context(), a.cfg, a.log, false)
			if err != nil {
				return err
			}
			defer b.Close()
			defs := b.disp.Registry().Definitions()
			out := cmd.OutOrStdout()

			var doc any
			switch format {
			case "text":
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for _, d := range defs {
					fmt.Fprintf(tw, "%s\t%s\n", d.Name, d.Description)
				}
				return tw.Flush()
			case "mcp":
				doc = mcpTools(defs)
			case "openai":
				doc, err = hostconv.OpenAITools(defs)
			case "gemini":
				doc, err = hostconv.GeminiTool(defs)
			default:
				return fmt.Errorf("unknown format %q (want text, mcp, openai or gemini)", format)
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "text, mcp, openai or gemini")
	return cmd
}
