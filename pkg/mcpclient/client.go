// Package mcpclient is a thin MCP client used to inspect and exercise a
// running bridge from the command line.
package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolDescriptor is the subset of an MCP tool listing the CLI prints.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// CallResult is the text content of a tool call.
type CallResult struct {
	Text    string `json:"text"`
	IsError bool   `json:"is_error"`
}

// Client holds one MCP session.
type Client struct {
	session *mcp.ClientSession
}

var impl = &mcp.Implementation{Name: "citybridge-inspect", Version: "dev"}

// Connect opens a session over t.
func Connect(ctx context.Context, t mcp.Transport) (*Client, error) {
	cs, err := mcp.NewClient(impl, nil).Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp connect: %w", err)
	}
	return &Client{session: cs}, nil
}

// Command starts name with args and speaks MCP over its stdio.
func Command(ctx context.Context, name string, args ...string) (*Client, error) {
	return Connect(ctx, &mcp.CommandTransport{Command: exec.Command(name, args...)})
}

// HTTP connects to a streamable HTTP endpoint.
func HTTP(ctx context.Context, endpoint string) (*Client, error) {
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("mcp endpoint %q: scheme must be http or https", endpoint)
	}
	return Connect(ctx, &mcp.StreamableClientTransport{Endpoint: endpoint})
}

// ListTools returns all tools, following pagination.
func (c *Client) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	var out []ToolDescriptor
	params := &mcp.ListToolsParams{}
	for {
		res, err := c.session.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
		for _, t := range res.Tools {
			d := ToolDescriptor{Name: t.Name, Description: t.Description}
			if t.InputSchema != nil {
				if b, err := json.Marshal(t.InputSchema); err == nil {
					d.InputSchema = b
				}
			}
			out = append(out, d)
		}
		if res.NextCursor == "" {
			return out, nil
		}
		params.Cursor = res.NextCursor
	}
}

// CallTool invokes name with a JSON object of arguments. A nil args sends an
// empty object.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (*CallResult, error) {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	var arguments map[string]any
	if err := json.Unmarshal(args, &arguments); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	res, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", name, err)
	}
	var parts []string
	for _, content := range res.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return &CallResult{Text: strings.Join(parts, "\n"), IsError: res.IsError}, nil
}

func (c *Client) Close() error {
	if c == nil || c.session == nil {
		return errors.New("mcp client not connected")
	}
	return c.session.Close()
}
