// Package hostconv converts tool definitions and calls between the registry
// and the function-calling conventions of agent hosts (OpenAI, Gemini).
package hostconv

import (
	"context"
	"encoding/json"

	"github.com/ryotayamanaka/mcp-city/pkg/tool"
)

// Invoker runs a tool by name with a raw JSON argument object.
type Invoker interface {
	InvokeJSON(ctx context.Context, name string, raw json.RawMessage) tool.Result
}

// TextFunc renders a result for name as agent-facing text.
type TextFunc func(name string, res tool.Result) string

// JSONText renders a result as its JSON envelope.
func JSONText(_ string, res tool.Result) string {
	b, err := json.Marshal(res)
	if err != nil {
		return `{"ok":false}`
	}
	return string(b)
}
