package hostconv

import (
	"context"
	"encoding/json"

	"google.golang.org/genai"

	"github.com/ryotayamanaka/mcp-city/pkg/tool"
)

// GeminiTool declares defs as one Gemini tool with a function declaration each.
func GeminiTool(defs []tool.Definition) (*genai.Tool, error) {
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		params, err := d.SchemaJSON()
		if err != nil {
			return nil, err
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 d.Name,
			Description:          d.Description,
			ParametersJsonSchema: params,
		})
	}
	return &genai.Tool{FunctionDeclarations: decls}, nil
}

// GeminiFunctionCall runs a model-issued function call and returns the part
// carrying the response. Successful payloads go under "output" and failures
// under "error", as Gemini expects.
func GeminiFunctionCall(ctx context.Context, inv Invoker, call *genai.FunctionCall) *genai.Part {
	raw, err := json.Marshal(call.Args)
	if err != nil || call.Args == nil {
		raw = json.RawMessage(`{}`)
	}
	res := inv.InvokeJSON(ctx, call.Name, raw)

	resp := map[string]any{}
	if res.OK() {
		var out any
		if err := json.Unmarshal(res.Payload, &out); err != nil {
			out = string(res.Payload)
		}
		resp["output"] = out
	} else {
		resp["error"] = res.Failure
	}
	return &genai.Part{FunctionResponse: &genai.FunctionResponse{
		ID:       call.ID,
		Name:     call.Name,
		Response: resp,
	}}
}

// GeminiFunctionCalls answers all function calls found in content.
func GeminiFunctionCalls(ctx context.Context, inv Invoker, content *genai.Content) *genai.Content {
	out := &genai.Content{Role: "user"}
	if content == nil {
		return out
	}
	for _, p := range content.Parts {
		if p != nil && p.FunctionCall != nil {
			out.Parts = append(out.Parts, GeminiFunctionCall(ctx, inv, p.FunctionCall))
		}
	}
	return out
}
