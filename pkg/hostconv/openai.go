package hostconv

import (
	"context"
	"encoding/json"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"

	"github.com/ryotayamanaka/mcp-city/pkg/tool"
)

// OpenAITools declares defs as Chat Completions function tools.
func OpenAITools(defs []tool.Definition) ([]openai.ChatCompletionToolUnionParam, error) {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(defs))
	for _, d := range defs {
		params, err := d.SchemaJSON()
		if err != nil {
			return nil, err
		}
		out = append(out, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        d.Name,
			Description: openai.String(d.Description),
			Parameters:  shared.FunctionParameters(params),
		}))
	}
	return out, nil
}

// OpenAIToolCall runs a model-issued tool call and returns the tool message
// answering it. Failures are reported in the message, never as an error.
func OpenAIToolCall(ctx context.Context, inv Invoker, text TextFunc, call openai.ChatCompletionMessageToolCallUnion) openai.ChatCompletionMessageParamUnion {
	if text == nil {
		text = JSONText
	}
	name := call.Function.Name
	res := inv.InvokeJSON(ctx, name, json.RawMessage(call.Function.Arguments))
	return openai.ToolMessage(text(name, res), call.ID)
}

// OpenAIToolCalls answers every tool call of an assistant message in order.
func OpenAIToolCalls(ctx context.Context, inv Invoker, text TextFunc, msg openai.ChatCompletionMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msg.ToolCalls))
	for _, call := range msg.ToolCalls {
		out = append(out, OpenAIToolCall(ctx, inv, text, call))
	}
	return out
}
