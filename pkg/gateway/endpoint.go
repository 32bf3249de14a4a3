package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ryotayamanaka/mcp-city/pkg/errmodel"
	"github.com/ryotayamanaka/mcp-city/pkg/tool"
)

// Endpoint is the static request template of one tool. Path may contain
// {name} placeholders filled from arguments; Query and Body list the
// arguments sent as query parameters and JSON body fields.
type Endpoint struct {
	Method string
	Path   string
	Query  []string
	Body   []string
}

// Build renders the template with args. Absent optional arguments are omitted.
func (e Endpoint) Build(args tool.Args) (Call, error) {
	call := Call{Method: e.Method, Path: e.Path}
	if call.Method == "" {
		call.Method = http.MethodGet
	}
	for strings.Contains(call.Path, "{") {
		i := strings.Index(call.Path, "{")
		j := strings.Index(call.Path[i:], "}")
		if j < 0 {
			return Call{}, errmodel.System(errmodel.CodeInternal, "unterminated placeholder in "+e.Path, nil, nil)
		}
		name := call.Path[i+1 : i+j]
		if !args.Has(name) {
			return Call{}, errmodel.MissingArgument("", name)
		}
		call.Path = call.Path[:i] + url.PathEscape(valueString(args[name])) + call.Path[i+j+1:]
	}
	for _, name := range e.Query {
		if !args.Has(name) {
			continue
		}
		if call.Query == nil {
			call.Query = url.Values{}
		}
		call.Query.Set(name, valueString(args[name]))
	}
	if len(e.Body) > 0 {
		body := make(map[string]any, len(e.Body))
		for _, name := range e.Body {
			if args.Has(name) {
				body[name] = args[name].Any()
			}
		}
		call.Body = body
	}
	return call, nil
}

func valueString(v tool.Value) string {
	switch v.Kind() {
	case tool.KindString:
		s, _ := v.AsString()
		return s
	case tool.KindBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b)
	default:
		b, _ := v.MarshalJSON()
		return string(b)
	}
}

// Handler adapts an endpoint template to a tool handler backed by c.
func (c *Client) Handler(e Endpoint) tool.Handler {
	return tool.HandlerFunc(func(ctx context.Context, args tool.Args) tool.Result {
		call, err := e.Build(args)
		if err != nil {
			return tool.Fail(err)
		}
		return c.Do(ctx, call)
	})
}
