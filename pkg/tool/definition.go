// Package tool defines the static description of agent-callable tools, the
// registry that holds them, and the tagged values that flow through an
// invocation.
//
// A Definition declares the tool name, a description for the model, and the
// parameter schema. Definitions are registered together with a Handler on a
// Registry at startup; once the registry is sealed it is read-only and may be
// shared by any number of concurrent invocations.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
)

// ParamType is the JSON type a parameter accepts.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
)

// Accepts reports whether v matches t by JSON type alone. No coercion is
// performed: "3" is not a number and 3.5 is not an integer.
func (t ParamType) Accepts(v Value) bool {
	switch t {
	case TypeString:
		return v.Kind() == KindString
	case TypeNumber:
		return v.Kind() == KindNumber
	case TypeInteger:
		return v.IsInteger()
	case TypeBoolean:
		return v.Kind() == KindBool
	case TypeObject:
		return v.Kind() == KindObject
	case TypeArray:
		return v.Kind() == KindArray
	default:
		return false
	}
}

func (t ParamType) valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeObject, TypeArray:
		return true
	}
	return false
}

// Param declares one named argument of a tool.
type Param struct {
	Type        ParamType
	Description string
	Required    bool
	// Default is applied when the argument is absent or null. It must match Type.
	Default any
	Enum    []any
	Minimum *float64
	Maximum *float64
	// Pattern is an RE2 expression string arguments must match.
	Pattern string
}

// Definition is the static, agent-facing description of a tool.
type Definition struct {
	Name        string
	Description string
	Params      map[string]Param
}

// ParamNames returns parameter names with required ones first, each group sorted.
func (d Definition) ParamNames() []string {
	names := make([]string, 0, len(d.Params))
	for n := range d.Params {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		ri, rj := d.Params[names[i]].Required, d.Params[names[j]].Required
		if ri != rj {
			return ri
		}
		return names[i] < names[j]
	})
	return names
}

// Required returns the names of required parameters in sorted order.
func (d Definition) Required() []string {
	var out []string
	for _, n := range d.ParamNames() {
		if d.Params[n].Required {
			out = append(out, n)
		}
	}
	return out
}

var toolNameRE = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,64}$`)

// Validate checks the definition itself, not any invocation.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if !toolNameRE.MatchString(d.Name) {
		return fmt.Errorf("tool name %q must match %s", d.Name, toolNameRE)
	}
	for name, p := range d.Params {
		if name == "" {
			return fmt.Errorf("tool %q: empty parameter name", d.Name)
		}
		if !p.Type.valid() {
			return fmt.Errorf("tool %q: parameter %q has unknown type %q", d.Name, name, p.Type)
		}
		if p.Pattern != "" {
			if _, err := regexp.Compile(p.Pattern); err != nil {
				return fmt.Errorf("tool %q: parameter %q pattern: %w", d.Name, name, err)
			}
		}
		if p.Default != nil {
			dv, err := FromAny(p.Default)
			if err != nil {
				return fmt.Errorf("tool %q: parameter %q default: %w", d.Name, name, err)
			}
			if !p.Type.Accepts(dv) {
				return fmt.Errorf("tool %q: parameter %q default %v is not %s", d.Name, name, p.Default, p.Type)
			}
		}
	}
	return nil
}

// Bound is a helper for Param.Minimum and Param.Maximum.
func Bound(f float64) *float64 { return &f }

// Handler executes a validated invocation. Arguments have been checked against
// the tool's parameter schema and defaults filled in before Call runs.
type Handler interface {
	Call(ctx context.Context, args Args) Result
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, args Args) Result

func (f HandlerFunc) Call(ctx context.Context, args Args) Result { return f(ctx, args) }

// Formatter renders a successful payload as natural-language text for the agent.
type Formatter func(payload json.RawMessage) (string, error)
