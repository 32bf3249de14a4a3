package tool

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaDraft = "https://json-schema.org/draft/2020-12/schema"

// InputSchema renders the parameter declaration as a JSON Schema object.
// Unknown arguments are not allowed.
func (d Definition) InputSchema() *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:                 "object",
		Properties:           make(map[string]*jsonschema.Schema, len(d.Params)),
		Required:             d.Required(),
		AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
	}
	for _, name := range d.ParamNames() {
		p := d.Params[name]
		ps := &jsonschema.Schema{
			Type:        string(p.Type),
			Description: p.Description,
			Enum:        p.Enum,
			Minimum:     p.Minimum,
			Maximum:     p.Maximum,
			Pattern:     p.Pattern,
		}
		if p.Default != nil {
			if b, err := json.Marshal(p.Default); err == nil {
				ps.Default = b
			}
		}
		s.Properties[name] = ps
	}
	return s
}

// SchemaJSON returns the input schema as a generic JSON document.
func (d Definition) SchemaJSON() (map[string]any, error) {
	b, err := json.Marshal(d.InputSchema())
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// compiledSchema checks constraints (enum, bounds, pattern) that go beyond
// plain JSON-type matching.
type compiledSchema struct {
	sch *validator.Schema
}

func compileSchema(d Definition) (*compiledSchema, error) {
	b, err := json.Marshal(d.InputSchema())
	if err != nil {
		return nil, err
	}
	doc, err := validator.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	if m, ok := doc.(map[string]any); ok {
		m["$schema"] = schemaDraft
	}
	url := "mem://tools/" + d.Name + ".json"
	c := validator.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", d.Name, err)
	}
	return &compiledSchema{sch: sch}, nil
}

// validate returns the offending argument name ("" when unknown) and the error.
func (c *compiledSchema) validate(args Args) (string, error) {
	if c == nil || c.sch == nil {
		return "", nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	inst, err := validator.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	err = c.sch.Validate(inst)
	if err == nil {
		return "", nil
	}
	var ve *validator.ValidationError
	if errors.As(err, &ve) {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		param := ""
		if len(leaf.InstanceLocation) > 0 {
			param = leaf.InstanceLocation[0]
		}
		return param, errors.New(lastLine(ve.Error()))
	}
	return "", err
}

// lastLine keeps the most specific line of a multi-line validation report.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lines[i]), "-")); l != "" {
			return l
		}
	}
	return s
}
