package tool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ryotayamanaka/mcp-city/pkg/errmodel"
)

// DuplicateToolError is returned by Register when the name is already taken.
type DuplicateToolError struct{ Name string }

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q already registered", e.Name)
}

// UnknownToolError is returned by Lookup for names that were never registered.
type UnknownToolError struct{ Name string }

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("tool %q not registered", e.Name)
}

// ErrSealed is returned by Register after Seal.
var ErrSealed = errors.New("tool registry is sealed")

// Entry is a registered tool: its definition, handler and optional formatter.
type Entry struct {
	Definition Definition
	Handler    Handler
	Format     Formatter

	schema *compiledSchema
}

// Option configures an Entry at registration time.
type Option func(*Entry)

// WithFormatter attaches a natural-language formatter to the tool.
func WithFormatter(f Formatter) Option { return func(e *Entry) { e.Format = f } }

// Registry keeps tools by name. Build it once at startup, Seal it, then share it.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
	sealed  bool
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register adds a tool. The definition is validated and its schema compiled here
// so invocations never pay for it.
func (r *Registry) Register(def Definition, h Handler, opts ...Option) error {
	if h == nil {
		return fmt.Errorf("tool %q: handler is nil", def.Name)
	}
	if err := def.Validate(); err != nil {
		return err
	}
	sch, err := compileSchema(def)
	if err != nil {
		return err
	}
	e := &Entry{Definition: def, Handler: h, schema: sch}
	for _, o := range opts {
		o(e)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrSealed
	}
	if _, exists := r.entries[def.Name]; exists {
		return &DuplicateToolError{Name: def.Name}
	}
	r.entries[def.Name] = e
	r.order = append(r.order, def.Name)
	return nil
}

// MustRegister is Register that panics; meant for static tool tables.
func (r *Registry) MustRegister(def Definition, h Handler, opts ...Option) {
	if err := r.Register(def, h, opts...); err != nil {
		panic(err)
	}
}

// Seal forbids further registration.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, error) {
	e, err := r.Entry(name)
	if err != nil {
		return Definition{}, err
	}
	return e.Definition, nil
}

// Entry returns the full registered entry for name.
func (r *Registry) Entry(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	return e, nil
}

// Definitions lists definitions in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.entries[n].Definition)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Check validates args against the entry's schema and returns them with
// defaults applied. The returned error is always an *errmodel.Error.
func (e *Entry) Check(args Args) (Args, error) {
	d := e.Definition
	for name := range args {
		if _, ok := d.Params[name]; !ok {
			return nil, errmodel.InvalidArgument(d.Name, name, "unexpected argument")
		}
	}
	out := make(Args, len(d.Params))
	for _, name := range d.ParamNames() {
		p := d.Params[name]
		v, present := args[name]
		if !present || v.IsNull() {
			if p.Required {
				return nil, errmodel.MissingArgument(d.Name, name)
			}
			if p.Default != nil {
				dv, err := FromAny(p.Default)
				if err != nil {
					return nil, errmodel.System(errmodel.CodeInternal, "bad default for "+name, nil, err)
				}
				out[name] = dv
			}
			continue
		}
		if !p.Type.Accepts(v) {
			return nil, errmodel.InvalidArgument(d.Name, name, fmt.Sprintf("expected %s, got %s", p.Type, describeKind(v)))
		}
		out[name] = v
	}
	if param, err := e.schema.validate(out); err != nil {
		return nil, errmodel.InvalidArgument(d.Name, param, err.Error())
	}
	return out, nil
}

func describeKind(v Value) string {
	if v.Kind() == KindNumber && !v.IsInteger() {
		return "non-integer number"
	}
	return v.Kind().String()
}
