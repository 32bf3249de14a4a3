package tool

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
)

// Kind is the JSON type of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a tagged JSON value. Numbers keep their literal text so integers
// survive a round trip without float rounding.
type Value struct {
	kind Kind
	b    bool
	num  json.Number
	str  string
	arr  []Value
	obj  map[string]Value
}

// Null returns the JSON null value.
func Null() Value { return Value{} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Number(n json.Number) Value { return Value{kind: KindNumber, num: n} }
func Int(i int64) Value { return Value{kind: KindNumber, num: json.Number(fmt.Sprint(i))} }
func Float(f float64) Value { return Value{kind: KindNumber, num: json.Number(fmt.Sprint(f))} }
func Array(vs ...Value) Value { return Value{kind: KindArray, arr: vs} }

// Object builds an object value. The map is used as-is.
func Object(m map[string]Value) Value { return Value{kind: KindObject, obj: m} }

// FromAny converts a decoded Go value (as produced by encoding/json) into a Value.
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return Number(t), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return Value{}, fmt.Errorf("non-finite number %v", t)
		}
		return Float(t), nil
	case float32:
		return FromAny(float64(t))
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			out[i] = ev
		}
		return Array(out...), nil
	case []string:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = String(e)
		}
		return Array(out...), nil
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			out[k] = ev
		}
		return Object(out), nil
	default:
		// Fall back to a JSON round trip for structs and typed maps.
		b, err := json.Marshal(t)
		if err != nil {
			return Value{}, fmt.Errorf("unsupported value %T: %w", v, err)
		}
		var out Value
		if err := json.Unmarshal(b, &out); err != nil {
			return Value{}, err
		}
		return out, nil
	}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean and whether v is a boolean.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsString returns the string and whether v is a string.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsFloat returns the number as float64 and whether v is a number.
func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := v.num.Float64()
	return f, err == nil
}

// AsInt returns the number as int64 if it is integral.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	if i, err := v.num.Int64(); err == nil {
		return i, true
	}
	f, err := v.num.Float64()
	if err != nil || f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// IsInteger reports whether v is a number without a fractional part.
func (v Value) IsInteger() bool {
	_, ok := v.AsInt()
	return ok
}

func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == KindArray }
func (v Value) AsObject() (map[string]Value, bool) { return v.obj, v.kind == KindObject }

// Any converts v back into plain Go values; numbers become json.Number.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Any()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = e.Any()
		}
		return out
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindNumber:
		return []byte(v.num.String()), nil
	default:
		return json.Marshal(v.Any())
	}
}

func (v *Value) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// Args holds the arguments of one invocation keyed by parameter name.
type Args map[string]Value

// ErrArgsNotObject is returned when an argument payload is not a JSON object.
var ErrArgsNotObject = errors.New("arguments must be a JSON object")

// ParseArgs decodes a JSON argument payload. An empty payload or null yields empty Args.
func ParseArgs(raw json.RawMessage) (Args, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Args{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("decode arguments: trailing data after JSON object")
	}
	if doc == nil {
		return Args{}, nil
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, ErrArgsNotObject
	}
	return ArgsFromMap(m)
}

// ArgsFromMap converts plain Go arguments into Args.
func ArgsFromMap(m map[string]any) (Args, error) {
	out := make(Args, len(m))
	for k, e := range m {
		v, err := FromAny(e)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// Plain converts a into plain Go values suitable for JSON encoding.
func (a Args) Plain() map[string]any {
	out := make(map[string]any, len(a))
	for k, v := range a {
		out[k] = v.Any()
	}
	return out
}

// Names returns the argument names in sorted order.
func (a Args) Names() []string {
	out := make([]string, 0, len(a))
	for k := range a {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (a Args) Has(name string) bool {
	v, ok := a[name]
	return ok && !v.IsNull()
}

// String returns the named string argument or "".
func (a Args) String(name string) string {
	s, _ := a[name].AsString()
	return s
}

// Int returns the named integer argument or 0.
func (a Args) Int(name string) int64 {
	i, _ := a[name].AsInt()
	return i
}

// Float returns the named numeric argument or 0.
func (a Args) Float(name string) float64 {
	f, _ := a[name].AsFloat()
	return f
}

// Bool returns the named boolean argument or false.
func (a Args) Bool(name string) bool {
	b, _ := a[name].AsBool()
	return b
}
