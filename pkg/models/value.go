package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// ValueKind identifies which variant a Value holds.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	}
	return "unknown"
}

// Value is an attribute value: null, a scalar, or an ordered list of scalars.
// Lists never nest and never contain nulls.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
}

func Null() Value               { return Value{kind: KindNull} }
func Bool(b bool) Value         { return Value{kind: KindBool, b: b} }
func Int(i int64) Value         { return Value{kind: KindInt, i: i} }
func Float(f float64) Value     { return Value{kind: KindFloat, f: f} }
func String(s string) Value     { return Value{kind: KindString, s: s} }
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

// StringList builds a list value from plain strings. It exists because most
// annotation attributes (nicknames, definitions, snippets) are string lists.
func StringList(items ...string) Value {
	values := make([]Value, len(items))
	for i, item := range items {
		values[i] = String(item)
	}
	return Value{kind: KindList, list: values}
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }

func (v Value) BoolValue() bool     { return v.b }
func (v Value) IntValue() int64     { return v.i }
func (v Value) FloatValue() float64 { return v.f }
func (v Value) StringValue() string { return v.s }

// Items returns the list elements. Only meaningful when Kind is KindList.
func (v Value) Items() []Value { return v.list }

// Equal reports deep equality between two values.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindString:
		return v.s == other.s
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// MarshalJSON renders the value as its plain JSON equivalent.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindList:
		items := v.list
		if items == nil {
			items = []Value{}
		}
		return json.Marshal(items)
	}
	return nil, fmt.Errorf("cannot marshal value of kind %d", v.kind)
}

// UnmarshalJSON classifies plain JSON into the value model. JSON numbers
// with no fractional part become ints, everything else a float. Anything
// outside the model (objects, nested arrays) is rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	decoder := newNumberDecoder(data)
	if err := decoder.Decode(&raw); err != nil {
		return err
	}
	value, err := fromJSONValue(raw, true)
	if err != nil {
		return err
	}
	*v = value
	return nil
}

func fromJSONValue(raw any, allowList bool) (Value, error) {
	switch typed := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(typed), nil
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := typed.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("unrepresentable number %q", typed.String())
		}
		return Float(f), nil
	case string:
		return String(typed), nil
	case []any:
		if !allowList {
			return Value{}, fmt.Errorf("nested lists are not supported")
		}
		items := make([]Value, 0, len(typed))
		for _, item := range typed {
			value, err := fromJSONValue(item, false)
			if err != nil {
				return Value{}, err
			}
			if value.IsNull() {
				return Value{}, fmt.Errorf("null is not a valid list element")
			}
			items = append(items, value)
		}
		return Value{kind: KindList, list: items}, nil
	}
	return Value{}, fmt.Errorf("unsupported attribute value of type %T", raw)
}

// fromAny classifies an arbitrary runtime value into the value model.
// Returns false when the value cannot be represented. Integral floats are
// kept as ints so round-tripped JSON numbers stay stable.
func fromAny(raw any) (Value, bool) {
	switch typed := raw.(type) {
	case nil:
		return Null(), true
	case bool:
		return Bool(typed), true
	case int:
		return Int(int64(typed)), true
	case int32:
		return Int(int64(typed)), true
	case int64:
		return Int(typed), true
	case float32:
		return floatValue(float64(typed))
	case float64:
		return floatValue(typed)
	case string:
		return String(typed), true
	case []any:
		items := make([]Value, 0, len(typed))
		for _, item := range typed {
			value, ok := fromAny(item)
			if !ok || value.IsNull() || value.Kind() == KindList {
				return Value{}, false
			}
			items = append(items, value)
		}
		return Value{kind: KindList, list: items}, true
	}
	return Value{}, false
}

func newNumberDecoder(data []byte) *json.Decoder {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	return decoder
}

func floatValue(f float64) (Value, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, false
	}
	if f == math.Trunc(f) && math.Abs(f) < float64(math.MaxInt64) {
		return Int(int64(f)), true
	}
	return Float(f), true
}
