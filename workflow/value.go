package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind identifies the concrete shape held by a Value.
type Kind int

// The closed set of shapes a Value can hold, per the data model's
// untyped params/output value tree.
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindSeq
	KindMap
)

// Value is a tagged union over the dynamic value tree used for step params
// and outputs: null, bool, int64, float64, string, an ordered sequence of
// Values, or an ordered string-keyed map of Values.
//
// Map is kept ordered (field Keys alongside field Fields) so canonicalization
// and reference resolution never depend on Go's randomized map iteration.
type Value struct {
	Kind   Kind
	Bool   bool
	Int    int64
	Float  float64
	Str    string
	Seq    []Value
	Keys   []string
	Fields map[string]Value
}

// Null returns the null Value.
func Null() Value { return Value{Kind: KindNull} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Int returns an integer Value.
func Int(i int64) Value { return Value{Kind: KindInt, Int: i} }

// Float returns a floating-point Value.
func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// String returns a string Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// NewSeq returns a sequence Value.
func NewSeq(items ...Value) Value { return Value{Kind: KindSeq, Seq: items} }

// NewMap returns an empty ordered map Value.
func NewMap() Value { return Value{Kind: KindMap, Fields: map[string]Value{}} }

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Set inserts or replaces key in a map Value, preserving first-insertion
// order for existing keys and appending new keys in call order.
func (v *Value) Set(key string, val Value) {
	if v.Kind != KindMap {
		*v = Value{Kind: KindMap, Fields: map[string]Value{}}
	}
	if v.Fields == nil {
		v.Fields = map[string]Value{}
	}
	if _, exists := v.Fields[key]; !exists {
		v.Keys = append(v.Keys, key)
	}
	v.Fields[key] = val
}

// Get looks up key in a map Value. ok is false if v is not a map or the
// key is absent.
func (v Value) Get(key string) (Value, bool) {
	if v.Kind != KindMap {
		return Value{}, false
	}
	val, ok := v.Fields[key]
	return val, ok
}

// Clone returns a deep copy of v that shares no nested map or slice with
// it. canonicalLeafBytes works on a clone, so eliding merkle_proof never
// touches the caller's value.
func (v Value) Clone() Value {
	switch v.Kind {
	case KindSeq:
		out := make([]Value, len(v.Seq))
		for i, item := range v.Seq {
			out[i] = item.Clone()
		}
		return Value{Kind: KindSeq, Seq: out}
	case KindMap:
		keys := make([]string, len(v.Keys))
		copy(keys, v.Keys)
		fields := make(map[string]Value, len(v.Fields))
		for k, val := range v.Fields {
			fields[k] = val.Clone()
		}
		return Value{Kind: KindMap, Keys: keys, Fields: fields}
	default:
		return v
	}
}

// FromAny converts a decoded encoding/json value (as produced by
// json.Unmarshal into interface{}, or json.Number when UseNumber is set)
// into a Value. Maps decoded by encoding/json carry no deterministic key
// order, so FromAny sorts keys lexicographically — this only affects the
// order Keys reports, never the canonical bytes, which always sort keys
// again at hashing time.
func FromAny(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i)
		}
		f, _ := t.Float64()
		return Float(f)
	case float64:
		return Float(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case []interface{}:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromAny(item)
		}
		return Value{Kind: KindSeq, Seq: items}
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make(map[string]Value, len(t))
		for _, k := range keys {
			fields[k] = FromAny(t[k])
		}
		return Value{Kind: KindMap, Keys: keys, Fields: fields}
	case Value:
		return t
	default:
		panic(fmt.Sprintf("workflow: unsupported value type %T", v))
	}
}

// ToAny converts a Value back into plain Go types suitable for
// encoding/json or for handing to an Adapter.
func (v Value) ToAny() interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindString:
		return v.Str
	case KindSeq:
		out := make([]interface{}, len(v.Seq))
		for i, item := range v.Seq {
			out[i] = item.ToAny()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.Fields))
		for _, k := range v.Keys {
			out[k] = v.Fields[k].ToAny()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}
