package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// ValueKind identifies the concrete kind held by a Value.
type ValueKind int

const (
	// KindNull is the zero Value; it represents an absent or null attribute.
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

// Value is a tagged variant for attribute values. Entities and relationships
// carry an open attribute schema, so a value can be a scalar, a list, or a
// nested map. Using a tagged variant instead of interface{} keeps the
// attribute payload type-safe while preserving the schema-less contract.
type Value struct {
	Kind ValueKind

	Str  string
	Num  float64
	Bool bool
	List []Value
	Map  map[string]Value
}

// String constructs a string Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number constructs a numeric Value.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// Boolean constructs a bool Value.
func Boolean(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// List constructs a list Value.
func List(items ...Value) Value { return Value{Kind: KindList, List: items} }

// Map constructs a nested map Value.
func Map(m map[string]Value) Value { return Value{Kind: KindMap, Map: m} }

// IsNull reports whether the value is absent/null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// AsString renders the value as a display string. Numbers use the shortest
// round-trippable representation; lists and maps render as JSON.
func (v Value) AsString() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindList, KindMap:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return ""
	}
}

// Equal reports deep equality between two values.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindString:
		return v.Str == other.Str
	case KindNumber:
		return v.Num == other.Num
	case KindBool:
		return v.Bool == other.Bool
	case KindList:
		if len(v.List) != len(other.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(other.List[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.Map) != len(other.Map) {
			return false
		}
		for k, val := range v.Map {
			ov, ok := other.Map[k]
			if !ok || !val.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy of the value.
func (v Value) Clone() Value {
	switch v.Kind {
	case KindList:
		items := make([]Value, len(v.List))
		for i, item := range v.List {
			items[i] = item.Clone()
		}
		return Value{Kind: KindList, List: items}
	case KindMap:
		m := make(map[string]Value, len(v.Map))
		for k, item := range v.Map {
			m[k] = item.Clone()
		}
		return Value{Kind: KindMap, Map: m}
	default:
		return v
	}
}

// MarshalJSON encodes the value as its natural JSON shape (string, number,
// bool, array, object, or null) so snapshots and wire payloads stay plain.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	case KindMap:
		if v.Map == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.Map)
	}
	return nil, fmt.Errorf("types: unknown value kind %d", v.Kind)
}

// UnmarshalJSON decodes a natural JSON value into the tagged variant.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromInterface(raw)
	return nil
}

// FromInterface converts a decoded JSON value (or YAML-style scalar) into a
// tagged Value. Unknown types fall back to their string rendering.
func FromInterface(raw interface{}) Value {
	switch val := raw.(type) {
	case nil:
		return Value{}
	case string:
		return String(val)
	case bool:
		return Boolean(val)
	case float64:
		return Number(val)
	case int:
		return Number(float64(val))
	case int64:
		return Number(float64(val))
	case []interface{}:
		items := make([]Value, len(val))
		for i, item := range val {
			items[i] = FromInterface(item)
		}
		return Value{Kind: KindList, List: items}
	case map[string]interface{}:
		m := make(map[string]Value, len(val))
		for k, item := range val {
			m[k] = FromInterface(item)
		}
		return Value{Kind: KindMap, Map: m}
	default:
		return String(fmt.Sprintf("%v", val))
	}
}

// CloneAttributes deep-copies an attribute map. A nil map clones to nil.
func CloneAttributes(attrs map[string]Value) map[string]Value {
	if attrs == nil {
		return nil
	}
	out := make(map[string]Value, len(attrs))
	for k, v := range attrs {
		out[k] = v.Clone()
	}
	return out
}

// AttributesEqual reports whether two attribute maps hold the same keys and
// deeply equal values. Used for relationship deduplication after merges.
func AttributesEqual(a, b map[string]Value) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !av.Equal(bv) {
			return false
		}
	}
	return true
}

// SortedKeys returns the attribute keys in lexical order for deterministic
// iteration.
func SortedKeys(attrs map[string]Value) []string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
