package exceptions

import (
	"fmt"
	"sort"
	"strings"
)

// Kind tags the dynamic type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

// Value is a decoded JSON node.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
	List []Value
	Map  map[string]Value
}

// FromAny converts the output of encoding/json into a Value tree.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Value{Kind: KindNull}, nil
	case string:
		return Value{Kind: KindString, Str: val}, nil
	case float64:
		return Value{Kind: KindNumber, Num: val}, nil
	case int:
		return Value{Kind: KindNumber, Num: float64(val)}, nil
	case int64:
		return Value{Kind: KindNumber, Num: float64(val)}, nil
	case bool:
		return Value{Kind: KindBool, Bool: val}, nil
	case []any:
		list := make([]Value, 0, len(val))
		for i, item := range val {
			child, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			list = append(list, child)
		}
		return Value{Kind: KindList, List: list}, nil
	case []string:
		list := make([]Value, 0, len(val))
		for _, item := range val {
			list = append(list, Value{Kind: KindString, Str: item})
		}
		return Value{Kind: KindList, List: list}, nil
	case map[string]any:
		m := make(map[string]Value, len(val))
		for k, item := range val {
			child, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			m[k] = child
		}
		return Value{Kind: KindMap, Map: m}, nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", v)
	}
}

// Contains reports whether needle is a substring of a string, an element of a
// list of strings or a key of a map.
func (v Value) Contains(needle string) bool {
	switch v.Kind {
	case KindString:
		return strings.Contains(v.Str, needle)
	case KindList:
		for _, item := range v.List {
			if item.Kind == KindString && item.Str == needle {
				return true
			}
		}
	case KindMap:
		_, ok := v.Map[needle]
		return ok
	}
	return false
}

// keys returns map keys in a stable order so traversal is deterministic.
func (v Value) keys() []string {
	out := make([]string, 0, len(v.Map))
	for k := range v.Map {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
