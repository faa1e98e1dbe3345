package record

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// Value is a stored field value. The set of implementations is closed:
// Null, String, Int, Float, Bool, List, Composite and Reference.
type Value interface {
	isValue()
}

// Null is the GraphQL null.
type Null struct{}

type String string

type Int int64

type Float float64

type Bool bool

// List holds the elements of a list field in order.
type List []Value

// Composite is an object embedded in its parent record instead of being
// normalized into a record of its own.
type Composite map[string]Value

// Reference points to another record by cache key.
type Reference string

func (Null) isValue()      {}
func (String) isValue()    {}
func (Int) isValue()       {}
func (Float) isValue()     {}
func (Bool) isValue()      {}
func (List) isValue()      {}
func (Composite) isValue() {}
func (Reference) isValue() {}

// ConversionError reports a Go value that has no FieldValue representation.
type ConversionError struct {
	Value any
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %T to a cache value", e.Value)
}

// FromGo converts a JSON-like Go value into a Value. Maps become Composite
// values; callers that normalize objects into records handle maps before
// reaching this point.
func FromGo(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(x), nil
	case int8:
		return Int(x), nil
	case int16:
		return Int(x), nil
	case int32:
		return Int(x), nil
	case int64:
		return Int(x), nil
	case uint8:
		return Int(x), nil
	case uint16:
		return Int(x), nil
	case uint32:
		return Int(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return Float(float64(x)), nil
		}
		return Int(x), nil
	case float32:
		return Float(x), nil
	case float64:
		return Float(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, &ConversionError{Value: v}
		}
		return Float(f), nil
	case []any:
		out := make(List, len(x))
		for i, item := range x {
			iv, err := FromGo(item)
			if err != nil {
				return nil, err
			}
			out[i] = iv
		}
		return out, nil
	case map[string]any:
		out := make(Composite, len(x))
		for k, item := range x {
			iv, err := FromGo(item)
			if err != nil {
				return nil, err
			}
			out[k] = iv
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		items := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items[i] = rv.Index(i).Interface()
		}
		return FromGo(items)
	}
	return nil, &ConversionError{Value: v}
}

// ToGo converts a Value back into its JSON-like Go form. References are
// rendered as their key; readers replace them before returning data.
func ToGo(v Value) any {
	switch x := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(x)
	case Int:
		return int64(x)
	case Float:
		return float64(x)
	case Bool:
		return bool(x)
	case List:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = ToGo(item)
		}
		return out
	case Composite:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = ToGo(item)
		}
		return out
	case Reference:
		return string(x)
	default:
		panic(fmt.Sprintf("record: unexpected value %T", v))
	}
}

// Equal reports whether a and b are structurally equal.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		y, ok := b.(String)
		return ok && x == y
	case Int:
		y, ok := b.(Int)
		return ok && x == y
	case Float:
		y, ok := b.(Float)
		return ok && (x == y || (math.IsNaN(float64(x)) && math.IsNaN(float64(y))))
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case Reference:
		y, ok := b.(Reference)
		return ok && x == y
	case List:
		y, ok := b.(List)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Composite:
		y, ok := b.(Composite)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// References appends every Reference found in v, depth first, to dst.
func References(dst []string, v Value) []string {
	switch x := v.(type) {
	case Reference:
		dst = append(dst, string(x))
	case List:
		for _, item := range x {
			dst = References(dst, item)
		}
	case Composite:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			dst = References(dst, x[k])
		}
	}
	return dst
}

// Kind names the variant of v for error messages.
func Kind(v Value) string {
	switch v.(type) {
	case nil, Null:
		return "null"
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "boolean"
	case List:
		return "list"
	case Composite:
		return "object"
	case Reference:
		return "reference"
	default:
		return fmt.Sprintf("%T", v)
	}
}
