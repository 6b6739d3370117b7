// Package value defines Mycelia's representation of a call's literal
// payloads: the typed, content-hashable "Value" half of the
// Deferred<T> = Call(id) | Value(T) sum type. It uses
// github.com/zclconf/go-cty as a universal, dynamically-typed container and
// adds the canonical binary encoding content hashing and the Storage
// Adapter's result blobs require.
package value

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zclconf/go-cty/cty"
)

// NonSerializableError is returned when a Go value has no representation as
// a cty.Value, or a cty.Value has no representation as canonical bytes.
type NonSerializableError struct {
	Value any
	Cause error
}

func (e *NonSerializableError) Error() string {
	return fmt.Sprintf("value %v (%T) is not serializable: %v", e.Value, e.Value, e.Cause)
}

func (e *NonSerializableError) Unwrap() error { return e.Cause }

// FromGo converts a plain Go value into its cty.Value representation. It
// accepts nil, bool, string, int, int32, int64, float32, float64, []any,
// and map[string]any, recursing into elements; any other type (other
// integer widths, unsigned integers, typed slices) is rejected with a
// NonSerializableError. A cty.Value passed in is
// returned unchanged, so callers that already hold typed values (e.g. a
// result decoded back out of Storage) don't pay a double conversion.
func FromGo(v any) (cty.Value, error) {
	switch t := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case cty.Value:
		return t, nil
	case bool:
		return cty.BoolVal(t), nil
	case string:
		return cty.StringVal(t), nil
	case int:
		return cty.NumberIntVal(int64(t)), nil
	case int32:
		return cty.NumberIntVal(int64(t)), nil
	case int64:
		return cty.NumberIntVal(t), nil
	case float32:
		return cty.NumberFloatVal(float64(t)), nil
	case float64:
		return cty.NumberFloatVal(t), nil
	case []any:
		if len(t) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(t))
		for i, e := range t {
			cv, err := FromGo(e)
			if err != nil {
				return cty.NilVal, err
			}
			elems[i] = cv
		}
		return cty.TupleVal(elems), nil
	case map[string]any:
		if len(t) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(t))
		for k, e := range t {
			cv, err := FromGo(e)
			if err != nil {
				return cty.NilVal, err
			}
			attrs[k] = cv
		}
		return cty.ObjectVal(attrs), nil
	default:
		return cty.NilVal, &NonSerializableError{Value: v, Cause: fmt.Errorf("unsupported Go type %T", v)}
	}
}

// ToGo converts a cty.Value back into plain Go data (nil, bool, string,
// float64, []any, map[string]any). It is the inverse of FromGo for the
// subset of types FromGo produces, and is also used to decode values that
// entered the system already as cty.Value (e.g. node return values).
func ToGo(val cty.Value) (any, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	if val.Type().IsPrimitiveType() {
		switch val.Type() {
		case cty.String:
			return val.AsString(), nil
		case cty.Number:
			f, _ := val.AsBigFloat().Float64()
			return f, nil
		case cty.Bool:
			return val.True(), nil
		default:
			return nil, fmt.Errorf("unsupported primitive type: %s", val.Type().FriendlyName())
		}
	}
	if val.Type().IsObjectType() || val.Type().IsMapType() {
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			converted, err := ToGo(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = converted
		}
		return out, nil
	}
	if val.Type().IsTupleType() || val.Type().IsListType() {
		out := make([]any, 0)
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			converted, err := ToGo(v)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported cty.Type for conversion: %s", val.Type().FriendlyName())
}

// CanonicalEncode produces the "stable binary serialization" 
// requires for a Literal slot: the value is flattened to plain Go data and
// then msgpack-encoded with sorted map keys, so two structurally equal
// values always produce byte-identical output regardless of the order their
// fields were constructed in.
func CanonicalEncode(val cty.Value) ([]byte, error) {
	goVal, err := ToGo(val)
	if err != nil {
		return nil, &NonSerializableError{Value: val, Cause: err}
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(goVal); err != nil {
		return nil, &NonSerializableError{Value: val, Cause: err}
	}
	return buf.Bytes(), nil
}

// IsDeterministic re-encodes val and compares against a previously computed
// encoding, implementing the NonDeterministicArgument check 
// calls for ("literal objects that do not round-trip deterministically must
// be flagged").
func IsDeterministic(val cty.Value, firstEncode []byte) (bool, error) {
	second, err := CanonicalEncode(val)
	if err != nil {
		return false, err
	}
	return bytes.Equal(firstEncode, second), nil
}

// SortedKeys returns m's keys in lexicographic order, used wherever a
// kwargs map needs a stable iteration order before hashing: canonical
// encoding fixes key order in kwargs lexicographically.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
