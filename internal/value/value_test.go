package value_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/smthngslv/mycelia/internal/value"
)

func TestFromGo_ToGo_RoundTrip(t *testing.T) {
	cases := []any{
		nil,
		true,
		"hello",
		3.5,
		[]any{1, "two", false},
		map[string]any{"a": 1, "b": []any{2, 3}},
	}

	for _, in := range cases {
		cv, err := value.FromGo(in)
		require.NoError(t, err)

		out, err := value.ToGo(cv)
		require.NoError(t, err)

		assert.Equal(t, normalize(in), out)
	}
}

// normalize mirrors the widening ToGo performs (ints become float64) so
// the round-trip comparison is apples to apples.
func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	default:
		return v
	}
}

func TestCanonicalEncode_IsDeterministic(t *testing.T) {
	cv, err := value.FromGo(map[string]any{"b": 1, "a": 2, "c": []any{1, 2, 3}})
	require.NoError(t, err)

	first, err := value.CanonicalEncode(cv)
	require.NoError(t, err)

	ok, err := value.IsDeterministic(cv, first)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanonicalEncode_KeyOrderDoesNotAffectBytes(t *testing.T) {
	a, err := value.FromGo(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	b, err := value.FromGo(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)

	encA, err := value.CanonicalEncode(a)
	require.NoError(t, err)
	encB, err := value.CanonicalEncode(b)
	require.NoError(t, err)

	assert.Equal(t, encA, encB)
}

func TestFromGo_UnsupportedType(t *testing.T) {
	type custom struct{ X int }
	_, err := value.FromGo(custom{X: 1})
	require.Error(t, err)

	var target *value.NonSerializableError
	require.ErrorAs(t, err, &target)
}

func TestFromGo_PassthroughCtyValue(t *testing.T) {
	in := cty.StringVal("already-typed")
	out, err := value.FromGo(in)
	require.NoError(t, err)
	assert.True(t, out.RawEquals(in))
}
