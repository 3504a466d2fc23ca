package codec

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	values := []any{
		"a doc",
		json.Number("42"),
		true,
		nil,
		map[string]any{},
		map[string]any{"what": "a doc"},
		map[string]any{
			"colour": "yellow",
			"sizes": map[string]any{
				"small": json.Number("1.5"),
				"large": nil,
				"tags":  map[string]any{"x": false},
			},
		},
	}

	for _, v := range values {
		n, err := Encode(v)
		require.NoError(t, err)
		assert.Equal(t, v, Decode(n))
	}
}

func TestEncode_ArrayBecomesBranch(t *testing.T) {
	n, err := Encode([]any{1.0, 2.0, 3.0, 4.0, 5.0})
	require.NoError(t, err)
	require.Equal(t, KindBranch, n.Kind())

	wire, err := json.Marshal(n)
	require.NoError(t, err)
	assert.JSONEq(t, `{"0":{"_val":1},"1":{"_val":2},"2":{"_val":3},"3":{"_val":4},"4":{"_val":5}}`, string(wire))

	assert.Equal(t, map[string]any{"0": 1.0, "1": 2.0, "2": 3.0, "3": 4.0, "4": 5.0}, Decode(n))
}

func TestEncode_WrappedLeaf(t *testing.T) {
	n, err := Encode(map[string]any{
		"one": map[string]any{"_val": 1.0},
		"two": map[string]any{"_val": 2.0},
	})
	require.NoError(t, err)

	one, ok := n.Child("one")
	require.True(t, ok)
	assert.Equal(t, KindLeaf, one.Kind())
	assert.Equal(t, 1.0, one.Value())
	assert.Equal(t, map[string]any{"one": 1.0, "two": 2.0}, Decode(n))
}

func TestEncode_MalformedLeaf(t *testing.T) {
	cases := map[string]any{
		"extra field":     map[string]any{"_val": 1.0, "other": 2.0},
		"object in _val":  map[string]any{"_val": map[string]any{"a": 1.0}},
		"array in _val":   map[string]any{"_val": []any{1.0}},
		"unsupported go":  struct{}{},
		"nested deep bad": map[string]any{"a": map[string]any{"b": map[string]any{"_val": 1.0, "c": 2.0}}},
	}

	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Encode(v)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidEncoding), "got %v", err)
		})
	}
}

func TestUnmarshal_WireAndPlainForms(t *testing.T) {
	wire, err := Unmarshal([]byte(`{"a":{"_val":"x"},"b":{"c":{"_val":null}}}`))
	require.NoError(t, err)
	plain, err := Unmarshal([]byte(`{"a":"x","b":{"c":null}}`))
	require.NoError(t, err)
	assert.True(t, Equal(wire, plain))

	scalar, err := Unmarshal([]byte(`12.50`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("12.50"), scalar.Value())

	_, err = Unmarshal([]byte(`{"a":`))
	assert.True(t, errors.Is(err, ErrInvalidEncoding))

	_, err = Unmarshal([]byte(`{} {}`))
	assert.True(t, errors.Is(err, ErrInvalidEncoding))
}

func TestMarshalJSON_IsStable(t *testing.T) {
	n, err := Unmarshal([]byte(`{"z":1,"a":{"y":true,"b":"s"}}`))
	require.NoError(t, err)

	first, err := json.Marshal(n)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := json.Marshal(n)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
	assert.Equal(t, `{"a":{"b":{"_val":"s"},"y":{"_val":true}},"z":{"_val":1}}`, string(first))
}

func TestParsePath(t *testing.T) {
	assert.Equal(t, Path{}, ParsePath("/"))
	assert.Equal(t, Path{"extra", "numbers"}, ParsePath("/extra/numbers"))
	assert.Equal(t, Path{"a", "b"}, ParsePath("a//b/"))
	assert.Equal(t, Path{"with space", "x/y"}, ParsePath("/with%20space/x%2Fy"))

	p := ParsePath("/doc/a/b")
	assert.Equal(t, "doc", p.DocID())
	assert.Equal(t, Path{"a", "b"}, p.Rest())
	assert.Equal(t, Path{}, Path{"doc"}.Rest())
	assert.Equal(t, "/doc/a/b", p.String())
}
