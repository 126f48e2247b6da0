package literal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONPreservesOrder(t *testing.T) {
	v, err := ParseJSON(`{"b": 1, "a": [true, null, "xA\n"], "c": {"d": -1.5e2}}`)
	require.NoError(t, err)
	require.Equal(t, Object, v.Kind)

	keys := []string{}
	for _, m := range v.Members {
		keys = append(keys, m.Key)
	}
	assert.Equal(t, []string{"b", "a", "c"}, keys)

	arr := v.Members[1].Value
	require.Equal(t, Array, arr.Kind)
	require.Len(t, arr.Elements, 3)
	assert.True(t, arr.Elements[0].Bool)
	assert.Equal(t, Null, arr.Elements[1].Kind)
	assert.Equal(t, "xA\n", arr.Elements[2].Str)
	assert.Equal(t, -150.0, v.Members[2].Value.Members[0].Value.Number)
}

func TestParseJSONSurrogatePair(t *testing.T) {
	v, err := ParseJSON(`"\ud83d\ude00"`)
	require.NoError(t, err)
	assert.Equal(t, "😀", v.Str)
}

func TestParseJSONRejects(t *testing.T) {
	tests := []string{
		``,
		`{a: 1}`,
		`'single'`,
		`[1, 2,]`,
		`01`,
		`1.`,
		`"tab	inside"`,
		`{"a" 1}`,
		`[1] 2`,
		`undefined`,
	}
	for _, src := range tests {
		_, err := ParseJSON(src)
		assert.Error(t, err, "%q", src)
	}
}

func TestTryJSONPParse(t *testing.T) {
	results, ok := TryJSONPParse(`var data = {"n": 1}; app.cache[2].items = [1]; handler({"ok": true});`)
	require.True(t, ok)
	require.Len(t, results, 3)

	assert.Equal(t, []PathEntry{{Type: PathDeclareVar, Name: "data"}}, results[0].Path)
	assert.Equal(t, Object, results[0].Value.Kind)

	assert.Equal(t, []PathEntry{
		{Type: PathDot, Name: "app"},
		{Type: PathDot, Name: "cache"},
		{Type: PathLookup, Index: 2},
		{Type: PathDot, Name: "items"},
	}, results[1].Path)

	assert.Equal(t, []PathEntry{{Type: PathCall, Name: "handler"}}, results[2].Path)
	assert.True(t, results[2].Value.Members[0].Value.Bool)
}

func TestTryJSONPParseCallOnMember(t *testing.T) {
	results, ok := TryJSONPParse(`ns["cb"]([1, 2])`)
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, []PathEntry{{Type: PathDot, Name: "ns"}, {Type: PathCall, Name: "cb"}}, results[0].Path)
}

func TestTryJSONPParseRejectsPrograms(t *testing.T) {
	tests := []string{
		`{"a": 1}`,
		`var x = y;`,
		`a = 1; b`,
		`true = 1`,
		`f(1)(2)`,
		`a[0](1)`,
		`a[-1] = 1`,
		`var a.b = 1`,
		`a = function() {}`,
		`x = 1 + 2`,
	}
	for _, src := range tests {
		_, ok := TryJSONPParse(src)
		assert.False(t, ok, "%q", src)
	}
}
