package jsonpath

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternalApril/moonstone/internal/dberr"
)

const sample = `{"store":{"book":[{"title":"A","price":8},{"title":"B","price":12}],"bike":{"price":20}},"name":"x"}`

func mustDecode(t *testing.T, s string) any {
	t.Helper()
	v, err := Decode([]byte(s))
	require.NoError(t, err)
	return v
}

func mustEncode(t *testing.T, v any) string {
	t.Helper()
	b, err := Encode(v)
	require.NoError(t, err)
	return string(b)
}

func TestParse(t *testing.T) {
	tests := []struct {
		expr     string
		legacy   bool
		root     bool
		definite bool
		wantErr  bool
	}{
		{expr: "$", root: true, definite: true},
		{expr: ".", legacy: true, root: true, definite: true},
		{expr: "$.a.b[0]", definite: true},
		{expr: "a.b[0]", legacy: true, definite: true},
		{expr: ".a", legacy: true, definite: true},
		{expr: "$['a b'][-1]", definite: true},
		{expr: `$["q\"x"]`, definite: true},
		{expr: "$.*"},
		{expr: "$.a[*]"},
		{expr: "$..price"},
		{expr: "$..[0]"},
		{expr: "", wantErr: true},
		{expr: "$.", wantErr: true},
		{expr: "$..", wantErr: true},
		{expr: "$.a[", wantErr: true},
		{expr: "$.a[x]", wantErr: true},
		{expr: "$['a'", wantErr: true},
		{expr: "$a", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			p, err := Parse(tt.expr)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, dberr.ErrInvalidPath))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.legacy, p.Legacy())
			assert.Equal(t, tt.root, p.IsRoot())
			assert.Equal(t, tt.definite, p.Definite())
		})
	}
}

func TestGet(t *testing.T) {
	doc := mustDecode(t, sample)

	tests := []struct {
		path string
		want string
	}{
		{"$.name", `["x"]`},
		{"name", `["x"]`},
		{"$.store.book[0].title", `["A"]`},
		{"$.store.book[-1].title", `["B"]`},
		{"$.store.book[*].price", `[8,12]`},
		{"$..price", `[20,8,12]`},
		{"$.store.*.price", `[20]`},
		{"$.missing", `[]`},
		{"$.store.book[5]", `[]`},
		{"$.name.deeper", `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := Get(doc, MustParse(tt.path))
			assert.JSONEq(t, tt.want, mustEncode(t, got))
		})
	}
}

func TestSetCreatesOnDefinitePaths(t *testing.T) {
	doc := mustDecode(t, `{"a":1}`)

	tests := []struct {
		path  string
		value string
		want  string
	}{
		{"$.a", `2`, `{"a":2}`},
		{"$.b.c", `true`, `{"a":1,"b":{"c":true}}`},
		{"$.list[0]", `"x"`, `{"a":1,"list":["x"]}`},
		{"$.list[0].k", `null`, `{"a":1,"list":[{"k":null}]}`},
		{"$", `[1,2]`, `[1,2]`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, n, err := Set(doc, MustParse(tt.path), mustDecode(t, tt.value))
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			assert.JSONEq(t, tt.want, mustEncode(t, got))
		})
	}

	assert.JSONEq(t, `{"a":1}`, mustEncode(t, doc))
}

func TestSetAppendsOnePastEnd(t *testing.T) {
	doc := mustDecode(t, `{"a":[1,2]}`)

	got, _, err := Set(doc, MustParse("$.a[2]"), json.Number("3"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":[1,2,3]}`, mustEncode(t, got))

	got, _, err = Set(doc, MustParse("$.a[-1]"), json.Number("9"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":[1,9]}`, mustEncode(t, got))
}

func TestSetRejectsAmbiguousCreation(t *testing.T) {
	doc := mustDecode(t, `{"a":"str","arr":[]}`)

	for _, path := range []string{"$.a.b", "$.x[3].y", "$.arr[4]", "$.a[0]"} {
		t.Run(path, func(t *testing.T) {
			_, _, err := Set(doc, MustParse(path), json.Number("1"))
			require.Error(t, err)
			assert.Equal(t, dberr.InvalidPath, dberr.KindOf(err))
		})
	}
	assert.JSONEq(t, `{"a":"str","arr":[]}`, mustEncode(t, doc))
}

func TestSetWildcardOnlyUpdates(t *testing.T) {
	doc := mustDecode(t, sample)

	got, n, err := Set(doc, MustParse("$..price"), json.Number("0"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.JSONEq(t, `[0,0,0]`, mustEncode(t, Get(got, MustParse("$..price"))))

	_, n, err = Set(doc, MustParse("$.*.nothing"), json.Number("0"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSetThenGetRoundTrip(t *testing.T) {
	doc := mustDecode(t, sample)
	paths := []string{"$.name", "$.store.bike", "$.store.book[1].title", "$.new.field"}

	for _, path := range paths {
		p := MustParse(path)
		x := mustDecode(t, `{"k":[1,"two",null]}`)

		updated, _, err := Set(doc, p, x)
		require.NoError(t, err)
		got := Get(updated, p)
		require.Len(t, got, 1)
		assert.Equal(t, x, got[0])

		removed, n, err := Delete(updated, p)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Empty(t, Get(removed, p))
	}
}

func TestDelete(t *testing.T) {
	doc := mustDecode(t, sample)

	got, n, err := Delete(doc, MustParse("$.store.book[*]"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.JSONEq(t, `{"store":{"book":[],"bike":{"price":20}},"name":"x"}`, mustEncode(t, got))

	got, n, err = Delete(doc, MustParse("$..price"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, Get(got, MustParse("$..price")))

	got, n, err = Delete(doc, MustParse("$.nope"))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, doc, got)

	got, n, err = Delete(doc, MustParse("$"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Nil(t, got)

	assert.JSONEq(t, sample, mustEncode(t, doc))
}

func TestApply(t *testing.T) {
	doc := mustDecode(t, `{"a":1,"b":"s","c":{"a":2.5}}`)

	incr := func(v any) (any, bool, error) {
		n, ok := v.(json.Number)
		if !ok {
			return nil, false, nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil, false, err
		}
		return json.Number(formatFloat(f + 1)), true, nil
	}

	got, res, err := Apply(doc, MustParse("$..a"), incr)
	require.NoError(t, err)
	assert.Equal(t, []any{json.Number("2"), json.Number("3.5")}, res)
	assert.JSONEq(t, `{"a":2,"b":"s","c":{"a":3.5}}`, mustEncode(t, got))

	_, res, err = Apply(doc, MustParse("$.b"), incr)
	require.NoError(t, err)
	assert.Equal(t, []any{nil}, res)

	_, _, err = Apply(doc, MustParse("$.a"), func(any) (any, bool, error) {
		return nil, false, dberr.ErrNotFloat
	})
	assert.ErrorIs(t, err, dberr.ErrNotFloat)
	assert.JSONEq(t, `{"a":1,"b":"s","c":{"a":2.5}}`, mustEncode(t, doc))
}

func formatFloat(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

func TestDecode(t *testing.T) {
	_, err := Decode([]byte(`{"a":1} x`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"a":`))
	assert.Error(t, err)

	v, err := Decode([]byte(" 12345678901234567890 "))
	require.NoError(t, err)
	assert.Equal(t, json.Number("12345678901234567890"), v)
}

func TestTypeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{}`, "object"},
		{`[]`, "array"},
		{`"s"`, "string"},
		{`1`, "integer"},
		{`1.5`, "number"},
		{`true`, "boolean"},
		{`null`, "null"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TypeName(mustDecode(t, tt.in)), tt.in)
	}
}

func FuzzParse(f *testing.F) {
	for _, s := range []string{"$", ".", "$.a[0]", "$..b", "a.b", "$['x']", "$[*]"} {
		f.Add(s)
	}
	doc := map[string]any{"a": []any{json.Number("1"), map[string]any{"b": "c"}}}

	f.Fuzz(func(t *testing.T, expr string) {
		p, err := Parse(expr)
		if err != nil {
			return
		}
		Get(doc, p)
		_, _, _ = Set(doc, p, "v")
		_, _, _ = Delete(doc, p)
	})
}
