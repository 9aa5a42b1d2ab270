package scripting

import (
	"testing"

	"github.com/leapstack-labs/querypad/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestGoToStarlark(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    string
		wantErr bool
	}{
		{"nil", nil, "None", false},
		{"string", "hi", `"hi"`, false},
		{"int", 3, "3", false},
		{"int64", int64(-4), "-4", false},
		{"float", 1.5, "1.5", false},
		{"bool", true, "True", false},
		{"strings", []string{"a"}, `["a"]`, false},
		{"nested", []any{map[string]any{"k": nil}}, `[{"k": None}]`, false},
		{"unsupported", struct{}{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GoToStarlark(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestToGo(t *testing.T) {
	big := starlark.MakeInt(1).Lsh(80)

	tests := []struct {
		name  string
		input starlark.Value
		want  any
	}{
		{"none", starlark.None, nil},
		{"string", starlark.String("s"), "s"},
		{"bytes", starlark.Bytes("b"), "b"},
		{"int", starlark.MakeInt(7), int64(7)},
		{"big int", big, big.String()},
		{"float", starlark.Float(0.5), 0.5},
		{"bool", starlark.False, false},
		{"tuple", starlark.Tuple{starlark.MakeInt(1)}, []any{int64(1)}},
		{"list", starlark.NewList([]starlark.Value{starlark.String("x")}), []any{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToGo(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ToGo(starlark.NewBuiltin("f", nil))
	assert.Error(t, err)
}

func TestToGo_Cycles(t *testing.T) {
	t.Run("list holding itself", func(t *testing.T) {
		l := starlark.NewList(nil)
		require.NoError(t, l.Append(l))

		_, err := ToGo(l)
		assert.ErrorIs(t, err, ErrCyclic)
	})

	t.Run("dict holding itself through a list", func(t *testing.T) {
		d := starlark.NewDict(1)
		require.NoError(t, d.SetKey(starlark.String("self"), starlark.NewList([]starlark.Value{d})))

		_, err := ToGo(d)
		assert.ErrorIs(t, err, ErrCyclic)
	})

	t.Run("shared value is not a cycle", func(t *testing.T) {
		shared := starlark.NewList([]starlark.Value{starlark.MakeInt(1)})
		outer := starlark.NewList([]starlark.Value{shared, shared})

		got, err := ToGo(outer)
		require.NoError(t, err)
		assert.Equal(t, []any{[]any{int64(1)}, []any{int64(1)}}, got)
	})

	t.Run("frame cell holding the frame", func(t *testing.T) {
		l := starlark.NewList(nil)
		f := NewFrame([]string{"a"}, [][]starlark.Value{{l}})
		require.NoError(t, l.Append(f))

		records := f.Records()
		require.Len(t, records, 1)
		cell, ok := records[0]["a"].(string)
		require.True(t, ok, "cyclic cell falls back to its string form")
		assert.Contains(t, cell, "frame(1 rows x 1 columns)")
	})

	t.Run("convert falls back to raw", func(t *testing.T) {
		l := starlark.NewList(nil)
		require.NoError(t, l.Append(l))

		ret, err := Convert(l)
		require.NoError(t, err)
		assert.Equal(t, query.ReturnRaw, ret.Kind)
		assert.Equal(t, l.String(), ret.Value)
	})
}

func TestConvert(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		ret, err := Convert(starlark.None)
		require.NoError(t, err)
		assert.Equal(t, query.ReturnNone, ret.Kind)
	})

	t.Run("nil", func(t *testing.T) {
		ret, err := Convert(nil)
		require.NoError(t, err)
		assert.Equal(t, query.ReturnNone, ret.Kind)
	})

	t.Run("scalar", func(t *testing.T) {
		ret, err := Convert(starlark.MakeInt(5))
		require.NoError(t, err)
		assert.Equal(t, query.Return{Kind: query.ReturnScalar, Value: int64(5)}, ret)
	})

	t.Run("frame", func(t *testing.T) {
		f := NewFrame([]string{"a"}, [][]starlark.Value{{starlark.String("x")}})
		ret, err := Convert(f)
		require.NoError(t, err)
		assert.Equal(t, query.ReturnTabular, ret.Kind)
		assert.Equal(t, []string{"a"}, ret.Columns)
		assert.Equal(t, []map[string]any{{"a": "x"}}, ret.Rows)
	})

	t.Run("figure is released", func(t *testing.T) {
		fig := &Figure{title: "t", series: []series{{kind: seriesLine, xs: []float64{0, 1}, ys: []float64{1, 2}}}}
		ret, err := Convert(fig)
		require.NoError(t, err)
		assert.Equal(t, query.ReturnImage, ret.Kind)
		assert.NotEmpty(t, ret.Image)
		assert.Nil(t, fig.series)
	})

	t.Run("raw", func(t *testing.T) {
		ret, err := Convert(starlark.NewBuiltin("fn", nil))
		require.NoError(t, err)
		assert.Equal(t, query.ReturnRaw, ret.Kind)
		assert.Equal(t, "<built-in function fn>", ret.Value)
	})
}

func TestParseYAML(t *testing.T) {
	v, err := parseYAML("z: 1\na:\n  - x\n  - 2.5\nwhen: 2024-01-02\nanchor: &v 7\nref: *v\n")
	require.NoError(t, err)

	d := v.(*starlark.Dict)
	keys := make([]string, 0, d.Len())
	for _, k := range d.Keys() {
		keys = append(keys, string(k.(starlark.String)))
	}
	assert.Equal(t, []string{"z", "a", "when", "anchor", "ref"}, keys)

	got, err := ToGo(v)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"z":      int64(1),
		"a":      []any{"x", 2.5},
		"when":   "2024-01-02",
		"anchor": int64(7),
		"ref":    int64(7),
	}, got)

	empty, err := parseYAML("")
	require.NoError(t, err)
	assert.Equal(t, starlark.None, empty)

	_, err = parseYAML("a: [unterminated")
	assert.Error(t, err)
}
