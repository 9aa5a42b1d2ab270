package scripting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func evalWith(t *testing.T, expr string, env starlark.StringDict) starlark.Value {
	t.Helper()
	thread := &starlark.Thread{Name: "test"}
	globals := starlark.StringDict{"frame": frameModule, "parse_csv": starlark.NewBuiltin("parse_csv", parseCSVBuiltin)}
	for k, v := range env {
		globals[k] = v
	}
	v, err := starlark.EvalOptions(fileOptions(), thread, "test.star", expr, globals)
	require.NoError(t, err)
	return v
}

func sampleFrame(t *testing.T) *Frame {
	t.Helper()
	f, err := parseCSV("name,age,city\nalice,30,oslo\nbob,25,\ncarol,35,oslo\n", ",")
	require.NoError(t, err)
	return f
}

func TestParseCSV(t *testing.T) {
	f := sampleFrame(t)

	assert.Equal(t, []string{"name", "age", "city"}, f.Columns())
	assert.Equal(t, 3, f.Len())
	assert.Equal(t, map[string]any{"name": "bob", "age": int64(25), "city": nil}, f.Records()[1])
}

func TestParseCSV_Edges(t *testing.T) {
	f, err := parseCSV("", ",")
	require.NoError(t, err)
	assert.Equal(t, 0, f.Len())

	f, err = parseCSV("a;a;\n1.5;NaN;x\n2\n", ";")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a_1", "column2"}, f.Columns())
	assert.Equal(t, map[string]any{"a": 1.5, "a_1": "NaN", "column2": "x"}, f.Records()[0])
	assert.Equal(t, map[string]any{"a": int64(2), "a_1": nil, "column2": nil}, f.Records()[1])

	f, err = parseCSV("a,a,a_1\n1,2,3\n", ",")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a_1", "a_1_1"}, f.Columns())

	_, err = parseCSV("a,b", "::")
	assert.Error(t, err)
}

func TestFrame_Methods(t *testing.T) {
	env := starlark.StringDict{"df": sampleFrame(t)}

	tests := []struct {
		expr string
		want any
	}{
		{"len(df)", int64(3)},
		{"df.shape", []any{int64(3), int64(3)}},
		{"df.columns", []any{"name", "age", "city"}},
		{"df['age']", []any{int64(30), int64(25), int64(35)}},
		{"df[-1]['name']", "carol"},
		{"df.head(2).column('name')", []any{"alice", "bob"}},
		{"df.tail(1).column('name')", []any{"carol"}},
		{"df.head(100).shape[0]", int64(3)},
		{"df.select('city', 'name').columns", []any{"city", "name"}},
		{"df.sort_by('age').column('name')", []any{"bob", "alice", "carol"}},
		{"df.sort_by('age', reverse=True).column('name')", []any{"carol", "alice", "bob"}},
		{"df.sort_by('city').column('name')", []any{"bob", "alice", "carol"}},
		{"df.where(lambda r: r['age'] > 26).column('name')", []any{"alice", "carol"}},
		{"df.value_counts('city')", map[string]any{"oslo": int64(2), "None": int64(1)}},
		{"df.describe().records()", []any{map[string]any{"column": "age", "count": int64(3), "mean": 30.0, "min": 25.0, "max": 35.0}}},
		{"[r['name'] for r in df]", []any{"alice", "bob", "carol"}},
		{"df.to_csv()", "name,age,city\nalice,30,oslo\nbob,25,\ncarol,35,oslo\n"},
		{"bool(frame.from_records([]))", false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := ToGo(evalWith(t, tt.expr, env))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFrame_Errors(t *testing.T) {
	env := starlark.StringDict{"df": sampleFrame(t)}
	thread := &starlark.Thread{Name: "test"}

	for _, expr := range []string{"df['nope']", "df[10]", "df.column('nope')", "df.select(1)", "df.sort_by('nope')", "df[1.5]"} {
		_, err := starlark.EvalOptions(fileOptions(), thread, "test.star", expr, env)
		assert.Error(t, err, expr)
	}
}

func TestFrame_Constructors(t *testing.T) {
	f := evalWith(t, `frame.from_records([{"a": 1}, {"b": 2, "a": 3}])`, nil).(*Frame)
	assert.Equal(t, []string{"a", "b"}, f.Columns())
	assert.Equal(t, []map[string]any{{"a": int64(1), "b": nil}, {"a": int64(3), "b": int64(2)}}, f.Records())

	f = evalWith(t, `frame.from_columns({"x": [1, 2], "y": ["a"]})`, nil).(*Frame)
	assert.Equal(t, []string{"x", "y"}, f.Columns())
	assert.Equal(t, []map[string]any{{"x": int64(1), "y": "a"}, {"x": int64(2), "y": nil}}, f.Records())

	f = evalWith(t, `frame.read_csv("a|b\n1|2", delimiter="|")`, nil).(*Frame)
	assert.Equal(t, []string{"a", "b"}, f.Columns())
}

func TestFrame_String(t *testing.T) {
	f := sampleFrame(t)
	s := f.String()
	assert.Contains(t, s, "frame(3 rows x 3 columns)")
	assert.Contains(t, s, "alice\t30\toslo")
}

func TestNewFrame_PadsRows(t *testing.T) {
	f := NewFrame([]string{"a", "b"}, [][]starlark.Value{{starlark.MakeInt(1)}})
	assert.Equal(t, []map[string]any{{"a": int64(1), "b": nil}}, f.Records())
}
