package structured

import (
	"database/sql/driver"
	"testing"

	"github.com/leapstack-labs/querypad/internal/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONDocument(t *testing.T) {
	t.Run("array of objects", func(t *testing.T) {
		tbl, ok := parseJSONDocument([]byte(`[{"b": 1, "a": "x"}, {"a": "y", "c": null}]`), 0)
		require.True(t, ok)
		assert.Equal(t, []string{"b", "a"}, tbl.columns)
		assert.Len(t, tbl.rows, 2)
	})

	t.Run("escaped key", func(t *testing.T) {
		tbl, ok := parseJSONDocument([]byte(`{"a\"b": 1}`), 0)
		require.True(t, ok)
		assert.Equal(t, []string{`a"b`}, tbl.columns)
	})

	t.Run("limit", func(t *testing.T) {
		tbl, ok := parseJSONDocument([]byte(`[{"a":1},{"a":2},{"a":3}]`), 2)
		require.True(t, ok)
		assert.Len(t, tbl.rows, 2)
	})

	t.Run("non-object elements skipped", func(t *testing.T) {
		tbl, ok := parseJSONDocument([]byte(`[1, {"a":1}, "x"]`), 0)
		require.True(t, ok)
		assert.Len(t, tbl.rows, 1)
	})

	rejected := []string{``, `not valid json`, `42`, `"str"`, `[]`, `{}`, `[1,2]`, `{"a":1} trailing`}
	for _, in := range rejected {
		_, ok := parseJSONDocument([]byte(in), 0)
		assert.False(t, ok, "expected %q to be rejected", in)
	}
}

func TestParseJSONLines(t *testing.T) {
	tbl, ok := parseJSONLines([]byte("{\"a\":1}\n  \n{\"a\":2,\"b\":3}\n"), 0)
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, tbl.columns)
	assert.Len(t, tbl.rows, 2)

	_, ok = parseJSONLines([]byte("{\"a\":1}\nnope\n"), 0)
	assert.False(t, ok)

	_, ok = parseJSONLines([]byte("[1]\n"), 0)
	assert.False(t, ok)
}

func TestTableSchemaInference(t *testing.T) {
	tbl, ok := parseJSONDocument([]byte(`[
		{"i": 1, "f": 1, "b": true, "s": "x", "mixed": 1, "nested": {"k": [1, 2]}, "nulls": null},
		{"i": 2, "f": 2.5, "b": false, "s": "y", "mixed": "z", "nested": [], "nulls": null}
	]`), 0)
	require.True(t, ok)

	cols := tbl.schema()
	types := map[string]string{}
	for _, c := range cols {
		types[c.Name] = c.Type
	}
	assert.Equal(t, map[string]string{
		"i":      "BIGINT",
		"f":      "DOUBLE",
		"b":      "BOOLEAN",
		"s":      "VARCHAR",
		"mixed":  "VARCHAR",
		"nested": "VARCHAR",
		"nulls":  "VARCHAR",
	}, types)

	vals := tbl.values(cols)
	assert.Equal(t, []driver.Value{int64(1), float64(1), true, "x", "1", `{"k":[1,2]}`, nil}, vals[0])
	assert.Equal(t, []driver.Value{int64(2), 2.5, false, "y", "z", "[]", nil}, vals[1])
}

func TestTableSchema_EmptyKey(t *testing.T) {
	tbl, ok := parseJSONDocument([]byte(`{"": 1, "b": 2}`), 0)
	require.True(t, ok)
	assert.Equal(t, []adapter.Column{{Name: "column0", Type: "BIGINT"}, {Name: "b", Type: "BIGINT"}}, tbl.schema())
}

func TestColumnNames(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{[]string{"a", "b"}, []string{"a", "b"}},
		{[]string{"id", "ID"}, []string{"id", "ID_1"}},
		{[]string{"x", "X", "x_1"}, []string{"x", "X_1", "x_1_1"}},
		{[]string{"", "column0", " "}, []string{"column0", "column0_1", "column2"}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, columnNames(tt.in), "labels %q", tt.in)
	}
}
