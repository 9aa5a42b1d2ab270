package structured

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewrite(t *testing.T) {
	const rel = "qp_1_1"

	tests := []struct {
		name  string
		query string
		path  string
		want  string
	}{
		{"placeholder", "SELECT * FROM data", "a.csv", `SELECT * FROM "qp_1_1"`},
		{"placeholder case", "select * from DF where x > 1", "a.csv", `select * from "qp_1_1" where x > 1`},
		{"every placeholder", "SELECT * FROM file JOIN this ON true JOIN input ON true", "a.csv",
			`SELECT * FROM "qp_1_1" JOIN "qp_1_1" ON true JOIN "qp_1_1" ON true`},
		{"describe", "DESCRIBE data", "a.parquet", `DESCRIBE "qp_1_1"`},
		{"quoted base name", `SELECT * FROM "people.csv"`, "/w/people.csv", `SELECT * FROM "qp_1_1"`},
		{"single quoted full path", `SELECT * FROM '/w/people.csv'`, "/w/people.csv", `SELECT * FROM "qp_1_1"`},
		{"other table untouched", "SELECT * FROM range(3)", "a.csv", "SELECT * FROM range(3)"},
		{"other name untouched", "SELECT * FROM dataset", "a.csv", "SELECT * FROM dataset"},
		{"unrelated quoted file", `SELECT * FROM "other.csv"`, "/w/people.csv", `SELECT * FROM "other.csv"`},
		{"no from", "SELECT 1", "a.csv", `SELECT * FROM "qp_1_1"`},
		{"empty", "", "a.csv", `SELECT * FROM "qp_1_1"`},
		{"extract keeps from", "SELECT extract(year FROM ts) FROM data", "a.csv",
			`SELECT extract(year FROM ts) FROM "qp_1_1"`},
		{"string literal untouched", "SELECT 'picked from data' AS s FROM data", "a.csv",
			`SELECT 'picked from data' AS s FROM "qp_1_1"`},
		{"escaped quote in literal", "SELECT 'it''s from data' FROM data", "a.csv",
			`SELECT 'it''s from data' FROM "qp_1_1"`},
		{"quoted identifier untouched", `SELECT 1 AS "x from data" FROM data`, "a.csv",
			`SELECT 1 AS "x from data" FROM "qp_1_1"`},
		{"line comment untouched", "SELECT * FROM data -- join data later\nWHERE 1=1", "a.csv",
			"SELECT * FROM \"qp_1_1\" -- join data later\nWHERE 1=1"},
		{"block comment untouched", "SELECT /* from data */ * FROM input", "a.csv",
			`SELECT /* from data */ * FROM "qp_1_1"`},
		{"from only inside literal", "SELECT 'from data'", "a.csv", `SELECT * FROM "qp_1_1"`},
		{"quoted file name in join", `SELECT * FROM data JOIN 'people.csv' p ON true`, "/w/people.csv",
			`SELECT * FROM "qp_1_1" JOIN "qp_1_1" p ON true`},
		{"newline whitespace", "SELECT *\nFROM\n  data", "a.csv", "SELECT *\nFROM\n  \"qp_1_1\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Rewrite(tt.query, rel, tt.path))
		})
	}
}

func TestClassify(t *testing.T) {
	tests := map[string]Kind{
		"csv":     KindDelimited,
		"tsv":     KindDelimited,
		"json":    KindJSON,
		"jsonl":   KindJSONLines,
		"ndjson":  KindJSONLines,
		"parquet": KindParquet,
		"xlsx":    KindSpreadsheet,
		"txt":     KindText,
		"":        KindText,
		"md":      KindText,
	}

	for ext, want := range tests {
		assert.Equal(t, want, Classify(ext), "extension %q", ext)
	}
}
