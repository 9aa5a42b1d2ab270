package adapter

import (
	"context"
	"database/sql/driver"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/querypad/internal/testutil"
)

func connect(t *testing.T) *DuckDB {
	t.Helper()
	a := NewDuckDB(testutil.NewTestLogger(t))
	if err := a.Connect(context.Background(), Config{}); err != nil {
		t.Fatalf("failed to connect to in-memory DuckDB: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestDuckDB_ConnectInMemory(t *testing.T) {
	connect(t)
}

func TestDuckDB_ConnectFileBased(t *testing.T) {
	ctx := context.Background()
	a := NewDuckDB(nil)

	dbPath := filepath.Join(t.TempDir(), "test.duckdb")
	if err := a.Connect(ctx, Config{Path: dbPath, Threads: 2}); err != nil {
		t.Fatalf("failed to connect to file-based DuckDB: %v", err)
	}
	defer a.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestDuckDB_ConnectLoadsExtensions(t *testing.T) {
	a := NewDuckDB(nil)
	if err := a.Connect(context.Background(), Config{Extensions: []string{"json"}}); err != nil {
		t.Fatalf("failed to connect with json extension: %v", err)
	}
	defer a.Close()

	rs, err := a.Query(context.Background(), `SELECT json_extract('{"a": 1}', '$.a')::INTEGER AS a`)
	if err != nil {
		t.Fatalf("json function unavailable: %v", err)
	}
	if got := rs.Rows[0][0]; got != int64(1) {
		t.Errorf("expected 1, got %#v", got)
	}
}

func TestDuckDB_NotConnected(t *testing.T) {
	a := NewDuckDB(nil)
	ctx := context.Background()

	if err := a.Exec(ctx, "SELECT 1"); err == nil {
		t.Error("expected error from Exec without connection")
	}
	if _, err := a.Query(ctx, "SELECT 1"); err == nil {
		t.Error("expected error from Query without connection")
	}
	if err := a.AppendRows(ctx, "t", nil); err == nil {
		t.Error("expected error from AppendRows without connection")
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close without connection should be a no-op: %v", err)
	}
}

func TestDuckDB_Query(t *testing.T) {
	ctx := context.Background()
	a := connect(t)

	if err := a.Exec(ctx, `CREATE TABLE people (id INTEGER, name VARCHAR, score DOUBLE)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	if err := a.Exec(ctx, `INSERT INTO people VALUES (1, 'alice', 1.5), (2, 'bob', NULL)`); err != nil {
		t.Fatalf("failed to insert data: %v", err)
	}

	rs, err := a.Query(ctx, "SELECT id, name, score FROM people ORDER BY id")
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}

	if len(rs.Columns) != 3 || rs.Columns[0] != "id" || rs.Columns[2] != "score" {
		t.Fatalf("unexpected columns: %v", rs.Columns)
	}
	if len(rs.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rs.Rows))
	}
	if rs.Rows[0][0] != int64(1) {
		t.Errorf("expected id normalized to int64, got %T", rs.Rows[0][0])
	}
	if rs.Rows[1][2] != nil {
		t.Errorf("expected NULL score, got %v", rs.Rows[1][2])
	}

	records := rs.Records()
	if records[1]["name"] != "bob" {
		t.Errorf("expected bob, got %v", records[1]["name"])
	}
}

func TestDuckDB_QueryEmptyResult(t *testing.T) {
	a := connect(t)

	rs, err := a.Query(context.Background(), "SELECT 1 AS x WHERE false")
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if rs.Rows == nil || len(rs.Rows) != 0 {
		t.Errorf("expected empty non-nil rows, got %v", rs.Rows)
	}
	if len(rs.Columns) != 1 {
		t.Errorf("expected 1 column, got %v", rs.Columns)
	}
}

func TestDuckDB_QueryInvalidSQL(t *testing.T) {
	a := connect(t)

	if _, err := a.Query(context.Background(), "SELEC nonsense"); err == nil {
		t.Error("expected syntax error")
	}
}

func TestDuckDB_CreateAppendDrop(t *testing.T) {
	ctx := context.Background()
	a := connect(t)

	cols := []Column{
		{Name: "id", Type: "BIGINT"},
		{Name: "label", Type: "VARCHAR"},
		{Name: "weird \"name\"", Type: "BOOLEAN"},
	}
	if err := a.CreateTable(ctx, "qp_test", cols); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}

	rows := [][]driver.Value{
		{int64(1), "it's quoted", true},
		{int64(2), nil, false},
	}
	if err := a.AppendRows(ctx, "qp_test", rows); err != nil {
		t.Fatalf("failed to append rows: %v", err)
	}

	rs, err := a.Query(ctx, `SELECT * FROM qp_test ORDER BY id`)
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if len(rs.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rs.Rows))
	}
	if rs.Rows[0][1] != "it's quoted" {
		t.Errorf("expected literal preserved, got %v", rs.Rows[0][1])
	}
	if rs.Columns[2] != `weird "name"` {
		t.Errorf("expected quoted column name preserved, got %q", rs.Columns[2])
	}

	if err := a.DropTable(ctx, "qp_test"); err != nil {
		t.Fatalf("failed to drop table: %v", err)
	}
	if err := a.DropTable(ctx, "qp_test"); err != nil {
		t.Errorf("dropping a missing table should succeed: %v", err)
	}
	if _, err := a.Query(ctx, `SELECT * FROM qp_test`); err == nil {
		t.Error("expected error querying dropped table")
	}
}

func TestDuckDB_CreateTableWithoutColumns(t *testing.T) {
	a := connect(t)
	if err := a.CreateTable(context.Background(), "empty", nil); err == nil {
		t.Error("expected error for table without columns")
	}
}

func TestDuckDB_ReadCSVAuto(t *testing.T) {
	ctx := context.Background()
	a := connect(t)

	path := testutil.WriteFile(t, t.TempDir(), "it's.csv", "id,name\n1,alice\n2,bob\n")
	stmt := "CREATE TABLE csv_t AS SELECT * FROM read_csv_auto(" + QuoteLiteral(path) + ", header=true)"
	if err := a.Exec(ctx, stmt); err != nil {
		t.Fatalf("failed to load CSV: %v", err)
	}

	rs, err := a.Query(ctx, "SELECT count(*) AS n FROM csv_t")
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if rs.Rows[0][0] != int64(2) {
		t.Errorf("expected 2 rows, got %v", rs.Rows[0][0])
	}
}

func TestQuoting(t *testing.T) {
	tests := []struct {
		fn   func(string) string
		in   string
		want string
	}{
		{QuoteIdent, "plain", `"plain"`},
		{QuoteIdent, `a"b`, `"a""b"`},
		{QuoteLiteral, "plain", `'plain'`},
		{QuoteLiteral, "it's", `'it''s'`},
	}

	for _, tt := range tests {
		if got := tt.fn(tt.in); got != tt.want {
			t.Errorf("quote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUniqueColumns(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{[]string{"a", "b"}, []string{"a", "b"}},
		{[]string{"a", "b", "a", "b"}, []string{"a", "b", "a_1", "b_1"}},
		{[]string{"a", "a", "a"}, []string{"a", "a_1", "a_2"}},
		{[]string{"a", "a_1", "a"}, []string{"a", "a_1", "a_2"}},
		{[]string{"a", "a", "a_1"}, []string{"a", "a_1", "a_1_1"}},
	}

	for _, tt := range tests {
		got := UniqueColumns(tt.in)
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("UniqueColumns(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDuckDB_QueryRepeatedColumnNames(t *testing.T) {
	ctx := context.Background()
	a := connect(t)

	rs, err := a.Query(ctx, "SELECT 1 AS a, 2 AS a")
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if strings.Join(rs.Columns, ",") != "a,a_1" {
		t.Fatalf("unexpected columns: %v", rs.Columns)
	}

	rec := rs.Records()[0]
	if rec["a"] != int64(1) {
		t.Errorf("expected a = 1, got %v", rec["a"])
	}
	if rec["a_1"] != int64(2) {
		t.Errorf("expected a_1 = 2, got %v", rec["a_1"])
	}
}
