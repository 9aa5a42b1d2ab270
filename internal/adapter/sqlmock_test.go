package adapter

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDuckDB(t *testing.T) (*DuckDB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewDuckDBFromDB(db, nil), mock
}

func TestDuckDB_QueryNormalizesValues(t *testing.T) {
	a, mock := newMockDuckDB(t)

	mock.ExpectQuery(`SELECT \* FROM t`).WillReturnRows(
		sqlmock.NewRows([]string{"raw", "small", "n"}).
			AddRow([]byte("bytes"), int32(7), nil),
	)

	rs, err := a.Query(context.Background(), "SELECT * FROM t")
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
	assert.Equal(t, []any{"bytes", int64(7), nil}, rs.Rows[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDuckDB_QueryPropagatesError(t *testing.T) {
	a, mock := newMockDuckDB(t)

	mock.ExpectQuery(`SELECT`).WillReturnError(errors.New("Binder Error: column x not found"))

	_, err := a.Query(context.Background(), "SELECT x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column x not found")
}

func TestDuckDB_QueryRowError(t *testing.T) {
	a, mock := newMockDuckDB(t)

	mock.ExpectQuery(`SELECT`).WillReturnRows(
		sqlmock.NewRows([]string{"a"}).AddRow(1).RowError(0, errors.New("row failed")),
	)

	_, err := a.Query(context.Background(), "SELECT a")
	assert.Error(t, err)
}

func TestDuckDB_DropTableQuotesName(t *testing.T) {
	a, mock := newMockDuckDB(t)

	mock.ExpectExec(`DROP TABLE IF EXISTS "qp_1_2"`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, a.DropTable(context.Background(), "qp_1_2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDuckDB_CreateTableStatement(t *testing.T) {
	a, mock := newMockDuckDB(t)

	mock.ExpectExec(`CREATE TABLE "t" \("a" BIGINT, "b" VARCHAR\)`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := a.CreateTable(context.Background(), "t", []Column{{Name: "a", Type: "BIGINT"}, {Name: "b"}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDuckDB_ExecWrapsError(t *testing.T) {
	a, mock := newMockDuckDB(t)

	mock.ExpectExec(`SET threads`).WillReturnError(errors.New("bad setting"))

	err := a.Exec(context.Background(), "SET threads = 0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute SQL")
}

func TestNormalizeValue(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"bytes", []byte("x"), "x"},
		{"int16", int16(3), int64(3)},
		{"uint64 max", uint64(1<<64 - 1), "18446744073709551615"},
		{"float32", float32(1.5), float64(1.5)},
		{"time kept", ts, ts},
		{"small bigint", big.NewInt(12), int64(12)},
		{"huge bigint", huge, "123456789012345678901234567890"},
		{"nested list", []any{int32(1), []byte("b")}, []any{int64(1), "b"}},
		{"struct", map[string]any{"k": int8(1)}, map[string]any{"k": int64(1)}},
		{"string", "s", "s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeValue(tt.in))
		})
	}
}
