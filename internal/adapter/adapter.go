// Package adapter wraps the embedded DuckDB engine used by the structured
// query backend.
package adapter

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"
)

// Config holds the configuration for opening the engine.
type Config struct {
	// Path is the database file. Empty means in-memory.
	Path string

	// Threads caps the engine worker threads. Zero keeps the engine default.
	Threads int

	// Extensions are loaded after the connection is established.
	Extensions []string
}

// Column describes a column of a relation created through the adapter.
type Column struct {
	Name string
	Type string
}

// ResultSet is a fully materialized query result with normalized values.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// Records converts the result set into column-keyed rows.
func (rs *ResultSet) Records() []map[string]any {
	out := make([]map[string]any, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		rec := make(map[string]any, len(rs.Columns))
		for i, col := range rs.Columns {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out
}

// UniqueColumns renames repeated column names so every name keys exactly
// one column: a, a, a becomes a, a_1, a_2. Self joins and repeated
// aliases produce such names.
func UniqueColumns(names []string) []string {
	out := make([]string, len(names))
	taken := make(map[string]bool, len(names))
	for i, n := range names {
		name := n
		for k := 1; taken[name]; k++ {
			name = fmt.Sprintf("%s_%d", n, k)
		}
		taken[name] = true
		out[i] = name
	}
	return out
}

// Engine is the subset of engine operations the structured backend relies on.
type Engine interface {
	Exec(ctx context.Context, sql string) error
	Query(ctx context.Context, sql string) (*ResultSet, error)
	CreateTable(ctx context.Context, table string, columns []Column) error
	AppendRows(ctx context.Context, table string, rows [][]driver.Value) error
	DropTable(ctx context.Context, table string) error
	Close() error
}

// QuoteIdent quotes an identifier for use in generated SQL.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral quotes a string literal for use in generated SQL.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
