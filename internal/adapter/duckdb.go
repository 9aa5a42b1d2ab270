package adapter

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/marcboeker/go-duckdb"
)

var (
	errNotConnected = errors.New("database connection not established")
	extensionName   = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// DuckDB implements Engine on top of an embedded DuckDB database.
type DuckDB struct {
	db     *sql.DB
	config Config
	logger *slog.Logger
}

// NewDuckDB creates an unconnected DuckDB adapter.
func NewDuckDB(logger *slog.Logger) *DuckDB {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DuckDB{logger: logger}
}

// NewDuckDBFromDB wraps an already opened database handle.
func NewDuckDBFromDB(db *sql.DB, logger *slog.Logger) *DuckDB {
	a := NewDuckDB(logger)
	a.db = db
	return a
}

// Connect opens the database and applies the configured settings.
// The pool is pinned to one connection so temporary relations stay visible
// to every statement.
func (a *DuckDB) Connect(ctx context.Context, cfg Config) error {
	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	a.db = db
	a.config = cfg

	if cfg.Threads > 0 {
		if err := a.Exec(ctx, fmt.Sprintf("SET threads = %d", cfg.Threads)); err != nil {
			_ = a.Close()
			return err
		}
	}
	for _, ext := range cfg.Extensions {
		if !extensionName.MatchString(ext) {
			_ = a.Close()
			return fmt.Errorf("invalid extension name %q", ext)
		}
		if err := a.Exec(ctx, "LOAD "+ext); err != nil {
			_ = a.Close()
			return fmt.Errorf("failed to load extension %s: %w", ext, err)
		}
		a.logger.Debug("loaded extension", slog.String("extension", ext))
	}

	return nil
}

// Close closes the DuckDB connection.
func (a *DuckDB) Close() error {
	if a.db != nil {
		err := a.db.Close()
		a.db = nil
		return err
	}
	return nil
}

// Exec executes a statement that doesn't return rows.
func (a *DuckDB) Exec(ctx context.Context, sqlStr string) error {
	if a.db == nil {
		return errNotConnected
	}

	if _, err := a.db.ExecContext(ctx, sqlStr); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// Query executes a statement and materializes every row.
func (a *DuckDB) Query(ctx context.Context, sqlStr string) (*ResultSet, error) {
	if a.db == nil {
		return nil, errNotConnected
	}

	rows, err := a.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	rs := &ResultSet{Columns: UniqueColumns(columns), Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			values[i] = NormalizeValue(v)
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rs, nil
}

// CreateTable creates a table with the given columns.
func (a *DuckDB) CreateTable(ctx context.Context, table string, columns []Column) error {
	if len(columns) == 0 {
		return fmt.Errorf("table %s has no columns", table)
	}

	defs := make([]string, len(columns))
	for i, col := range columns {
		typ := col.Type
		if typ == "" {
			typ = "VARCHAR"
		}
		defs[i] = QuoteIdent(col.Name) + " " + typ
	}

	return a.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", QuoteIdent(table), strings.Join(defs, ", ")))
}

// AppendRows bulk-inserts rows through the DuckDB appender. Values are bound
// natively, never spliced into SQL text.
func (a *DuckDB) AppendRows(ctx context.Context, table string, rows [][]driver.Value) error {
	if a.db == nil {
		return errNotConnected
	}

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	return conn.Raw(func(dc any) error {
		driverConn, ok := dc.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", dc)
		}

		appender, err := duckdb.NewAppenderFromConn(driverConn, "", table)
		if err != nil {
			return fmt.Errorf("failed to create appender for %s: %w", table, err)
		}

		for i, row := range rows {
			if err := appender.AppendRow(row...); err != nil {
				_ = appender.Close()
				return fmt.Errorf("failed to append row %d: %w", i, err)
			}
		}

		if err := appender.Close(); err != nil {
			return fmt.Errorf("failed to flush appender: %w", err)
		}
		return nil
	})
}

// DropTable removes a table if it exists.
func (a *DuckDB) DropTable(ctx context.Context, table string) error {
	return a.Exec(ctx, "DROP TABLE IF EXISTS "+QuoteIdent(table))
}

var _ Engine = (*DuckDB)(nil)
