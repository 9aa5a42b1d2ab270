package structured

import (
	"bytes"
	"context"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/leapstack-labs/querypad/internal/adapter"
	"github.com/leapstack-labs/querypad/internal/query"
	"github.com/xuri/excelize/v2"
)

// relation is the per-run materialization of the active file.
type relation struct {
	name     string
	tempFile string
}

// materialize loads the file content into rel. Malformed JSON and delimited
// content falls back to a raw-text relation instead of failing the run.
func (b *Backend) materialize(ctx context.Context, eng adapter.Engine, rel *relation, ec query.ExecutionContext) error {
	kind := Classify(ec.FileExtension)
	log := b.logger.With(slog.String("relation", rel.name), slog.String("kind", string(kind)))

	switch kind {
	case KindDelimited:
		if err := b.loadDelimited(ctx, eng, rel, ec); err != nil {
			log.Debug("delimited ingestion failed, falling back to raw text", slog.String("error", err.Error()))
			return b.loadRaw(ctx, eng, rel, ec.FileContent)
		}
		return nil

	case KindJSON, KindJSONLines:
		parse := parseJSONDocument
		if kind == KindJSONLines {
			parse = parseJSONLines
		}
		t, ok := parse(ec.FileContent, b.maxRows)
		if !ok {
			log.Debug("content is not a JSON record set, falling back to raw text")
			return b.loadRaw(ctx, eng, rel, ec.FileContent)
		}
		if err := b.loadTable(ctx, eng, rel.name, t); err != nil {
			log.Debug("json ingestion failed, falling back to raw text", slog.String("error", err.Error()))
			_ = eng.DropTable(ctx, rel.name)
			return b.loadRaw(ctx, eng, rel, ec.FileContent)
		}
		return nil

	case KindParquet:
		path, err := b.writeTemp(rel, ec.FileContent, ".parquet")
		if err != nil {
			return err
		}
		return eng.Exec(ctx, fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM read_parquet(%s)",
			adapter.QuoteIdent(rel.name), adapter.QuoteLiteral(path)))

	case KindSpreadsheet:
		return b.loadSpreadsheet(ctx, eng, rel.name, ec.FileContent)

	default:
		return b.loadLines(ctx, eng, rel.name, ec.FileContent)
	}
}

func (b *Backend) loadDelimited(ctx context.Context, eng adapter.Engine, rel *relation, ec query.ExecutionContext) error {
	path, err := b.writeTemp(rel, ec.FileContent, "."+ec.FileExtension)
	if err != nil {
		return err
	}

	opts := "header=true"
	if ec.FileExtension == "tsv" {
		opts += ", delim='\\t'"
	}
	return eng.Exec(ctx, fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM read_csv_auto(%s, %s)",
		adapter.QuoteIdent(rel.name), adapter.QuoteLiteral(path), opts))
}

func (b *Backend) writeTemp(rel *relation, content []byte, suffix string) (string, error) {
	f, err := os.CreateTemp(b.tempDir, rel.name+"-*"+suffix)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	rel.tempFile = f.Name()

	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return rel.tempFile, nil
}

func (b *Backend) loadTable(ctx context.Context, eng adapter.Engine, name string, t *table) error {
	cols := t.schema()
	if err := eng.CreateTable(ctx, name, cols); err != nil {
		return err
	}
	return eng.AppendRows(ctx, name, t.values(cols))
}

// loadRaw stores the whole content as a single-row content column.
func (b *Backend) loadRaw(ctx context.Context, eng adapter.Engine, rel *relation, content []byte) error {
	if err := eng.CreateTable(ctx, rel.name, []adapter.Column{{Name: "content", Type: "VARCHAR"}}); err != nil {
		return err
	}
	return eng.AppendRows(ctx, rel.name, [][]driver.Value{{string(content)}})
}

// loadLines stores one row per line in a line column.
func (b *Backend) loadLines(ctx context.Context, eng adapter.Engine, name string, content []byte) error {
	if err := eng.CreateTable(ctx, name, []adapter.Column{{Name: "line", Type: "VARCHAR"}}); err != nil {
		return err
	}

	lines := splitLines(string(content))
	if b.maxRows > 0 && len(lines) > b.maxRows {
		lines = lines[:b.maxRows]
	}
	rows := make([][]driver.Value, len(lines))
	for i, l := range lines {
		rows[i] = []driver.Value{l}
	}
	return eng.AppendRows(ctx, name, rows)
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// loadSpreadsheet reads the first sheet. The first row supplies column
// names and every cell is kept as text.
func (b *Backend) loadSpreadsheet(ctx context.Context, eng adapter.Engine, name string, content []byte) error {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return fmt.Errorf("spreadsheet has no sheets")
	}
	grid, err := f.GetRows(sheets[0])
	if err != nil {
		return fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(grid) == 0 {
		return fmt.Errorf("sheet %s is empty", sheets[0])
	}

	header := grid[0]
	width := len(header)
	for _, r := range grid[1:] {
		width = max(width, len(r))
	}

	labels := make([]string, width)
	copy(labels, header)
	cols := make([]adapter.Column, width)
	for i, label := range columnNames(labels) {
		cols[i] = adapter.Column{Name: label, Type: "VARCHAR"}
	}

	if err := eng.CreateTable(ctx, name, cols); err != nil {
		return err
	}

	body := grid[1:]
	if b.maxRows > 0 && len(body) > b.maxRows {
		body = body[:b.maxRows]
	}
	rows := make([][]driver.Value, len(body))
	for r, src := range body {
		vals := make([]driver.Value, width)
		for i := range vals {
			if i < len(src) && src[i] != "" {
				vals[i] = src[i]
			}
		}
		rows[r] = vals
	}
	return eng.AppendRows(ctx, name, rows)
}

// columnNames turns source labels into column names the engine accepts.
// Blank labels become columnN. Identifiers are case-insensitive, so a
// label that matches an earlier one in any case gets a numeric suffix.
func columnNames(labels []string) []string {
	out := make([]string, len(labels))
	taken := make(map[string]bool, len(labels))
	for i, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			label = fmt.Sprintf("column%d", i)
		}
		name := label
		for k := 1; taken[strings.ToLower(name)]; k++ {
			name = fmt.Sprintf("%s_%d", label, k)
		}
		taken[strings.ToLower(name)] = true
		out[i] = name
	}
	return out
}
