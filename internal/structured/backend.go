package structured

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/leapstack-labs/querypad/internal/adapter"
	"github.com/leapstack-labs/querypad/internal/engine"
	"github.com/leapstack-labs/querypad/internal/query"
)

// DefaultMaxRows caps rows ingested from JSON, spreadsheet and text files.
const DefaultMaxRows = 10000

// Options configures a Backend.
type Options struct {
	// MaxRows caps ingested rows for formats parsed in process.
	MaxRows int
	// TempDir holds files handed to the engine's readers. Empty uses the OS default.
	TempDir string
	Logger  *slog.Logger
}

// Backend executes SQL against the active file.
type Backend struct {
	handle  *engine.Handle[adapter.Engine]
	maxRows int
	tempDir string
	logger  *slog.Logger
	seq     atomic.Uint64
}

// NewBackend creates a backend over the given engine handle.
func NewBackend(handle *engine.Handle[adapter.Engine], opts Options) *Backend {
	b := &Backend{
		handle:  handle,
		maxRows: opts.MaxRows,
		tempDir: opts.TempDir,
		logger:  opts.Logger,
	}
	if b.maxRows <= 0 {
		b.maxRows = DefaultMaxRows
	}
	if b.logger == nil {
		b.logger = slog.New(slog.DiscardHandler)
	}
	return b
}

// Execute runs q against ec. Failures are reported in the result, never
// returned or panicked. The per-run relation is always released before
// Execute returns.
func (b *Backend) Execute(ctx context.Context, q string, ec query.ExecutionContext) *query.Result {
	eng, err := b.handle.Acquire(ctx)
	if err != nil {
		return query.Failure(query.ModeStructured, err.Error(), 0)
	}

	start := time.Now()
	rs, err := b.run(ctx, eng, q, ec)
	elapsed := time.Since(start)

	if err != nil {
		b.logger.Debug("structured query failed",
			slog.String("file", ec.FilePath),
			slog.String("error", err.Error()))
		return query.Failure(query.ModeStructured, err.Error(), elapsed)
	}
	return query.Structured(rs.Columns, rs.Records(), elapsed)
}

func (b *Backend) run(ctx context.Context, eng adapter.Engine, q string, ec query.ExecutionContext) (*adapter.ResultSet, error) {
	rel := &relation{name: b.relationName()}
	defer b.release(ctx, eng, rel)

	if err := b.materialize(ctx, eng, rel, ec); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", displayName(ec), err)
	}

	sqlText := Rewrite(q, rel.name, ec.FilePath)
	b.logger.Debug("executing structured query",
		slog.String("relation", rel.name),
		slog.String("sql", sqlText))

	return eng.Query(ctx, sqlText)
}

// relationName returns a name unique across runs of this process.
func (b *Backend) relationName() string {
	return fmt.Sprintf("qp_%d_%d", time.Now().UnixNano(), b.seq.Add(1))
}

// release drops the relation and its temp file. Failures are logged only.
func (b *Backend) release(ctx context.Context, eng adapter.Engine, rel *relation) {
	ctx = context.WithoutCancel(ctx)
	if err := eng.DropTable(ctx, rel.name); err != nil {
		b.logger.Warn("failed to drop relation",
			slog.String("relation", rel.name),
			slog.String("error", err.Error()))
	}
	if rel.tempFile != "" {
		if err := os.Remove(rel.tempFile); err != nil && !os.IsNotExist(err) {
			b.logger.Warn("failed to remove temp file",
				slog.String("path", rel.tempFile),
				slog.String("error", err.Error()))
		}
	}
}

func displayName(ec query.ExecutionContext) string {
	if ec.FilePath == "" {
		return "file"
	}
	return ec.FilePath
}
