package scripting

import (
	"context"
	"log/slog"
	"time"

	"github.com/leapstack-labs/querypad/internal/engine"
	"github.com/leapstack-labs/querypad/internal/query"
)

// Backend executes Starlark code against the active file.
type Backend struct {
	handle *engine.Handle[*Runtime]
	logger *slog.Logger
}

// NewBackend creates a backend over the given runtime handle.
func NewBackend(handle *engine.Handle[*Runtime], logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Backend{handle: handle, logger: logger}
}

// Execute runs code in a fresh scope. The file content is available as
// content, a parsed form as data, and save(...) hands text to onSave.
// Failures are reported in the result, never returned or panicked.
func (b *Backend) Execute(ctx context.Context, code string, ec query.ExecutionContext, onSave query.SaveFunc) *query.Result {
	rt, err := b.handle.Acquire(ctx)
	if err != nil {
		return query.Failure(query.ModeScripting, err.Error(), 0)
	}

	start := time.Now()
	sc := rt.newScope(ec, onSave, b.logger)
	value, err := sc.exec(ctx, code)
	if err != nil {
		elapsed := time.Since(start)
		if out := sc.stdout.String(); out != "" {
			b.logger.Debug("discarding output of failed script",
				slog.String("file", ec.FilePath),
				slog.String("stdout", out))
		}
		return query.Failure(query.ModeScripting, errorMessage(err), elapsed)
	}

	ret, err := Convert(value)
	elapsed := time.Since(start)
	if err != nil {
		return query.Failure(query.ModeScripting, err.Error(), elapsed)
	}
	return query.Scripted(sc.stdout.String(), ret, elapsed)
}
