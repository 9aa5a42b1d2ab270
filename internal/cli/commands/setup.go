package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/leapstack-labs/querypad/internal/app"
	"github.com/leapstack-labs/querypad/internal/cli/config"
	"github.com/leapstack-labs/querypad/internal/cli/output"
	"github.com/leapstack-labs/querypad/internal/metrics"
	"github.com/leapstack-labs/querypad/internal/query"
	"github.com/leapstack-labs/querypad/internal/session"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	App      *app.App
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with the engines and renderer.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command, m *metrics.Metrics) (*CommandContext, func()) {
	cfg := config.GetConfig(cmd.Context())
	logger := config.GetLogger(cmd.Context())

	a := app.New(appConfig(cfg, logger, m))

	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	cleanup := func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to close engines", "error", err)
		}
	}

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		App:      a,
		Renderer: r,
	}, cleanup
}

func appConfig(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) app.Config {
	return app.Config{
		Threads:    cfg.Structured.Threads,
		Extensions: cfg.Structured.Extensions,
		MaxRows:    cfg.Structured.MaxRows,
		TempDir:    cfg.Structured.TempDir,
		ScriptsDir: cfg.Scripting.ScriptsDir,
		MaxSteps:   cfg.Scripting.MaxSteps,
		Logger:     logger,
		Metrics:    m,
	}
}

// NewSession creates a session whose save() writes back to the active file.
func (c *CommandContext) NewSession(mode query.Mode) *session.Session {
	return c.App.NewSession(session.Config{
		OnSave:      writeBack,
		Logger:      c.Logger,
		Mode:        mode,
		PanelHeight: c.Cfg.UI.PanelHeight,
	})
}

// OpenFile reads path and makes it the session's active file.
func OpenFile(s *session.Session, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	s.SetActiveFile(abs, content)
	return nil
}

// writeBack atomically replaces the file at path, keeping its permissions.
func writeBack(path, content string) error {
	perm := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	if err := renameio.WriteFile(path, []byte(content), perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
