// Package ui serves the query panel over HTTP.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/leapstack-labs/querypad/internal/app"
	"github.com/leapstack-labs/querypad/internal/query"
	"github.com/leapstack-labs/querypad/internal/session"
	"github.com/leapstack-labs/querypad/internal/ui/browser"
	"github.com/leapstack-labs/querypad/internal/ui/features/common"
	"github.com/leapstack-labs/querypad/internal/ui/notifier"
	"github.com/leapstack-labs/querypad/internal/ui/resources"
	"github.com/leapstack-labs/querypad/internal/ui/router"
	"golang.org/x/sync/errgroup"
)

// Server is the web panel server.
type Server struct {
	app          *app.App
	sessionStore *sessions.CookieStore
	registry     *browser.Registry
	notifier     *notifier.Notifier
	watcher      *fileWatcher
	port         int
	watch        bool
	panelHeight  int
	filePath     string
	onSave       session.SaveHandler
	logger       *slog.Logger
}

// Config holds configuration for the web panel server.
type Config struct {
	App           *app.App
	Port          int
	Watch         bool
	SessionSecret string
	PanelHeight   int
	Logger        *slog.Logger

	// MaxSessions caps the browser sessions held in memory. Zero means
	// browser.DefaultLimit.
	MaxSessions int

	// FilePath, if set, is the active file of every new browser session.
	FilePath string
	// OnSave writes save() output back to disk. Nil disables saving.
	OnSave session.SaveHandler
}

// NewServer creates a new web panel server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.MaxAge(86400 * 30) // 30 days
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	filePath := cfg.FilePath
	if filePath != "" {
		filePath = absPath(filePath)
	}

	s := &Server{
		app:          cfg.App,
		sessionStore: sessionStore,
		notifier:     notifier.New(),
		watcher:      newFileWatcher(logger),
		port:         cfg.Port,
		watch:        cfg.Watch,
		panelHeight:  cfg.PanelHeight,
		filePath:     filePath,
		onSave:       cfg.OnSave,
		logger:       logger,
	}
	s.registry = browser.NewRegistry(sessionStore, s.newSession, logger)
	s.registry.SetLimit(cfg.MaxSessions)
	return s
}

// newSession creates the query session of a new browser.
func (s *Server) newSession() *session.Session {
	var onSave session.SaveHandler
	if s.onSave != nil {
		onSave = s.save
	}
	qs := s.app.NewSession(session.Config{
		OnSave:      onSave,
		Logger:      s.logger,
		PanelHeight: s.panelHeight,
	})

	if s.filePath != "" {
		content, err := os.ReadFile(s.filePath)
		if err != nil {
			s.logger.Warn("failed to read file", "path", s.filePath, "error", err)
			return qs
		}
		qs.SetActiveFile(s.filePath, content)
		s.watcher.Add(s.filePath)
	}
	return qs
}

// save writes content and brings every other session showing path up to
// date. With watching on, the watcher does the latter.
func (s *Server) save(path, content string) error {
	if err := s.onSave(path, content); err != nil {
		return err
	}
	if !s.watch {
		s.reload(path)
	}
	return nil
}

// reload re-reads path into every session that has it active and pings
// their browsers.
func (s *Server) reload(path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		s.logger.Debug("skipping reload", "path", path, "error", err)
		return
	}
	s.registry.Each(func(id string, qs *session.Session) {
		if active, ok := qs.ActiveFile(); ok && active == path {
			qs.SetActiveFile(path, content)
			s.notifier.Notify(id)
		}
	})
}

// Handler builds the HTTP handler with all routes.
func (s *Server) Handler() (http.Handler, error) {
	r := chi.NewMux()
	r.Use(middleware.Recoverer, middleware.Compress(5))
	if s.IsDev() {
		r.Use(middleware.Logger)
	}

	var metrics http.Handler
	if s.app.Metrics != nil {
		metrics = s.app.Metrics.Handler()
	}

	deps := common.Deps{
		Sessions: s.registry,
		Notifier: s.notifier,
		Logger:   s.logger,
		IsDev:    s.IsDev(),
		Opened:   s.watcher.Add,
	}
	if err := router.SetupRoutes(r, deps, metrics); err != nil {
		return nil, fmt.Errorf("failed to setup routes: %w", err)
	}
	return r, nil
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting web panel", "addr", fmt.Sprintf("http://localhost:%d", s.port))

	eg, egctx := errgroup.WithContext(ctx)

	handler, err := s.Handler()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watch {
		eg.Go(func() error {
			return s.watcher.Run(egctx, s.reload)
		})
	}

	// Bootstrapping in the background keeps the first run fast.
	eg.Go(func() error {
		if err := s.app.Warmup(egctx, query.ModeStructured, query.ModeScripting); err != nil {
			s.logger.Debug("warmup failed", "error", err)
		}
		return nil
	})

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down web panel...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// IsDev reports whether static assets are served from disk.
func (s *Server) IsDev() bool {
	return resources.IsDev()
}

// Notifier returns the server's notifier for SSE updates.
func (s *Server) Notifier() *notifier.Notifier {
	return s.notifier
}

// Sessions returns the browser session registry.
func (s *Server) Sessions() *browser.Registry {
	return s.registry
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
