// Package session holds the per-user query workspace: query text and mode,
// the run guard, history, bookmarks, panel state and the pending action
// handed over by other tools. Hosts drive it; it drives the backends.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/leapstack-labs/querypad/internal/query"
	"github.com/leapstack-labs/querypad/internal/viewer"
)

// Sentinel errors.
var (
	ErrNoActiveFile = errors.New("no active file")
	ErrRunning      = errors.New("a query is already running")
	ErrNotFound     = errors.New("not found")
)

// Panel height bounds, in pixels for the web panel.
const (
	MinPanelHeight     = 120
	MaxPanelHeight     = 2000
	DefaultPanelHeight = 320
)

// SaveHandler writes content produced by user code back to a file.
type SaveHandler func(path, content string) error

// RunObserver is told about every completed run.
type RunObserver func(mode query.Mode, res *query.Result)

// Config wires a session to its backends and host.
type Config struct {
	Structured query.StructuredRunner
	Scripting  query.ScriptRunner

	// OnSave receives save() calls from scripts. Nil disables saving.
	OnSave   SaveHandler
	Observer RunObserver
	Logger   *slog.Logger

	Mode        query.Mode
	PanelHeight int
}

// File is the active file as last seen by the host.
type File struct {
	Path    string
	Content []byte
}

type pendingAction struct {
	mode query.Mode
	text string
}

// Session is safe for concurrent use. Backend calls run outside the lock.
type Session struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	text        string
	mode        query.Mode
	running     bool
	history     []HistoryItem
	bookmarks   []Bookmark
	panelOpen   bool
	panelHeight int
	pending     *pendingAction
	file        *File
	last        *query.Result
	viewOpts    viewer.Options
}

// New creates an idle session with the panel closed.
func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	mode := cfg.Mode
	if !mode.Valid() {
		mode = query.ModeStructured
	}
	height := cfg.PanelHeight
	if height == 0 {
		height = DefaultPanelHeight
	}

	return &Session{
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
		mode:        mode,
		panelHeight: clampHeight(height),
	}
}

// Query returns the current query text.
func (s *Session) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// SetQuery replaces the query text. Ignored while running.
func (s *Session) SetQuery(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		s.text = text
	}
}

// Mode returns the current mode.
func (s *Session) Mode() query.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches modes. The query becomes the new mode's template for the
// active file unless a pending action is waiting, which wins once.
func (s *Session) SetMode(m query.Mode) error {
	if !m.Valid() {
		return fmt.Errorf("unknown query mode %q", m)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRunning
	}
	if s.consumePendingLocked() {
		return nil
	}
	if m == s.mode {
		return nil
	}
	s.mode = m
	s.text = Template(m, s.extLocked())
	return nil
}

// Running reports whether a run is in progress.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Run executes the current query against the active file. It reports false
// without running when a run is already in progress or the query is blank.
func (s *Session) Run(ctx context.Context) (*query.Result, bool) {
	s.mu.Lock()
	if s.running || strings.TrimSpace(s.text) == "" {
		s.mu.Unlock()
		return nil, false
	}
	text, mode := s.text, s.mode
	ec, err := s.snapshotLocked()
	s.running = true
	s.mu.Unlock()

	var res *query.Result
	if err != nil {
		res = query.Failure(mode, err.Error(), 0)
	} else {
		res = s.execute(ctx, mode, text, ec)
	}

	s.mu.Lock()
	s.running = false
	s.last = res
	s.viewOpts.Page = 0
	if res.Success {
		s.recordLocked(text, mode, ec.FilePath)
	}
	s.mu.Unlock()

	s.logger.Debug("query finished",
		slog.String("mode", string(mode)),
		slog.Bool("success", res.Success),
		slog.Float64("elapsed_ms", res.ExecutionTimeMs))
	if s.cfg.Observer != nil {
		s.cfg.Observer(mode, res)
	}
	return res, true
}

// execute never panics past the session, so running is always cleared.
func (s *Session) execute(ctx context.Context, mode query.Mode, text string, ec query.ExecutionContext) (res *query.Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("backend panicked", slog.Any("panic", r))
			res = query.Failure(mode, fmt.Sprintf("internal error: %v", r), time.Since(start))
		}
	}()

	switch mode {
	case query.ModeScripting:
		if s.cfg.Scripting == nil {
			return query.Failure(mode, "scripting backend is not configured", 0)
		}
		return s.cfg.Scripting.Execute(ctx, text, ec, s.saveFunc(ec.FilePath))
	default:
		if s.cfg.Structured == nil {
			return query.Failure(mode, "structured backend is not configured", 0)
		}
		return s.cfg.Structured.Execute(ctx, text, ec)
	}
}

func (s *Session) saveFunc(path string) query.SaveFunc {
	if s.cfg.OnSave == nil {
		return nil
	}
	return func(content string) {
		if err := s.cfg.OnSave(path, content); err != nil {
			s.logger.Warn("failed to save file", slog.String("path", path), slog.String("error", err.Error()))
			return
		}
		s.mu.Lock()
		if s.file != nil && s.file.Path == path {
			s.file.Content = []byte(content)
		}
		s.mu.Unlock()
	}
}

// LastResult returns the most recent run's result, or nil.
func (s *Session) LastResult() *query.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// ViewOptions returns the viewer options for the last result.
func (s *Session) ViewOptions() viewer.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewOpts
}

// SetViewOptions replaces the viewer options.
func (s *Session) SetViewOptions(opts viewer.Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewOpts = opts
}

// View derives the current view of the last result.
func (s *Session) View() viewer.View {
	s.mu.Lock()
	last, opts := s.last, s.viewOpts
	s.mu.Unlock()
	return viewer.Build(last, opts)
}

// QueueAction stores a query handed over by another tool. It replaces any
// earlier pending action and is applied on the next panel open, file change
// or mode switch.
func (s *Session) QueueAction(language, text string) error {
	mode, err := query.ParseMode(language)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("action query is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &pendingAction{mode: mode, text: text}
	return nil
}

// HasPendingAction reports whether a queued action is waiting.
func (s *Session) HasPendingAction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

func (s *Session) consumePendingLocked() bool {
	if s.pending == nil || s.running {
		return false
	}
	s.text, s.mode = s.pending.text, s.pending.mode
	s.pending = nil
	return true
}

// SetActiveFile makes path the active file. Switching to a different file
// applies a pending action, or refreshes the query if it still holds the
// previous file's template. Re-setting the same path only updates content.
func (s *Session) SetActiveFile(path string, content []byte) {
	buf := make([]byte, len(content))
	copy(buf, content)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil && s.file.Path == path {
		s.file.Content = buf
		return
	}

	prevExt := s.extLocked()
	s.file = &File{Path: path, Content: buf}
	if s.consumePendingLocked() || s.running {
		return
	}
	if strings.TrimSpace(s.text) == "" || s.text == Template(s.mode, prevExt) {
		s.text = Template(s.mode, s.extLocked())
	}
}

// ClearActiveFile forgets the active file.
func (s *Session) ClearActiveFile() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file = nil
}

// ActiveFile returns the active file path.
func (s *Session) ActiveFile() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return "", false
	}
	return s.file.Path, true
}

// Snapshot copies the active file into an execution context.
func (s *Session) Snapshot() (query.ExecutionContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() (query.ExecutionContext, error) {
	if s.file == nil {
		return query.ExecutionContext{}, ErrNoActiveFile
	}
	return query.NewExecutionContext(s.file.Path, s.file.Content), nil
}

func (s *Session) extLocked() string {
	if s.file == nil {
		return ""
	}
	return query.ExtensionOf(s.file.Path)
}

// PanelOpen reports whether the results panel is open.
func (s *Session) PanelOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panelOpen
}

// OpenPanel opens the panel and applies a pending action.
func (s *Session) OpenPanel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openPanelLocked()
}

func (s *Session) openPanelLocked() {
	if s.panelOpen {
		return
	}
	s.panelOpen = true
	if !s.consumePendingLocked() && strings.TrimSpace(s.text) == "" {
		s.text = Template(s.mode, s.extLocked())
	}
}

// ClosePanel closes the panel.
func (s *Session) ClosePanel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panelOpen = false
}

// TogglePanel flips the panel and returns the new state.
func (s *Session) TogglePanel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panelOpen {
		s.panelOpen = false
	} else {
		s.openPanelLocked()
	}
	return s.panelOpen
}

// PanelHeight returns the panel height.
func (s *Session) PanelHeight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panelHeight
}

// SetPanelHeight clamps and stores h, returning the stored value.
func (s *Session) SetPanelHeight(h int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panelHeight = clampHeight(h)
	return s.panelHeight
}

func clampHeight(h int) int {
	return max(MinPanelHeight, min(h, MaxPanelHeight))
}
