// Package panel serves the query panel page and its interactive endpoints.
package panel

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/leapstack-labs/querypad/internal/query"
	"github.com/leapstack-labs/querypad/internal/session"
	"github.com/leapstack-labs/querypad/internal/ui/features/common"
	"github.com/leapstack-labs/querypad/internal/viewer"
	"github.com/starfederation/datastar-go/datastar"
)

// Handlers provides HTTP handlers for the panel feature.
type Handlers struct {
	deps common.Deps
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps common.Deps) *Handlers {
	return &Handlers{deps: deps}
}

// PanelPage renders the page with the session's current state.
func (h *Handlers) PanelPage(w http.ResponseWriter, r *http.Request) {
	_, s := h.deps.Sessions.Resolve(w, r)

	title := "Query"
	if path, ok := s.ActiveFile(); ok {
		title = filepath.Base(path)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := Page(title, h.deps.IsDev, common.Snapshot(s)).Render(r.Context(), w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Updates is the long-lived SSE endpoint of the page. It does not send
// the initial state; that is rendered by PanelPage.
func (h *Handlers) Updates(w http.ResponseWriter, r *http.Request) {
	id, s := h.deps.Sessions.Resolve(w, r)
	sse := datastar.NewSSE(w, r)

	updates := h.deps.Notifier.Subscribe(id)
	defer h.deps.Notifier.Unsubscribe(updates)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			if err := sendPanel(sse, s); err != nil {
				_ = sse.ConsoleError(err)
				// Keep listening; the next ping re-sends the whole panel.
			}
		}
	}
}

// Run executes the query from the editor.
func (h *Handlers) Run(w http.ResponseWriter, r *http.Request) {
	signals, ok := readSignals(w, r)
	if !ok {
		return
	}
	id, s := h.deps.Sessions.Resolve(w, r)
	if signals.Query != "" {
		s.SetQuery(signals.Query)
	}

	if _, ran := s.Run(r.Context()); !ran {
		h.deps.Logger.Debug("run ignored", "running", s.Running())
	}
	h.respond(w, r, id, s)
}

// Command dispatches a keyboard command by name.
func (h *Handlers) Command(w http.ResponseWriter, r *http.Request) {
	name := session.Command(chi.URLParam(r, "name"))
	known := false
	for _, c := range session.Commands() {
		known = known || c == name
	}
	if !known {
		common.WriteError(w, http.StatusNotFound, fmt.Errorf("unknown command %q", name))
		return
	}

	signals, ok := readSignals(w, r)
	if !ok {
		return
	}
	id, s := h.deps.Sessions.Resolve(w, r)
	if signals.Query != "" {
		s.SetQuery(signals.Query)
	}
	if _, err := s.Dispatch(r.Context(), name); err != nil {
		common.WriteError(w, http.StatusBadRequest, err)
		return
	}
	h.respond(w, r, id, s)
}

// SetMode switches between SQL and scripting.
func (h *Handlers) SetMode(w http.ResponseWriter, r *http.Request) {
	signals, ok := readSignals(w, r)
	if !ok {
		return
	}
	mode, err := query.ParseMode(signals.Mode)
	if err != nil {
		common.WriteError(w, http.StatusBadRequest, err)
		return
	}

	id, s := h.deps.Sessions.Resolve(w, r)
	if err := s.SetMode(mode); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, session.ErrRunning) {
			status = http.StatusConflict
		}
		common.WriteError(w, status, err)
		return
	}
	h.respond(w, r, id, s)
}

// SetView applies sort, filter and page choices.
func (h *Handlers) SetView(w http.ResponseWriter, r *http.Request) {
	signals, ok := readSignals(w, r)
	if !ok {
		return
	}
	_, s := h.deps.Sessions.Resolve(w, r)
	s.SetViewOptions(viewer.Options{
		SortColumn: signals.SortColumn,
		Descending: signals.Descending,
		Filter:     signals.Filter,
		Page:       max(signals.Page, 0),
	})

	v := s.View()
	sse := datastar.NewSSE(w, r)
	if err := sse.PatchElementTempl(Results(v)); err != nil {
		_ = sse.ConsoleError(err)
		return
	}
	_ = sse.MarshalAndPatchSignals(map[string]any{"page": v.Page})
}

// SetPanelHeight stores the panel height and echoes the clamped value.
func (h *Handlers) SetPanelHeight(w http.ResponseWriter, r *http.Request) {
	signals, ok := readSignals(w, r)
	if !ok {
		return
	}
	_, s := h.deps.Sessions.Resolve(w, r)
	height := s.SetPanelHeight(signals.PanelHeight)

	sse := datastar.NewSSE(w, r)
	_ = sse.MarshalAndPatchSignals(map[string]any{"panelHeight": height})
}

// OpenFile makes a file on the server's disk the active file.
func (h *Handlers) OpenFile(w http.ResponseWriter, r *http.Request) {
	signals, ok := readSignals(w, r)
	if !ok {
		return
	}
	if signals.FilePath == "" {
		common.WriteError(w, http.StatusBadRequest, errors.New("filePath is required"))
		return
	}
	path, err := filepath.Abs(signals.FilePath)
	if err != nil {
		common.WriteError(w, http.StatusBadRequest, err)
		return
	}
	content, err := os.ReadFile(path)
	if err != nil {
		common.WriteError(w, http.StatusNotFound, err)
		return
	}

	id, s := h.deps.Sessions.Resolve(w, r)
	s.SetActiveFile(path, content)
	h.deps.FileOpened(path)
	h.respond(w, r, id, s)
}

// AddBookmark bookmarks the current query.
func (h *Handlers) AddBookmark(w http.ResponseWriter, r *http.Request) {
	signals, ok := readSignals(w, r)
	if !ok {
		return
	}
	id, s := h.deps.Sessions.Resolve(w, r)
	if signals.Query != "" {
		s.SetQuery(signals.Query)
	}
	if _, err := s.AddBookmark(signals.BookmarkName); err != nil {
		common.WriteError(w, http.StatusBadRequest, err)
		return
	}
	h.respond(w, r, id, s)
}

// SelectBookmark restores a bookmark into the editor.
func (h *Handlers) SelectBookmark(w http.ResponseWriter, r *http.Request) {
	id, s := h.deps.Sessions.Resolve(w, r)
	if err := s.SelectBookmark(chi.URLParam(r, "id")); err != nil {
		writeSessionError(w, err)
		return
	}
	h.respond(w, r, id, s)
}

// RemoveBookmark deletes a bookmark.
func (h *Handlers) RemoveBookmark(w http.ResponseWriter, r *http.Request) {
	id, s := h.deps.Sessions.Resolve(w, r)
	if err := s.RemoveBookmark(chi.URLParam(r, "id")); err != nil {
		writeSessionError(w, err)
		return
	}
	h.respond(w, r, id, s)
}

// SelectHistory restores a history entry into the editor.
func (h *Handlers) SelectHistory(w http.ResponseWriter, r *http.Request) {
	id, s := h.deps.Sessions.Resolve(w, r)
	if err := s.SelectHistory(chi.URLParam(r, "id")); err != nil {
		writeSessionError(w, err)
		return
	}
	h.respond(w, r, id, s)
}

// respond patches the caller's panel and signals, then pings the other
// tabs of the same browser.
func (h *Handlers) respond(w http.ResponseWriter, r *http.Request, id string, s *session.Session) {
	sse := datastar.NewSSE(w, r)
	if err := sendPanel(sse, s); err != nil {
		_ = sse.ConsoleError(err)
	}
	h.deps.Notifier.Notify(id)
}

func sendPanel(sse *datastar.ServerSentEventGenerator, s *session.Session) error {
	st := common.Snapshot(s)
	if err := sse.PatchElementTempl(Panel(st)); err != nil {
		return err
	}
	return sse.MarshalAndPatchSignals(st.ClientSignals())
}

// readSignals must run before the SSE generator is created, which
// consumes the request body.
func readSignals(w http.ResponseWriter, r *http.Request) (common.Signals, bool) {
	var signals common.Signals
	if r.ContentLength == 0 && r.Method != http.MethodGet {
		return signals, true
	}
	if err := datastar.ReadSignals(r, &signals); err != nil {
		common.WriteError(w, http.StatusBadRequest, fmt.Errorf("failed to read signals: %w", err))
		return signals, false
	}
	return signals, true
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		common.WriteError(w, http.StatusNotFound, err)
	case errors.Is(err, session.ErrRunning):
		common.WriteError(w, http.StatusConflict, err)
	default:
		common.WriteError(w, http.StatusBadRequest, err)
	}
}
