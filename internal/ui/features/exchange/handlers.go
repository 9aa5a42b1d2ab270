// Package exchange moves data in and out of the panel: queued actions
// from other tools, result exports and JSON state.
package exchange

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/leapstack-labs/querypad/internal/ui/features/common"
	"github.com/leapstack-labs/querypad/internal/viewer"
)

// maxActionBytes bounds the body of a queued action.
const maxActionBytes = 1 << 20

// ActionRequest is the body of POST /api/actions.
type ActionRequest struct {
	Language string `json:"language"`
	Query    string `json:"query"`
}

// Handlers provides HTTP handlers for the exchange feature.
type Handlers struct {
	deps common.Deps
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps common.Deps) *Handlers {
	return &Handlers{deps: deps}
}

// QueueAction stores a query for the caller's session. It is applied the
// next time the panel opens or the active file changes.
func (h *Handlers) QueueAction(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxActionBytes))
	if err := dec.Decode(&req); err != nil {
		common.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid action: %w", err))
		return
	}

	id, s := h.deps.Sessions.Resolve(w, r)
	if err := s.QueueAction(req.Language, req.Query); err != nil {
		common.WriteError(w, http.StatusBadRequest, err)
		return
	}
	h.deps.Logger.Debug("action queued", "language", req.Language)
	h.deps.Notifier.Notify(id)

	common.WriteJSON(w, http.StatusAccepted, map[string]bool{"pending": true})
}

// ExportCSV downloads the filtered, sorted rows as CSV.
func (h *Handlers) ExportCSV(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "csv", "text/csv; charset=utf-8", viewer.ExportCSV)
}

// ExportJSON downloads the filtered, sorted rows as a JSON array.
func (h *Handlers) ExportJSON(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "json", "application/json", viewer.ExportJSON)
}

func (h *Handlers) export(w http.ResponseWriter, r *http.Request, ext, contentType string, write func(io.Writer, viewer.View) error) {
	_, s := h.deps.Sessions.Resolve(w, r)
	v := s.View()
	if v.Display != viewer.DisplayTable {
		common.WriteError(w, http.StatusConflict, viewer.ErrNotTabular)
		return
	}

	path, _ := s.ActiveFile()
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", viewer.ExportFilename(path, ext)))
	if err := write(w, v); err != nil {
		// Headers are out; all we can do is log.
		h.deps.Logger.Warn("export failed", "format", ext, "error", err)
	}
}

// Image serves the rendered figure of the last run as a PNG.
func (h *Handlers) Image(w http.ResponseWriter, r *http.Request) {
	_, s := h.deps.Sessions.Resolve(w, r)
	v := s.View()
	if v.Display != viewer.DisplayImage {
		common.WriteError(w, http.StatusNotFound, errors.New("last result has no image"))
		return
	}

	png, err := base64.StdEncoding.DecodeString(v.Image)
	if err != nil {
		common.WriteError(w, http.StatusInternalServerError, fmt.Errorf("decode image: %w", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// State returns the caller's session as JSON.
func (h *Handlers) State(w http.ResponseWriter, r *http.Request) {
	_, s := h.deps.Sessions.Resolve(w, r)
	common.WriteJSON(w, http.StatusOK, common.Snapshot(s))
}
