package common

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/leapstack-labs/querypad/internal/session"
)

// Snapshot captures the state of s for rendering.
func Snapshot(s *session.Session) SessionState {
	path, _ := s.ActiveFile()
	v := s.View()
	return SessionState{
		FilePath:    path,
		Query:       s.Query(),
		Mode:        s.Mode(),
		Running:     s.Running(),
		PanelOpen:   s.PanelOpen(),
		PanelHeight: s.PanelHeight(),
		Pending:     s.HasPendingAction(),
		History:     s.History(),
		Bookmarks:   s.Bookmarks(),
		Options:     s.ViewOptions(),
		Summary:     v.Summary(),
		Display:     v.Display,
		View:        v,
	}
}

// ClientSignals returns the signals the server owns after a state change.
func (st SessionState) ClientSignals() map[string]any {
	return map[string]any{
		"query":       st.Query,
		"mode":        string(st.Mode),
		"filePath":    st.FilePath,
		"panelHeight": st.PanelHeight,
		"sortColumn":  st.Options.SortColumn,
		"descending":  st.Options.Descending,
		"filter":      st.Options.Filter,
		"page":        st.View.Page,
	}
}

// Itoa converts an integer to a string.
func Itoa(n int) string {
	return strconv.Itoa(n)
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteJSON(w, status, map[string]string{"error": err.Error()})
}
