// Package common provides shared types and utilities for UI features.
package common

import (
	"log/slog"

	"github.com/leapstack-labs/querypad/internal/query"
	"github.com/leapstack-labs/querypad/internal/session"
	"github.com/leapstack-labs/querypad/internal/ui/browser"
	"github.com/leapstack-labs/querypad/internal/ui/notifier"
	"github.com/leapstack-labs/querypad/internal/viewer"
)

// Deps holds what every feature needs.
type Deps struct {
	Sessions *browser.Registry
	Notifier *notifier.Notifier
	Logger   *slog.Logger
	IsDev    bool

	// Opened is told about every file a session makes active, so the
	// server can watch it. May be nil.
	Opened func(path string)
}

// FileOpened reports path to the Opened hook, if any.
func (d Deps) FileOpened(path string) {
	if d.Opened != nil {
		d.Opened(path)
	}
}

// SessionState is the render-ready snapshot of one session.
type SessionState struct {
	FilePath    string                `json:"filePath"`
	Query       string                `json:"query"`
	Mode        query.Mode            `json:"mode"`
	Running     bool                  `json:"running"`
	PanelOpen   bool                  `json:"panelOpen"`
	PanelHeight int                   `json:"panelHeight"`
	Pending     bool                  `json:"pendingAction"`
	History     []session.HistoryItem `json:"history"`
	Bookmarks   []session.Bookmark    `json:"bookmarks"`
	Options     viewer.Options        `json:"viewOptions"`
	Summary     string                `json:"summary"`
	Display     viewer.DisplayMode    `json:"display"`

	View viewer.View `json:"-"`
}

// Signals mirrors the client-side signal store of the panel page.
type Signals struct {
	Query        string `json:"query"`
	Mode         string `json:"mode"`
	FilePath     string `json:"filePath"`
	SortColumn   string `json:"sortColumn"`
	Descending   bool   `json:"descending"`
	Filter       string `json:"filter"`
	Page         int    `json:"page"`
	PanelHeight  int    `json:"panelHeight"`
	BookmarkName string `json:"bookmarkName"`
}
