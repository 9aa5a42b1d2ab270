package session

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/querypad/internal/query"
)

// MaxHistory is the number of successful runs remembered per session.
const MaxHistory = 50

// HistoryItem records a successful run.
type HistoryItem struct {
	ID        string     `json:"id"`
	Query     string     `json:"query"`
	Mode      query.Mode `json:"mode"`
	Timestamp time.Time  `json:"timestamp"`
	FilePath  string     `json:"filePath"`
}

// Bookmark is a named query saved by the user.
type Bookmark struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Query string     `json:"query"`
	Mode  query.Mode `json:"mode"`
}

func (s *Session) recordLocked(text string, mode query.Mode, path string) {
	s.history = append(s.history, HistoryItem{
		ID:        uuid.NewString(),
		Query:     text,
		Mode:      mode,
		Timestamp: s.now(),
		FilePath:  path,
	})
	if over := len(s.history) - MaxHistory; over > 0 {
		s.history = slices.Delete(s.history, 0, over)
	}
}

// History returns the remembered runs, newest first.
func (s *Session) History() []HistoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := slices.Clone(s.history)
	slices.Reverse(out)
	return out
}

// SelectHistory restores a past run's query and mode.
func (s *Session) SelectHistory(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.history, func(h HistoryItem) bool { return h.ID == id })
	if i < 0 {
		return fmt.Errorf("history item %s: %w", id, ErrNotFound)
	}
	return s.restoreLocked(s.history[i].Query, s.history[i].Mode)
}

// AddBookmark saves the current query under name.
func (s *Session) AddBookmark(name string) (Bookmark, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Bookmark{}, errors.New("bookmark name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(s.text) == "" {
		return Bookmark{}, errors.New("nothing to bookmark: query is empty")
	}

	b := Bookmark{ID: uuid.NewString(), Name: name, Query: s.text, Mode: s.mode}
	s.bookmarks = append(s.bookmarks, b)
	return b, nil
}

// Bookmarks returns the saved bookmarks in creation order.
func (s *Session) Bookmarks() []Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.bookmarks)
}

// SelectBookmark restores a bookmark's query and mode.
func (s *Session) SelectBookmark(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.bookmarks, func(b Bookmark) bool { return b.ID == id })
	if i < 0 {
		return fmt.Errorf("bookmark %s: %w", id, ErrNotFound)
	}
	return s.restoreLocked(s.bookmarks[i].Query, s.bookmarks[i].Mode)
}

// RemoveBookmark deletes a bookmark.
func (s *Session) RemoveBookmark(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.bookmarks, func(b Bookmark) bool { return b.ID == id })
	if i < 0 {
		return fmt.Errorf("bookmark %s: %w", id, ErrNotFound)
	}
	s.bookmarks = slices.Delete(s.bookmarks, i, i+1)
	return nil
}

func (s *Session) restoreLocked(text string, mode query.Mode) error {
	if s.running {
		return ErrRunning
	}
	s.text, s.mode = text, mode
	return nil
}
