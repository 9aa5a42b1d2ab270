// Package query defines the normalized result model shared by the structured
// and scripting backends, along with the per-run execution context.
package query

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Mode selects which backend executes a request.
type Mode string

// Supported execution modes.
const (
	ModeStructured Mode = "structured"
	ModeScripting  Mode = "scripting"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeStructured || m == ModeScripting
}

// Label returns a short human-readable name for the mode.
func (m Mode) Label() string {
	switch m {
	case ModeStructured:
		return "SQL"
	case ModeScripting:
		return "Starlark"
	default:
		return string(m)
	}
}

// ParseMode parses a mode name. Engine and language aliases are accepted
// so that external producers can hand over their own vocabulary.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "structured", "sql", "duckdb":
		return ModeStructured, nil
	case "scripting", "script", "starlark", "python", "py":
		return ModeScripting, nil
	default:
		return "", fmt.Errorf("unknown query mode %q", s)
	}
}

// ExecutionContext is an immutable snapshot of the active file taken when a
// run starts. It is never shared between runs.
type ExecutionContext struct {
	FilePath      string
	FileContent   []byte
	FileExtension string
}

// NewExecutionContext snapshots the given file. The content is copied so later
// edits to the caller's buffer cannot leak into a running query.
func NewExecutionContext(path string, content []byte) ExecutionContext {
	buf := make([]byte, len(content))
	copy(buf, content)
	return ExecutionContext{
		FilePath:      path,
		FileContent:   buf,
		FileExtension: ExtensionOf(path),
	}
}

// ExtensionOf returns the lower-case extension of path without the dot.
func ExtensionOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Content returns the file content as a string.
func (ec ExecutionContext) Content() string {
	return string(ec.FileContent)
}

// Request is a user-authored query bound to a mode.
type Request struct {
	Text string `json:"text"`
	Mode Mode   `json:"mode"`
}

// SaveFunc receives content written back by user code.
type SaveFunc func(content string)

// StructuredRunner executes SQL against the active file.
type StructuredRunner interface {
	Execute(ctx context.Context, query string, ec ExecutionContext) *Result
}

// ScriptRunner executes a scripting snippet against the active file.
// onSave may be nil.
type ScriptRunner interface {
	Execute(ctx context.Context, code string, ec ExecutionContext, onSave SaveFunc) *Result
}

// Millis converts a duration to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
