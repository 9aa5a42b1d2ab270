package query

import (
	"time"
)

// ReturnKind classifies a scripting return value.
type ReturnKind string

// Closed set of return value kinds produced by the scripting converter.
const (
	ReturnNone    ReturnKind = ""
	ReturnTabular ReturnKind = "tabular"
	ReturnImage   ReturnKind = "image"
	ReturnScalar  ReturnKind = "scalar"
	ReturnRaw     ReturnKind = "raw"
)

// Return is the converted value of a scripting run.
type Return struct {
	Kind ReturnKind
	// Value is JSON-like: nil, bool, int64, float64, string, []any, map[string]any
	// or, for tabular values, []map[string]any.
	Value   any
	Columns []string
	Rows    []map[string]any
	// Image is a base64 encoded PNG.
	Image string
}

// Result is the normalized outcome of one run. Exactly one of Error or a
// payload is populated; use the constructors below to keep it that way.
type Result struct {
	Mode            Mode    `json:"mode"`
	Success         bool    `json:"success"`
	ExecutionTimeMs float64 `json:"executionTimeMs"`
	Error           string  `json:"error,omitempty"`

	Rows    []map[string]any `json:"rows,omitempty"`
	Columns []string         `json:"columns,omitempty"`

	Stdout        string     `json:"stdout,omitempty"`
	ReturnValue   any        `json:"returnValue,omitempty"`
	ReturnKind    ReturnKind `json:"returnKind,omitempty"`
	RenderedImage string     `json:"renderedImage,omitempty"`
}

// Failure builds a failed result carrying only the error message.
func Failure(mode Mode, msg string, elapsed time.Duration) *Result {
	if msg == "" {
		msg = "unknown error"
	}
	return &Result{
		Mode:            mode,
		Success:         false,
		Error:           msg,
		ExecutionTimeMs: Millis(elapsed),
	}
}

// Structured builds a successful structured result.
func Structured(columns []string, rows []map[string]any, elapsed time.Duration) *Result {
	if columns == nil {
		columns = []string{}
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return &Result{
		Mode:            ModeStructured,
		Success:         true,
		Columns:         columns,
		Rows:            rows,
		ExecutionTimeMs: Millis(elapsed),
	}
}

// Scripted builds a successful scripting result.
func Scripted(stdout string, ret Return, elapsed time.Duration) *Result {
	res := &Result{
		Mode:            ModeScripting,
		Success:         true,
		Stdout:          stdout,
		ReturnKind:      ret.Kind,
		ExecutionTimeMs: Millis(elapsed),
	}
	switch ret.Kind {
	case ReturnImage:
		res.RenderedImage = ret.Image
	case ReturnTabular:
		res.Columns = ret.Columns
		res.Rows = ret.Rows
		res.ReturnValue = ret.Rows
	case ReturnScalar, ReturnRaw:
		res.ReturnValue = ret.Value
	}
	return res
}

// Elapsed returns the execution time as a duration.
func (r *Result) Elapsed() time.Duration {
	return time.Duration(r.ExecutionTimeMs * float64(time.Millisecond))
}

// IsTabular reports whether the result carries rows with known columns.
func (r *Result) IsTabular() bool {
	return r != nil && r.Success && r.Columns != nil && r.Rows != nil
}

// RowCount returns the number of rows in the payload.
func (r *Result) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}
