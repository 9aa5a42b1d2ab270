// Package viewer turns a normalized result into something a host can show:
// a display mode, a sorted, filtered and paginated row window, and exports.
// It holds no state of its own; every call derives a View from a result and
// the caller's options.
package viewer

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/leapstack-labs/querypad/internal/query"
	"golang.org/x/text/cases"
)

// PageSize is the number of rows shown per page.
const PageSize = 100

// DisplayMode selects how a result is presented.
type DisplayMode string

// Display modes.
const (
	DisplayEmpty DisplayMode = "empty"
	DisplayError DisplayMode = "error"
	DisplayTable DisplayMode = "table"
	DisplayImage DisplayMode = "image"
	DisplayJSON  DisplayMode = "json"
	DisplayText  DisplayMode = "text"
)

// Options are the user's presentation choices for a result.
type Options struct {
	SortColumn string `json:"sortColumn"`
	Descending bool   `json:"descending"`
	Filter     string `json:"filter"`
	Page       int    `json:"page"`
}

// View is a derived, render-ready projection of a result.
type View struct {
	Display   DisplayMode
	QueryMode query.Mode
	ElapsedMs float64
	Error     string
	Stdout    string

	Columns []string
	// Rows is the current page of Matched.
	Rows []map[string]any
	// Matched holds every row passing the filter, in display order.
	Matched   []map[string]any
	TotalRows int

	Page       int
	PageCount  int
	SortColumn string
	Descending bool
	Filter     string

	Image string
	// JSON is the indented return value for json display.
	JSON string
	// Text is the raw return value or, failing that, stdout.
	Text string
}

// Build derives the view for res. A nil result yields the empty view.
func Build(res *query.Result, opts Options) View {
	v := View{Display: DisplayEmpty, PageCount: 1}
	if res == nil {
		return v
	}

	v.QueryMode = res.Mode
	v.ElapsedMs = res.ExecutionTimeMs
	v.Stdout = res.Stdout

	switch {
	case !res.Success:
		v.Display = DisplayError
		v.Error = res.Error
	case res.RenderedImage != "":
		v.Display = DisplayImage
		v.Image = res.RenderedImage
	case res.IsTabular():
		v.Display = DisplayTable
		buildTable(&v, res, opts)
	case res.ReturnKind == query.ReturnRaw:
		v.Display = DisplayText
		v.Text, _ = res.ReturnValue.(string)
	case res.ReturnValue != nil:
		v.Display = DisplayJSON
		v.JSON = indentJSON(res.ReturnValue)
	default:
		v.Display = DisplayText
		v.Text = res.Stdout
	}
	return v
}

func buildTable(v *View, res *query.Result, opts Options) {
	v.Columns = res.Columns
	v.TotalRows = len(res.Rows)
	v.Filter = opts.Filter

	matched := filterRows(res.Rows, res.Columns, opts.Filter)
	if opts.SortColumn != "" && hasColumn(res.Columns, opts.SortColumn) {
		v.SortColumn = opts.SortColumn
		v.Descending = opts.Descending
		sortRows(matched, opts.SortColumn, opts.Descending)
	}
	v.Matched = matched

	v.PageCount = max(1, (len(matched)+PageSize-1)/PageSize)
	v.Page = max(0, min(opts.Page, v.PageCount-1))
	start := v.Page * PageSize
	end := min(start+PageSize, len(matched))
	v.Rows = matched[start:end]
}

func hasColumn(cols []string, name string) bool {
	for _, c := range cols {
		if c == name {
			return true
		}
	}
	return false
}

// filterRows keeps rows where any cell contains needle, ignoring case.
// The input slice is never modified.
func filterRows(rows []map[string]any, cols []string, needle string) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	if strings.TrimSpace(needle) == "" {
		return append(out, rows...)
	}

	fold := cases.Fold()
	needle = fold.String(needle)
	for _, row := range rows {
		for _, col := range cols {
			if strings.Contains(fold.String(FormatValue(row[col])), needle) {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

// sortRows orders rows in place by one column, stable across equal keys.
func sortRows(rows []map[string]any, col string, desc bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		if desc {
			return Compare(rows[j][col], rows[i][col]) < 0
		}
		return Compare(rows[i][col], rows[j][col]) < 0
	})
}

func indentJSON(v any) string {
	b, err := json.MarshalIndent(sanitize(v), "", "  ")
	if err != nil {
		return FormatValue(v)
	}
	return string(b)
}

// Summary is a one-line description of the view for status bars.
func (v View) Summary() string {
	switch v.Display {
	case DisplayTable:
		if v.Filter != "" {
			return pluralRows(len(v.Matched)) + " of " + pluralRows(v.TotalRows) + " · " + formatMillis(v.ElapsedMs)
		}
		return pluralRows(v.TotalRows) + " · " + formatMillis(v.ElapsedMs)
	case DisplayError:
		return "error · " + formatMillis(v.ElapsedMs)
	case DisplayEmpty:
		return "no result"
	default:
		return string(v.Display) + " · " + formatMillis(v.ElapsedMs)
	}
}
