package viewer

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Format is a text rendering of a view for terminal hosts.
type Format string

// Text formats.
const (
	FormatTable    Format = "table"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
)

// ParseFormat maps an output flag value to a format. Unknown values render
// as a table.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "md", "markdown":
		return FormatMarkdown
	case "json":
		return FormatJSON
	case "csv":
		return FormatCSV
	default:
		return FormatTable
	}
}

// Render writes v to w. Tables honour the view's page window except for
// json and csv, which write every matched row.
func Render(w io.Writer, v View, format Format) error {
	if format == FormatJSON {
		return renderJSON(w, v)
	}

	if v.Stdout != "" && v.Display != DisplayText {
		if _, err := io.WriteString(w, strings.TrimRight(v.Stdout, "\n")+"\n"); err != nil {
			return err
		}
	}

	switch v.Display {
	case DisplayEmpty:
		return nil
	case DisplayError:
		return RenderError(w, v)
	case DisplayImage:
		n := base64.StdEncoding.DecodedLen(len(v.Image))
		_, err := fmt.Fprintf(w, "[image/png, ~%d bytes; use --format json or the web panel to view]\n", n)
		return err
	case DisplayJSON:
		_, err := fmt.Fprintln(w, v.JSON)
		return err
	case DisplayText:
		if v.Text == "" {
			return nil
		}
		_, err := fmt.Fprintln(w, strings.TrimRight(v.Text, "\n"))
		return err
	}

	switch format {
	case FormatCSV:
		return ExportCSV(w, v)
	case FormatMarkdown:
		return RenderMarkdown(w, v)
	default:
		return RenderTable(w, v)
	}
}

// RenderTable draws the current page with go-pretty.
func RenderTable(w io.Writer, v View) error {
	if len(v.Rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(v.Columns))
	for i, col := range v.Columns {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, rec := range v.Rows {
		row := make(table.Row, len(v.Columns))
		for i, col := range v.Columns {
			row[i] = FormatValue(rec[col])
		}
		t.AppendRow(row)
	}

	t.Render()
	_, _ = fmt.Fprintln(w, footer(v))
	return nil
}

// RenderMarkdown writes the current page as a pipe table.
func RenderMarkdown(w io.Writer, v View) error {
	if len(v.Rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(escapeCells(v.Columns), " | "))
	seps := make([]string, len(v.Columns))
	for i := range seps {
		seps[i] = "---"
	}
	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(seps, " | "))

	values := make([]string, len(v.Columns))
	for _, rec := range v.Rows {
		for i, col := range v.Columns {
			values[i] = FormatValue(rec[col])
		}
		_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(escapeCells(values), " | "))
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, footer(v))
	return nil
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		c = strings.ReplaceAll(c, "|", `\|`)
		out[i] = strings.ReplaceAll(c, "\n", " ")
	}
	return out
}

func footer(v View) string {
	s := "(" + v.Summary() + ")"
	if v.PageCount > 1 {
		s += fmt.Sprintf(" page %d/%d", v.Page+1, v.PageCount)
	}
	return s
}

// RenderError draws the error panel. Colors apply only when w supports them.
func RenderError(w io.Writer, v View) error {
	r := lipgloss.NewRenderer(w)
	title := r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")).Render("Error")
	meta := r.NewStyle().Faint(true).Render(fmt.Sprintf("%s · %s", v.QueryMode.Label(), formatMillis(v.ElapsedMs)))
	panel := r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("9")).
		Padding(0, 1).
		Render(title + "  " + meta + "\n" + v.Error)
	_, err := fmt.Fprintln(w, panel)
	return err
}

type jsonOutput struct {
	Mode      string          `json:"mode"`
	Display   string          `json:"display"`
	Success   bool            `json:"success"`
	ElapsedMs float64         `json:"executionTimeMs"`
	Error     string          `json:"error,omitempty"`
	Stdout    string          `json:"stdout,omitempty"`
	Columns   []string        `json:"columns,omitempty"`
	Rows      json.RawMessage `json:"rows,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	Image     string          `json:"image,omitempty"`
	Text      string          `json:"text,omitempty"`
}

func renderJSON(w io.Writer, v View) error {
	out := jsonOutput{
		Mode:      string(v.QueryMode),
		Display:   string(v.Display),
		Success:   v.Display != DisplayError && v.Display != DisplayEmpty,
		ElapsedMs: v.ElapsedMs,
		Error:     v.Error,
		Stdout:    v.Stdout,
		Image:     v.Image,
		Text:      v.Text,
	}

	switch v.Display {
	case DisplayTable:
		var buf strings.Builder
		if err := ExportJSON(&buf, v); err != nil {
			return err
		}
		out.Columns = v.Columns
		out.Rows = json.RawMessage(buf.String())
	case DisplayJSON:
		out.Value = json.RawMessage(v.JSON)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
