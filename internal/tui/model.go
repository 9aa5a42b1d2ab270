// Package tui is the terminal host: a query editor over a collapsible
// results panel, driven by the same session as the other hosts.
package tui

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/leapstack-labs/querypad/internal/query"
	"github.com/leapstack-labs/querypad/internal/session"
	"github.com/leapstack-labs/querypad/internal/viewer"
)

const (
	editorHeight = 6
	minPanelRows = 5
	// pixelsPerRow maps the session's panel height onto terminal rows.
	pixelsPerRow = 20
	maxCellWidth = 32
)

type focus int

const (
	focusEditor focus = iota
	focusResults
)

// resultMsg carries a finished run back to the update loop.
type resultMsg struct {
	res *query.Result
	err error
}

// Model is the bubbletea model of the panel.
type Model struct {
	ctx     context.Context
	session *session.Session
	keys    keyMap
	styles  styles

	editor  textarea.Model
	table   table.Model
	output  viewport.Model
	spinner spinner.Model
	help    help.Model

	focus    focus
	running  bool
	status   string
	histPos  int
	width    int
	height   int
	quitting bool
}

// New creates the model. The session should already have an active file.
func New(ctx context.Context, s *session.Session) Model {
	ta := textarea.New()
	ta.Placeholder = "SELECT * FROM data LIMIT 100"
	ta.ShowLineNumbers = true
	ta.SetHeight(editorHeight)
	ta.SetValue(s.Query())
	ta.Focus()

	tbl := table.New(table.WithFocused(false))
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:     ctx,
		session: s,
		keys:    defaultKeyMap(),
		styles:  newStyles(),
		editor:  ta,
		table:   tbl,
		output:  viewport.New(80, minPanelRows),
		spinner: sp,
		help:    help.New(),
		histPos: -1,
		width:   80,
		height:  24,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case resultMsg:
		m.running = false
		if msg.err != nil {
			m.status = msg.err.Error()
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
	}

	var cmd tea.Cmd
	if m.focus == focusResults {
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}
	m.editor, cmd = m.editor.Update(msg)
	m.session.SetQuery(m.editor.Value())
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return tea.Quit, true

	case key.Matches(msg, m.keys.TogglePanel):
		_, _ = m.session.Dispatch(m.ctx, session.CommandTogglePanel)
		if !m.session.PanelOpen() && m.focus == focusResults {
			m.toggleFocus()
		}
		m.syncEditor()
		m.resize()
		return nil, true

	case key.Matches(msg, m.keys.Run):
		return m.dispatch(session.CommandRunQuery), true

	case key.Matches(msg, m.keys.RunAndPin):
		return m.dispatch(session.CommandRunAndPin), true

	case key.Matches(msg, m.keys.SwitchMode):
		next := query.ModeScripting
		if m.session.Mode() == query.ModeScripting {
			next = query.ModeStructured
		}
		if err := m.session.SetMode(next); err != nil {
			m.status = err.Error()
			return nil, true
		}
		m.syncEditor()
		m.status = "mode: " + next.Label()
		return nil, true

	case key.Matches(msg, m.keys.Focus):
		m.toggleFocus()
		return nil, true

	case key.Matches(msg, m.keys.Sort):
		m.cycleSort()
		return nil, true

	case key.Matches(msg, m.keys.NextPage):
		m.turnPage(1)
		return nil, true

	case key.Matches(msg, m.keys.PrevPage):
		m.turnPage(-1)
		return nil, true

	case key.Matches(msg, m.keys.Bookmark):
		b, err := m.session.AddBookmark(bookmarkName(m.session.Query()))
		if err != nil {
			m.status = err.Error()
		} else {
			m.status = "bookmarked " + b.Name
		}
		return nil, true

	case key.Matches(msg, m.keys.History):
		m.recallHistory()
		return nil, true
	}
	return nil, false
}

// dispatch runs cmd off the update loop. The session ignores a run while
// another one is in flight.
func (m *Model) dispatch(cmd session.Command) tea.Cmd {
	if m.running {
		return nil
	}
	m.session.SetQuery(m.editor.Value())
	if cmd == session.CommandRunAndPin {
		// Opening the panel may consume a queued action; show it before running.
		m.session.OpenPanel()
		m.syncEditor()
		m.resize()
	}
	m.running = true
	m.status = ""

	ctx, s := m.ctx, m.session
	run := func() tea.Msg {
		res, err := s.Dispatch(ctx, cmd)
		return resultMsg{res: res, err: err}
	}
	return tea.Batch(run, m.spinner.Tick)
}

func (m *Model) syncEditor() {
	if m.editor.Value() != m.session.Query() {
		m.editor.SetValue(m.session.Query())
	}
}

func (m *Model) toggleFocus() {
	if m.focus == focusEditor && m.session.PanelOpen() {
		m.focus = focusResults
		m.editor.Blur()
		m.table.Focus()
		return
	}
	m.focus = focusEditor
	m.table.Blur()
	m.editor.Focus()
}

func (m *Model) cycleSort() {
	v := m.session.View()
	if v.Display != viewer.DisplayTable || len(v.Columns) == 0 {
		return
	}
	opts := m.session.ViewOptions()
	idx := -1
	for i, c := range v.Columns {
		if c == opts.SortColumn {
			idx = i
		}
	}
	switch {
	case idx >= 0 && !opts.Descending:
		opts.Descending = true
	case idx+1 < len(v.Columns):
		opts.SortColumn, opts.Descending = v.Columns[idx+1], false
	default:
		opts.SortColumn, opts.Descending = "", false
	}
	m.session.SetViewOptions(opts)
	m.refresh()
}

func (m *Model) turnPage(delta int) {
	opts := m.session.ViewOptions()
	opts.Page = max(opts.Page+delta, 0)
	m.session.SetViewOptions(opts)
	if v := m.session.View(); v.Page != opts.Page {
		opts.Page = v.Page
		m.session.SetViewOptions(opts)
	}
	m.refresh()
}

func (m *Model) recallHistory() {
	items := m.session.History()
	if len(items) == 0 {
		m.status = "no history yet"
		return
	}
	m.histPos = (m.histPos + 1) % len(items)
	if err := m.session.SelectHistory(items[m.histPos].ID); err != nil {
		m.status = err.Error()
		return
	}
	m.syncEditor()
	m.status = fmt.Sprintf("history %d/%d", m.histPos+1, len(items))
}

func bookmarkName(q string) string {
	name := strings.Join(strings.Fields(q), " ")
	if len(name) > 24 {
		name = name[:24]
	}
	return name
}

// panelRows converts the session's panel height to terminal rows that fit
// below the editor.
func (m *Model) panelRows() int {
	rows := m.session.PanelHeight() / pixelsPerRow
	avail := m.height - editorHeight - 5
	return max(min(rows, avail), minPanelRows)
}

func (m *Model) resize() {
	m.editor.SetWidth(m.width)
	rows := m.panelRows()
	m.table.SetHeight(rows)
	m.table.SetWidth(m.width)
	m.output.Width = m.width
	m.output.Height = rows
	m.help.Width = m.width
}

// refresh rebuilds the result widgets from the session's current view.
func (m *Model) refresh() {
	v := m.session.View()
	if v.Display == viewer.DisplayTable {
		m.table.SetRows(nil)
		m.table.SetColumns(tableColumns(v))
		m.table.SetRows(tableRows(v))
		return
	}
	m.output.SetContent(m.textContent(v))
	m.output.GotoTop()
}

func tableColumns(v viewer.View) []table.Column {
	cols := make([]table.Column, len(v.Columns))
	for i, c := range v.Columns {
		width := len(c)
		for _, row := range v.Rows {
			width = max(width, len(viewer.FormatValue(row[c])))
		}
		title := c
		if c == v.SortColumn {
			if v.Descending {
				title += " ▼"
			} else {
				title += " ▲"
			}
		}
		cols[i] = table.Column{Title: title, Width: min(max(width, len(title)), maxCellWidth)}
	}
	return cols
}

func tableRows(v viewer.View) []table.Row {
	rows := make([]table.Row, len(v.Rows))
	for i, r := range v.Rows {
		row := make(table.Row, len(v.Columns))
		for j, c := range v.Columns {
			row[j] = viewer.FormatValue(r[c])
		}
		rows[i] = row
	}
	return rows
}

func (m *Model) textContent(v viewer.View) string {
	switch v.Display {
	case viewer.DisplayError:
		var buf bytes.Buffer
		_ = viewer.RenderError(&buf, v)
		return v.Stdout + buf.String()
	case viewer.DisplayImage:
		return v.Stdout + fmt.Sprintf("[image/png, ~%d bytes; open the web panel to view]", len(v.Image)*3/4)
	case viewer.DisplayJSON:
		return v.Stdout + v.JSON
	case viewer.DisplayText:
		return v.Text
	default:
		return m.styles.Muted.Render("Run a query to see results (ctrl+r).")
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n")
	b.WriteString(m.editor.View())
	b.WriteString("\n")

	if m.session.PanelOpen() {
		v := m.session.View()
		if v.Display == viewer.DisplayTable {
			b.WriteString(m.styles.Panel.Render(m.table.View()))
		} else {
			b.WriteString(m.styles.Panel.Render(m.output.View()))
		}
		b.WriteString("\n")
		b.WriteString(m.styles.Muted.Render(m.summary(v)))
		b.WriteString("\n")
	}

	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) header() string {
	path, ok := m.session.ActiveFile()
	if !ok {
		path = "no file"
	}
	mode := m.styles.Mode.Render(m.session.Mode().Label())
	line := lipgloss.JoinHorizontal(lipgloss.Top, mode, " ", m.styles.Title.Render(path))
	switch {
	case m.running:
		line += " " + m.spinner.View() + " running"
	case m.status != "":
		line += " " + m.styles.Muted.Render(m.status)
	}
	return line
}

func (m Model) summary(v viewer.View) string {
	s := v.Summary()
	if v.Display == viewer.DisplayTable && v.PageCount > 1 {
		s += fmt.Sprintf(" · page %d/%d", v.Page+1, v.PageCount)
	}
	return s
}
