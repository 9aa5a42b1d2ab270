package tui

import (
	"context"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/leapstack-labs/querypad/internal/query"
	"github.com/leapstack-labs/querypad/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rowsRunner struct {
	n    int
	fail bool
}

func (r rowsRunner) Execute(_ context.Context, q string, _ query.ExecutionContext) *query.Result {
	if r.fail {
		return query.Failure(query.ModeStructured, "Parser Error: near "+q, time.Millisecond)
	}
	rows := make([]map[string]any, r.n)
	for i := range rows {
		rows[i] = map[string]any{"id": int64(i), "name": fmt.Sprintf("row-%03d", i)}
	}
	return query.Structured([]string{"id", "name"}, rows, time.Millisecond)
}

type echoScript struct{}

func (echoScript) Execute(_ context.Context, code string, _ query.ExecutionContext, _ query.SaveFunc) *query.Result {
	return query.Scripted(code+"\n", query.Return{}, time.Millisecond)
}

func newModel(t *testing.T, runner rowsRunner) (Model, *session.Session) {
	t.Helper()
	s := session.New(session.Config{Structured: runner, Scripting: echoScript{}})
	s.SetActiveFile("/tmp/people.csv", []byte("id,name\n"))
	m := New(t.Context(), s)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model), s
}

func press(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

// run feeds a key press and drains the command it produces.
func run(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(Model)
	if cmd == nil {
		return m
	}
	out := cmd()
	batch, ok := out.(tea.BatchMsg)
	if !ok {
		next, _ = m.Update(out)
		return next.(Model)
	}
	for _, c := range batch {
		if c == nil {
			continue
		}
		if res, ok := c().(resultMsg); ok {
			next, _ = m.Update(res)
			m = next.(Model)
		}
	}
	return m
}

func TestModel_TogglePanel(t *testing.T) {
	m, s := newModel(t, rowsRunner{n: 1})
	require.False(t, s.PanelOpen())

	m = run(t, m, press(tea.KeyCtrlJ))
	assert.True(t, s.PanelOpen())
	assert.Equal(t, "SELECT * FROM data LIMIT 100", m.editor.Value(), "opening fills the template")

	m = run(t, m, press(tea.KeyCtrlJ))
	assert.False(t, s.PanelOpen())
	assert.NotContains(t, m.View(), "rows ·")
}

func TestModel_RunAndPin(t *testing.T) {
	m, s := newModel(t, rowsRunner{n: 3})

	m = run(t, m, press(tea.KeyCtrlP))
	assert.True(t, s.PanelOpen())
	assert.False(t, m.running)
	require.NotNil(t, s.LastResult())
	assert.Len(t, m.table.Rows(), 3)
	assert.Contains(t, m.View(), "row-002")
	assert.Contains(t, m.View(), "3 rows")
}

func TestModel_RunKeepsPanelState(t *testing.T) {
	m, s := newModel(t, rowsRunner{n: 1})
	s.SetQuery("SELECT 1")
	m.syncEditor()

	run(t, m, press(tea.KeyCtrlR))
	assert.False(t, s.PanelOpen())
	assert.Len(t, s.History(), 1)
	assert.Equal(t, "SELECT 1", s.History()[0].Query)
}

func TestModel_ErrorResult(t *testing.T) {
	m, _ := newModel(t, rowsRunner{fail: true})

	m = run(t, m, press(tea.KeyCtrlP))
	assert.Contains(t, m.output.View(), "Parser Error")
}

func TestModel_SwitchMode(t *testing.T) {
	m, s := newModel(t, rowsRunner{})

	m = run(t, m, press(tea.KeyCtrlT))
	assert.Equal(t, query.ModeScripting, s.Mode())
	assert.Equal(t, "data.head(10)", m.editor.Value())

	m = run(t, m, press(tea.KeyCtrlP))
	assert.Contains(t, m.output.View(), "data.head(10)")
}

func TestModel_PendingActionWinsOnPin(t *testing.T) {
	m, s := newModel(t, rowsRunner{})
	require.NoError(t, s.QueueAction("python", "print(1)"))

	m = run(t, m, press(tea.KeyCtrlP))
	assert.Equal(t, query.ModeScripting, s.Mode())
	assert.Equal(t, "print(1)", m.editor.Value())
	assert.False(t, s.HasPendingAction())
}

func TestModel_SortAndPage(t *testing.T) {
	m, s := newModel(t, rowsRunner{n: 150})
	m = run(t, m, press(tea.KeyCtrlP))
	assert.Len(t, m.table.Rows(), 100)

	m = run(t, m, press(tea.KeyPgDown))
	assert.Equal(t, 1, s.ViewOptions().Page)
	assert.Len(t, m.table.Rows(), 50)

	m = run(t, m, press(tea.KeyPgDown))
	assert.Equal(t, 1, s.ViewOptions().Page, "page stays on the last page")

	m = run(t, m, press(tea.KeyCtrlO))
	assert.Equal(t, "id", s.ViewOptions().SortColumn)
	m = run(t, m, press(tea.KeyCtrlO))
	assert.True(t, s.ViewOptions().Descending)
	assert.Equal(t, "49", m.table.Rows()[0][0], "sorting keeps the current page")
}

func TestModel_BookmarkAndHistory(t *testing.T) {
	m, s := newModel(t, rowsRunner{n: 1})
	s.SetQuery("SELECT 42")
	m.syncEditor()
	m = run(t, m, press(tea.KeyCtrlR))

	m = run(t, m, press(tea.KeyCtrlK))
	require.Len(t, s.Bookmarks(), 1)
	assert.Equal(t, "SELECT 42", s.Bookmarks()[0].Name)

	s.SetQuery("something else")
	m.syncEditor()
	m = run(t, m, press(tea.KeyCtrlY))
	assert.Equal(t, "SELECT 42", m.editor.Value())
}

func TestModel_Quit(t *testing.T) {
	m, _ := newModel(t, rowsRunner{})
	next, cmd := m.Update(press(tea.KeyEsc))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, next.View())
}
