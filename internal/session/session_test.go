package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leapstack-labs/querypad/internal/query"
	"github.com/leapstack-labs/querypad/internal/testutil"
	"github.com/leapstack-labs/querypad/internal/viewer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStructured struct {
	mu    sync.Mutex
	calls []query.ExecutionContext
	fail  bool
	block chan struct{}
}

func (f *fakeStructured) Execute(_ context.Context, q string, ec query.ExecutionContext) *query.Result {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.calls = append(f.calls, ec)
	f.mu.Unlock()
	if f.fail {
		return query.Failure(query.ModeStructured, "Parser Error: syntax error", time.Millisecond)
	}
	return query.Structured([]string{"q"}, []map[string]any{{"q": q}}, time.Millisecond)
}

type fakeScripting struct {
	code   string
	onSave query.SaveFunc
	save   string
}

func (f *fakeScripting) Execute(_ context.Context, code string, _ query.ExecutionContext, onSave query.SaveFunc) *query.Result {
	f.code, f.onSave = code, onSave
	if f.save != "" && onSave != nil {
		onSave(f.save)
	}
	return query.Scripted("hi\n", query.Return{}, time.Millisecond)
}

type panicking struct{}

func (panicking) Execute(context.Context, string, query.ExecutionContext) *query.Result {
	panic("boom")
}

func newSession(t *testing.T) (*Session, *fakeStructured, *fakeScripting) {
	t.Helper()
	st, sc := &fakeStructured{}, &fakeScripting{}
	s := New(Config{Structured: st, Scripting: sc, Logger: testutil.NewTestLogger(t)})
	return s, st, sc
}

func TestRun_Guard(t *testing.T) {
	s, st, _ := newSession(t)
	s.SetActiveFile("people.csv", []byte("a\n1\n"))

	s.SetQuery("   \n\t")
	res, ran := s.Run(t.Context())
	assert.False(t, ran)
	assert.Nil(t, res)
	assert.Empty(t, st.calls)
	assert.Empty(t, s.History())
}

func TestRun_IgnoredWhileRunning(t *testing.T) {
	st := &fakeStructured{block: make(chan struct{})}
	s := New(Config{Structured: st})
	s.SetActiveFile("people.csv", []byte("a\n1\n"))
	s.SetQuery("SELECT 1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ran := s.Run(context.Background())
		assert.True(t, ran)
	}()

	require.Eventually(t, s.Running, time.Second, time.Millisecond)
	res, ran := s.Run(t.Context())
	assert.False(t, ran)
	assert.Nil(t, res)

	close(st.block)
	<-done
	assert.False(t, s.Running())
	assert.Len(t, st.calls, 1)
}

func TestRun_SnapshotsActiveFile(t *testing.T) {
	s, st, _ := newSession(t)
	content := []byte("a\n1\n")
	s.SetActiveFile("/tmp/People.CSV", content)
	content[0] = 'z'

	s.SetQuery("SELECT * FROM data")
	res, ran := s.Run(t.Context())
	require.True(t, ran)
	require.True(t, res.Success)

	require.Len(t, st.calls, 1)
	assert.Equal(t, "/tmp/People.CSV", st.calls[0].FilePath)
	assert.Equal(t, "csv", st.calls[0].FileExtension)
	assert.Equal(t, "a\n1\n", st.calls[0].Content())
	assert.Same(t, res, s.LastResult())
}

func TestRun_NoActiveFile(t *testing.T) {
	s, st, _ := newSession(t)
	s.SetQuery("SELECT 1")

	res, ran := s.Run(t.Context())
	require.True(t, ran)
	assert.False(t, res.Success)
	assert.Equal(t, ErrNoActiveFile.Error(), res.Error)
	assert.Empty(t, st.calls)
	assert.Empty(t, s.History())
	assert.False(t, s.Running())
}

func TestRun_FailureNotRecorded(t *testing.T) {
	st := &fakeStructured{fail: true}
	s := New(Config{Structured: st})
	s.SetActiveFile("a.csv", nil)
	s.SetQuery("SELEC")

	res, ran := s.Run(t.Context())
	require.True(t, ran)
	assert.False(t, res.Success)
	assert.Empty(t, s.History())
	assert.Equal(t, viewer.DisplayError, s.View().Display)
}

func TestRun_PanicClearsRunning(t *testing.T) {
	s := New(Config{Structured: panicking{}})
	s.SetActiveFile("a.csv", nil)
	s.SetQuery("SELECT 1")

	res, ran := s.Run(t.Context())
	require.True(t, ran)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "boom")
	assert.False(t, s.Running())
}

func TestRun_ScriptingAndSave(t *testing.T) {
	var savedPath, savedContent string
	sc := &fakeScripting{save: "new content"}
	s := New(Config{
		Scripting: sc,
		OnSave: func(path, content string) error {
			savedPath, savedContent = path, content
			return nil
		},
	})
	s.SetActiveFile("notes.txt", []byte("old"))
	require.NoError(t, s.SetMode(query.ModeScripting))
	assert.Equal(t, "print(content[:500])", s.Query())

	res, ran := s.Run(t.Context())
	require.True(t, ran)
	assert.Equal(t, "hi\n", res.Stdout)
	assert.Equal(t, "notes.txt", savedPath)
	assert.Equal(t, "new content", savedContent)

	ec, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "new content", ec.Content())
}

func TestRun_SaveErrorIsLogged(t *testing.T) {
	logger, logs := testutil.NewCaptureLogger()
	sc := &fakeScripting{save: "x"}
	s := New(Config{
		Scripting: sc,
		Mode:      query.ModeScripting,
		Logger:    logger,
		OnSave:    func(string, string) error { return errors.New("read-only") },
	})
	s.SetActiveFile("notes.txt", []byte("old"))
	s.SetQuery("save('x')")

	res, _ := s.Run(t.Context())
	assert.True(t, res.Success)
	assert.Contains(t, logs.String(), "failed to save file")

	ec, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "old", ec.Content())
}

func TestRun_NilSaveHandler(t *testing.T) {
	s, _, sc := newSession(t)
	require.NoError(t, s.SetMode(query.ModeScripting))
	s.SetActiveFile("a.json", []byte("{}"))
	s.Run(t.Context())
	assert.Nil(t, sc.onSave)
	assert.Equal(t, "data", sc.code)
}

func TestRun_Observer(t *testing.T) {
	var modes []query.Mode
	s := New(Config{
		Structured: &fakeStructured{},
		Observer:   func(m query.Mode, _ *query.Result) { modes = append(modes, m) },
	})
	s.SetActiveFile("a.csv", nil)
	s.SetQuery("SELECT 1")
	s.Run(t.Context())
	s.Run(t.Context())
	assert.Equal(t, []query.Mode{query.ModeStructured, query.ModeStructured}, modes)
}

func TestHistory_CappedAndNewestFirst(t *testing.T) {
	s, _, _ := newSession(t)
	s.SetActiveFile("a.csv", nil)

	for i := range MaxHistory + 5 {
		s.SetQuery(fmt.Sprintf("SELECT %d", i))
		_, ran := s.Run(t.Context())
		require.True(t, ran)
	}

	h := s.History()
	require.Len(t, h, MaxHistory)
	assert.Equal(t, fmt.Sprintf("SELECT %d", MaxHistory+4), h[0].Query)
	assert.Equal(t, "SELECT 5", h[len(h)-1].Query)
	assert.Equal(t, "a.csv", h[0].FilePath)
	assert.NotEmpty(t, h[0].ID)
}

func TestSelectHistory(t *testing.T) {
	s, _, _ := newSession(t)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	s.SetActiveFile("a.csv", nil)
	s.SetQuery("SELECT 42")
	s.Run(t.Context())

	s.SetQuery("something else")
	require.NoError(t, s.SetMode(query.ModeScripting))

	item := s.History()[0]
	assert.Equal(t, fixed, item.Timestamp)
	require.NoError(t, s.SelectHistory(item.ID))
	assert.Equal(t, "SELECT 42", s.Query())
	assert.Equal(t, query.ModeStructured, s.Mode())

	assert.ErrorIs(t, s.SelectHistory("nope"), ErrNotFound)
}

// Bookmark a query, switch files, reselect the bookmark.
func TestBookmarks_RestoreAfterFileSwitch(t *testing.T) {
	s, _, _ := newSession(t)
	s.SetActiveFile("people.csv", []byte("a\n1\n"))
	require.NoError(t, s.SetMode(query.ModeScripting))
	s.SetQuery("data.sort_by('a').head(3)")

	b, err := s.AddBookmark("top rows")
	require.NoError(t, err)
	assert.Equal(t, "top rows", b.Name)

	s.SetActiveFile("config.json", []byte("{}"))
	require.NoError(t, s.SetMode(query.ModeStructured))
	assert.Equal(t, "SELECT * FROM data LIMIT 100", s.Query())

	require.NoError(t, s.SelectBookmark(b.ID))
	assert.Equal(t, "data.sort_by('a').head(3)", s.Query())
	assert.Equal(t, query.ModeScripting, s.Mode())
}

func TestBookmarks_Validation(t *testing.T) {
	s, _, _ := newSession(t)

	_, err := s.AddBookmark("empty")
	assert.Error(t, err)

	s.SetQuery("SELECT 1")
	_, err = s.AddBookmark("  ")
	assert.Error(t, err)

	first, err := s.AddBookmark("one")
	require.NoError(t, err)
	second, err := s.AddBookmark("one")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, s.Bookmarks(), 2)

	require.NoError(t, s.RemoveBookmark(first.ID))
	assert.Equal(t, []Bookmark{second}, s.Bookmarks())
	assert.ErrorIs(t, s.RemoveBookmark(first.ID), ErrNotFound)
	assert.ErrorIs(t, s.SelectBookmark(first.ID), ErrNotFound)
}

func TestSetMode_Templates(t *testing.T) {
	tests := []struct {
		file string
		mode query.Mode
		want string
	}{
		{"a.csv", query.ModeScripting, "data.head(10)"},
		{"a.json", query.ModeScripting, "data"},
		{"a.tsv", query.ModeScripting, "data.head(10)"},
		{"a.xlsx", query.ModeScripting, "data.head(10)"},
		{"a.jsonl", query.ModeScripting, "data"},
		{"a.ndjson", query.ModeScripting, "data"},
		{"a.yaml", query.ModeScripting, "data"},
		{"a.yml", query.ModeScripting, "data"},
		{"a.md", query.ModeScripting, "print(content[:500])"},
		{"a.parquet", query.ModeScripting, "print(content[:500])"},
		{"a.parquet", query.ModeStructured, "DESCRIBE data"},
		{"a.json", query.ModeStructured, "SELECT * FROM data LIMIT 100"},
	}

	for _, tt := range tests {
		t.Run(tt.file+"/"+string(tt.mode), func(t *testing.T) {
			s, _, _ := newSession(t)
			s.SetActiveFile(tt.file, nil)
			other := query.ModeScripting
			if tt.mode == query.ModeScripting {
				other = query.ModeStructured
			}
			require.NoError(t, s.SetMode(other))
			require.NoError(t, s.SetMode(tt.mode))
			assert.Equal(t, tt.want, s.Query())
		})
	}
}

func TestSetMode_Invalid(t *testing.T) {
	s, _, _ := newSession(t)
	assert.Error(t, s.SetMode("cobol"))
}

func TestSetMode_SameModeKeepsQuery(t *testing.T) {
	s, _, _ := newSession(t)
	s.SetQuery("SELECT 7")
	require.NoError(t, s.SetMode(query.ModeStructured))
	assert.Equal(t, "SELECT 7", s.Query())
}

func TestPendingAction_WinsOnce(t *testing.T) {
	s, _, _ := newSession(t)
	s.SetActiveFile("a.csv", nil)
	require.NoError(t, s.QueueAction("python", "data.describe()"))
	assert.True(t, s.HasPendingAction())

	require.NoError(t, s.SetMode(query.ModeStructured))
	assert.Equal(t, "data.describe()", s.Query())
	assert.Equal(t, query.ModeScripting, s.Mode())
	assert.False(t, s.HasPendingAction())

	require.NoError(t, s.SetMode(query.ModeStructured))
	assert.Equal(t, "SELECT * FROM data LIMIT 100", s.Query())
}

func TestPendingAction_ConsumedOnPanelOpen(t *testing.T) {
	s, _, _ := newSession(t)
	require.NoError(t, s.QueueAction("duckdb", "SELECT count(*) FROM data"))

	assert.True(t, s.TogglePanel())
	assert.Equal(t, "SELECT count(*) FROM data", s.Query())
	assert.False(t, s.HasPendingAction())

	require.NoError(t, s.QueueAction("sql", "SELECT 2"))
	s.OpenPanel()
	assert.True(t, s.HasPendingAction(), "already open panel is not an open event")
}

func TestPendingAction_ConsumedOnFileChange(t *testing.T) {
	s, _, _ := newSession(t)
	s.SetActiveFile("a.csv", nil)
	require.NoError(t, s.QueueAction("starlark", "len(data)"))

	s.SetActiveFile("a.csv", []byte("x\n"))
	assert.True(t, s.HasPendingAction(), "same file is not a file change")

	s.SetActiveFile("b.json", nil)
	assert.False(t, s.HasPendingAction())
	assert.Equal(t, "len(data)", s.Query())
	assert.Equal(t, query.ModeScripting, s.Mode())
}

func TestQueueAction_Invalid(t *testing.T) {
	s, _, _ := newSession(t)
	assert.Error(t, s.QueueAction("cobol", "x"))
	assert.Error(t, s.QueueAction("sql", "  "))
	assert.False(t, s.HasPendingAction())
}

func TestSetActiveFile_RefreshesUntouchedTemplate(t *testing.T) {
	s, _, _ := newSession(t)
	require.NoError(t, s.SetMode(query.ModeScripting))
	s.SetActiveFile("a.csv", nil)
	assert.Equal(t, "data.head(10)", s.Query())

	s.SetActiveFile("b.json", nil)
	assert.Equal(t, "data", s.Query())

	s.SetQuery("len(content)")
	s.SetActiveFile("c.csv", nil)
	assert.Equal(t, "len(content)", s.Query(), "edited queries survive file switches")
}

func TestPanelHeight(t *testing.T) {
	s, _, _ := newSession(t)
	assert.Equal(t, DefaultPanelHeight, s.PanelHeight())
	assert.Equal(t, MinPanelHeight, s.SetPanelHeight(5))
	assert.Equal(t, MaxPanelHeight, s.SetPanelHeight(99999))
	assert.Equal(t, 640, s.SetPanelHeight(640))

	assert.Equal(t, MinPanelHeight, New(Config{PanelHeight: 10}).PanelHeight())
}

func TestDispatch(t *testing.T) {
	s, st, _ := newSession(t)
	s.SetActiveFile("a.csv", nil)

	res, err := s.Dispatch(t.Context(), CommandTogglePanel)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.True(t, s.PanelOpen())
	assert.Equal(t, "SELECT * FROM data LIMIT 100", s.Query())

	res, err = s.Dispatch(t.Context(), CommandRunQuery)
	require.NoError(t, err)
	require.NotNil(t, res)

	s.ClosePanel()
	res, err = s.Dispatch(t.Context(), CommandRunAndPin)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, s.PanelOpen())
	assert.Len(t, st.calls, 2)

	_, err = s.Dispatch(t.Context(), "explode")
	assert.Error(t, err)
}

func TestViewOptions_PageResetOnRun(t *testing.T) {
	s, _, _ := newSession(t)
	s.SetActiveFile("a.csv", nil)
	s.SetQuery("SELECT 1")
	s.SetViewOptions(viewer.Options{Filter: "x", Page: 3})

	s.Run(t.Context())
	opts := s.ViewOptions()
	assert.Equal(t, 0, opts.Page)
	assert.Equal(t, "x", opts.Filter)
}

func TestActiveFile(t *testing.T) {
	s, _, _ := newSession(t)
	_, ok := s.ActiveFile()
	assert.False(t, ok)
	_, err := s.Snapshot()
	assert.ErrorIs(t, err, ErrNoActiveFile)

	s.SetActiveFile("x.tsv", nil)
	path, ok := s.ActiveFile()
	assert.True(t, ok)
	assert.Equal(t, "x.tsv", path)

	s.ClearActiveFile()
	_, ok = s.ActiveFile()
	assert.False(t, ok)
}
