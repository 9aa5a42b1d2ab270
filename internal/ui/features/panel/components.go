package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
	"github.com/leapstack-labs/querypad/internal/query"
	"github.com/leapstack-labs/querypad/internal/ui/features/common"
	"github.com/leapstack-labs/querypad/internal/ui/resources"
	"github.com/leapstack-labs/querypad/internal/viewer"
)

// DatastarScript is the client runtime loaded by the page.
const DatastarScript = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0/bundles/datastar.js"

// html accumulates markup and keeps the first write error.
type html struct {
	w   io.Writer
	err error
}

func (h *html) raw(s string) {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
}

func (h *html) printf(format string, args ...any) {
	if h.err == nil {
		_, h.err = fmt.Fprintf(h.w, format, args...)
	}
}

func esc(s string) string {
	return templ.EscapeString(s)
}

// Page renders the full HTML document.
func Page(title string, isDev bool, st common.SessionState) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		initial := st.ClientSignals()
		initial["bookmarkName"] = ""
		signals, err := json.Marshal(initial)
		if err != nil {
			return err
		}

		h := &html{w: w}
		h.raw("<!doctype html>\n<html lang=\"en\"><head><meta charset=\"utf-8\">")
		h.printf("<title>%s - querypad</title>", esc(title))
		h.printf(`<link rel="stylesheet" href="%s">`, resources.StaticPath("panel.css"))
		h.printf(`<script type="module" src="%s"></script>`, DatastarScript)
		h.raw("</head>")
		h.printf(`<body data-signals="%s" data-init="@get('/updates')">`, esc(string(signals)))
		if isDev {
			h.raw(`<div data-init="@get('/reload', {openWhenHidden: true})"></div>`)
		}
		if h.err != nil {
			return h.err
		}
		if err := Panel(st).Render(ctx, w); err != nil {
			return err
		}
		h.raw("</body></html>\n")
		return h.err
	})
}

// Panel renders the editor, results and side lists.
func Panel(st common.SessionState) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		class := "panel closed"
		if st.PanelOpen {
			class = "panel open"
		}
		h.printf(`<main id="panel" class="%s">`, class)

		h.raw(`<header class="toolbar">`)
		h.printf(`<input class="file" data-bind:file-path value="%s" placeholder="/path/to/file.csv" data-on:change="@post('/api/file')">`, esc(st.FilePath))
		for _, m := range []query.Mode{query.ModeStructured, query.ModeScripting} {
			active := ""
			if m == st.Mode {
				active = " active"
			}
			h.printf(`<button class="mode%s" data-on:click="$mode = '%s'; @post('/api/mode')">%s</button>`, active, m, esc(m.Label()))
		}
		h.raw(`<button class="run" data-on:click="@post('/api/run')">Run</button>`)
		h.raw(`<button data-on:click="@post('/api/command/toggle-panel')">Panel</button>`)
		if st.Pending {
			h.raw(`<span class="badge">action queued</span>`)
		}
		h.raw(`</header>`)

		h.printf(`<textarea class="editor" data-bind:query data-on:keydown="evt.ctrlKey && evt.key === 'Enter' && @post('/api/run')">%s</textarea>`, esc(st.Query))

		h.printf(`<div class="results-wrap" style="height:%dpx">`, st.PanelHeight)
		if h.err != nil {
			return h.err
		}
		if err := Results(st.View).Render(ctx, w); err != nil {
			return err
		}
		h.raw(`</div>`)
		h.raw(`<input class="resize" type="range" min="120" max="2000" step="20" data-bind:panel-height data-on:change="@post('/api/panel-height')">`)

		h.raw(`<aside class="lists">`)
		h.raw(`<section id="bookmarks"><h3>Bookmarks</h3>`)
		h.raw(`<input data-bind:bookmark-name placeholder="name"><button data-on:click="@post('/api/bookmarks')">Save</button><ul>`)
		for _, b := range st.Bookmarks {
			id := esc(b.ID)
			h.printf(`<li><a data-on:click="@post('/api/bookmarks/%s/select')">%s</a> <small>%s</small> <button class="x" data-on:click="@delete('/api/bookmarks/%s')">×</button></li>`,
				id, esc(b.Name), esc(b.Mode.Label()), id)
		}
		h.raw(`</ul></section>`)
		h.raw(`<section id="history"><h3>History</h3><ul>`)
		for _, item := range st.History {
			h.printf(`<li><a data-on:click="@post('/api/history/%s/select')"><code>%s</code></a> <small>%s</small></li>`,
				esc(item.ID), esc(truncate(item.Query, 80)), esc(item.Mode.Label()))
		}
		h.raw(`</ul></section></aside>`)

		h.raw(`</main>`)
		return h.err
	})
}

// Results renders the result area for a view.
func Results(v viewer.View) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &html{w: w}
		h.printf(`<section id="results" class="results %s">`, v.Display)

		if v.Stdout != "" && v.Display != viewer.DisplayText {
			h.printf(`<pre class="stdout">%s</pre>`, esc(v.Stdout))
		}

		switch v.Display {
		case viewer.DisplayEmpty:
			h.raw(`<p class="muted">Run a query to see results.</p>`)

		case viewer.DisplayError:
			h.printf(`<div class="error-panel"><strong>%s error</strong><pre>%s</pre><small>%s</small></div>`,
				esc(v.QueryMode.Label()), esc(v.Error), esc(v.Summary()))

		case viewer.DisplayImage:
			h.printf(`<img alt="figure" src="data:image/png;base64,%s">`, v.Image)

		case viewer.DisplayJSON:
			h.printf(`<pre class="json">%s</pre>`, esc(v.JSON))

		case viewer.DisplayText:
			h.printf(`<pre class="text">%s</pre>`, esc(v.Text))

		case viewer.DisplayTable:
			renderTable(h, v)
		}

		h.raw(`</section>`)
		return h.err
	})
}

func renderTable(h *html, v viewer.View) {
	h.raw(`<div class="table-tools">`)
	h.raw(`<input type="search" placeholder="Filter rows" data-bind:filter data-on:input__debounce.300ms="$page = 0; @post('/api/view')">`)
	h.printf(`<span class="summary">%s</span>`, esc(v.Summary()))
	h.raw(`<a href="/api/export.csv" download>CSV</a> <a href="/api/export.json" download>JSON</a>`)
	h.raw(`</div>`)

	h.raw(`<table><thead><tr>`)
	for _, c := range v.Columns {
		marker := ""
		desc := "false"
		if c == v.SortColumn {
			marker = " ▲"
			desc = "true"
			if v.Descending {
				marker = " ▼"
				desc = "false"
			}
		}
		// Column names end up inside a JS string literal.
		jsCol := strings.ReplaceAll(strings.ReplaceAll(c, `\`, `\\`), `'`, `\'`)
		h.printf(`<th data-on:click="$sortColumn = '%s'; $descending = %s; @post('/api/view')">%s%s</th>`,
			esc(jsCol), desc, esc(c), marker)
	}
	h.raw(`</tr></thead><tbody>`)
	for _, row := range v.Rows {
		h.raw(`<tr>`)
		for _, c := range v.Columns {
			val := row[c]
			if val == nil {
				h.raw(`<td class="null">NULL</td>`)
				continue
			}
			h.printf(`<td>%s</td>`, esc(viewer.FormatValue(val)))
		}
		h.raw(`</tr>`)
	}
	h.raw(`</tbody></table>`)

	if v.PageCount > 1 {
		h.raw(`<nav class="pager">`)
		if v.Page > 0 {
			h.printf(`<button data-on:click="$page = %d; @post('/api/view')">Prev</button>`, v.Page-1)
		}
		h.printf(`<span>page %d/%d</span>`, v.Page+1, v.PageCount)
		if v.Page+1 < v.PageCount {
			h.printf(`<button data-on:click="$page = %d; @post('/api/view')">Next</button>`, v.Page+1)
		}
		h.raw(`</nav>`)
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
