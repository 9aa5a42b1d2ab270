package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/renameio/v2"
	"github.com/leapstack-labs/querypad/internal/cli/output"
	"github.com/leapstack-labs/querypad/internal/query"
	"github.com/leapstack-labs/querypad/internal/session"
	"github.com/leapstack-labs/querypad/internal/viewer"
	"github.com/spf13/cobra"
)

// REPLOptions holds options for the repl command.
type REPLOptions struct {
	Mode string
}

// NewREPLCommand creates the repl command.
func NewREPLCommand() *cobra.Command {
	opts := &REPLOptions{}

	cmd := &cobra.Command{
		Use:   "repl [file]",
		Short: "Query a file interactively",
		Long: `Start an interactive session against a data file.

SQL statements end with a semicolon. Starlark lines run immediately unless
they open a block (trailing colon), in which case input continues until an
empty line. Type .help for the dot commands.`,
		Example: `  querypad repl orders.csv
  querypad repl config.yaml --mode scripting`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", "structured", "Initial query mode")
	addEngineFlags(cmd)

	return cmd
}

func runREPL(cmd *cobra.Command, args []string, opts *REPLOptions) error {
	mode, err := query.ParseMode(opts.Mode)
	if err != nil {
		return err
	}

	cmdCtx, cleanup := NewCommandContext(cmd, nil)
	defer cleanup()

	s := cmdCtx.NewSession(mode)
	if len(args) == 1 {
		if err := OpenFile(s, args[0]); err != nil {
			return err
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          promptFor(s.Mode()),
		HistoryFile:     filepath.Join(cmdCtx.Cfg.ProjectRoot, ".querypad_history"),
		AutoComplete:    newDotCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	// Bootstrap errors surface again on the first run.
	if err := cmdCtx.App.Warmup(cmd.Context(), s.Mode()); err != nil {
		cmdCtx.Logger.Debug("warmup failed", "error", err)
	}

	repl := newREPL(s, cmdCtx.Renderer)
	if path, ok := s.ActiveFile(); ok {
		cmdCtx.Renderer.Printf("querypad REPL (%s, file: %s)\n", s.Mode().Label(), path)
	} else {
		cmdCtx.Renderer.Printf("querypad REPL (%s, no file; use .open <path>)\n", s.Mode().Label())
	}
	cmdCtx.Renderer.Println("Type .help for commands, .quit to exit")
	cmdCtx.Renderer.Println()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			repl.reset()
			rl.SetPrompt(promptFor(s.Mode()))
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		if repl.handleLine(cmd.Context(), line) {
			break
		}
		if repl.pending() {
			rl.SetPrompt("   ...> ")
		} else {
			rl.SetPrompt(promptFor(s.Mode()))
		}
	}

	return nil
}

func promptFor(m query.Mode) string {
	if m == query.ModeScripting {
		return "star> "
	}
	return "sql> "
}

// repl interprets input lines against a session. It has no terminal
// dependencies so it can be driven directly.
type repl struct {
	s   *session.Session
	r   *output.Renderer
	buf strings.Builder
}

func newREPL(s *session.Session, r *output.Renderer) *repl {
	return &repl{s: s, r: r}
}

func (p *repl) pending() bool {
	return p.buf.Len() > 0
}

func (p *repl) reset() {
	p.buf.Reset()
}

// handleLine consumes one line of input and reports whether to quit.
func (p *repl) handleLine(ctx context.Context, line string) bool {
	trimmed := strings.TrimSpace(line)

	if !p.pending() {
		if trimmed == "" {
			return false
		}
		if strings.HasPrefix(trimmed, ".") {
			return p.dotCommand(ctx, trimmed)
		}
	}

	if p.s.Mode() == query.ModeScripting {
		return p.scriptLine(ctx, line, trimmed)
	}

	// Accumulate multi-line SQL until semicolon
	if trimmed == "" {
		return false
	}
	p.buf.WriteString(trimmed)
	if !strings.HasSuffix(trimmed, ";") {
		p.buf.WriteString("\n")
		return false
	}
	text := strings.TrimSuffix(p.buf.String(), ";")
	p.buf.Reset()
	p.execute(ctx, text)
	return false
}

func (p *repl) scriptLine(ctx context.Context, line, trimmed string) bool {
	if p.pending() {
		if trimmed != "" {
			p.buf.WriteString(line)
			p.buf.WriteString("\n")
			return false
		}
		text := p.buf.String()
		p.buf.Reset()
		p.execute(ctx, text)
		return false
	}

	if strings.HasSuffix(trimmed, ":") || strings.HasSuffix(trimmed, "\\") {
		p.buf.WriteString(line)
		p.buf.WriteString("\n")
		return false
	}
	p.execute(ctx, line)
	return false
}

func (p *repl) execute(ctx context.Context, text string) {
	p.s.SetQuery(text)
	p.run(ctx)
}

func (p *repl) run(ctx context.Context) {
	if _, ok := p.s.ActiveFile(); !ok {
		p.r.Error("no file open (use .open <path>)")
		return
	}
	if _, ran := p.s.Run(ctx); !ran {
		p.r.Warn("nothing to run")
		return
	}
	p.render()
}

func (p *repl) render() {
	if err := p.r.Render(p.s.View()); err != nil {
		p.r.Error(err.Error())
	}
	p.r.Println()
}

func (p *repl) dotCommand(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(p.r.Writer())

	case ".open":
		if len(args) != 1 {
			p.r.Error("usage: .open <path>")
			return false
		}
		if err := OpenFile(p.s, args[0]); err != nil {
			p.r.Error(err.Error())
			return false
		}
		p.r.Success("opened " + args[0])

	case ".mode":
		if len(args) == 0 {
			p.r.Println(output.FormatKeyValue("Mode", p.s.Mode().Label()))
			return false
		}
		m, err := query.ParseMode(args[0])
		if err != nil {
			p.r.Error(err.Error())
			return false
		}
		if err := p.s.SetMode(m); err != nil {
			p.r.Error(err.Error())
			return false
		}
		p.r.Println(output.FormatKeyValue("Mode", p.s.Mode().Label()))
		p.r.Println(output.FormatKeyValue("Query", p.s.Query()))

	case ".query":
		p.r.Println(p.s.Query())

	case ".run":
		p.s.OpenPanel()
		p.run(ctx)

	case ".show":
		p.render()

	case ".history":
		for i, item := range p.s.History() {
			p.r.Printf("%3d  %-8s %s\n", i+1, item.Mode.Label(), oneLine(item.Query))
		}

	case ".select":
		if len(args) != 1 {
			p.r.Error("usage: .select <n|id>")
			return false
		}
		id := args[0]
		if n, err := strconv.Atoi(id); err == nil {
			items := p.s.History()
			if n < 1 || n > len(items) {
				p.r.Error("no such history entry")
				return false
			}
			id = items[n-1].ID
		}
		if err := p.s.SelectHistory(id); err != nil {
			p.r.Error(err.Error())
			return false
		}
		p.r.Println(p.s.Query())

	case ".bookmark":
		if len(args) == 0 {
			p.r.Error("usage: .bookmark <name>")
			return false
		}
		b, err := p.s.AddBookmark(strings.Join(args, " "))
		if err != nil {
			p.r.Error(err.Error())
			return false
		}
		p.r.Success("bookmarked " + b.Name)

	case ".bookmarks":
		for i, b := range p.s.Bookmarks() {
			p.r.Printf("%3d  %-16s %-8s %s\n", i+1, b.Name, b.Mode.Label(), oneLine(b.Query))
		}

	case ".load", ".unbookmark":
		if len(args) != 1 {
			p.r.Error("usage: " + command + " <n|id>")
			return false
		}
		id := args[0]
		if n, err := strconv.Atoi(id); err == nil {
			items := p.s.Bookmarks()
			if n < 1 || n > len(items) {
				p.r.Error("no such bookmark")
				return false
			}
			id = items[n-1].ID
		}
		var err error
		if command == ".load" {
			err = p.s.SelectBookmark(id)
		} else {
			err = p.s.RemoveBookmark(id)
		}
		if err != nil {
			p.r.Error(err.Error())
			return false
		}
		if command == ".load" {
			p.r.Println(p.s.Query())
		}

	case ".queue":
		if len(args) < 2 {
			p.r.Error("usage: .queue <language> <query>")
			return false
		}
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line[len(parts[0]):]), args[0]))
		if err := p.s.QueueAction(args[0], text); err != nil {
			p.r.Error(err.Error())
			return false
		}
		p.r.Success("queued; it replaces the query on the next .run or .open")

	case ".sort":
		opts := p.s.ViewOptions()
		switch len(args) {
		case 0:
			opts.SortColumn, opts.Descending = "", false
		default:
			opts.SortColumn = args[0]
			opts.Descending = len(args) > 1 && strings.EqualFold(args[1], "desc")
		}
		p.s.SetViewOptions(opts)
		p.render()

	case ".filter":
		opts := p.s.ViewOptions()
		opts.Filter = strings.TrimSpace(strings.TrimPrefix(line, parts[0]))
		opts.Page = 0
		p.s.SetViewOptions(opts)
		p.render()

	case ".page":
		if len(args) != 1 {
			p.r.Error("usage: .page <n>")
			return false
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			p.r.Error("page must be a number")
			return false
		}
		opts := p.s.ViewOptions()
		opts.Page = max(n-1, 0)
		p.s.SetViewOptions(opts)
		p.render()

	case ".export":
		if err := p.export(args); err != nil {
			p.r.Error(err.Error())
		}

	case ".clear":
		p.r.Printf("\033[H\033[2J")

	default:
		p.r.Error(fmt.Sprintf("unknown command: %s (type .help for commands)", command))
	}
	return false
}

func (p *repl) export(args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return errors.New("usage: .export csv|json [path]")
	}

	var buf bytes.Buffer
	var err error
	v := p.s.View()
	switch args[0] {
	case "csv":
		err = viewer.ExportCSV(&buf, v)
	case "json":
		err = viewer.ExportJSON(&buf, v)
	default:
		return fmt.Errorf("unknown export format %q", args[0])
	}
	if err != nil {
		return err
	}

	path := ""
	if len(args) == 2 {
		path = args[1]
	} else {
		active, _ := p.s.ActiveFile()
		path = viewer.ExportFilename(active, args[0])
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	p.r.Success(fmt.Sprintf("exported %d rows to %s", len(v.Matched), path))
	return nil
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 72 {
		return s[:69] + "..."
	}
	return s
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help                  Show this help message
  .open <path>           Make a file the active file
  .mode [sql|starlark]   Show or switch the query mode
  .query                 Print the current query
  .run                   Run the current query (or a queued action)
  .show                  Re-print the last result
  .history               List recent successful queries
  .select <n|id>         Restore a history entry
  .bookmark <name>       Bookmark the current query
  .bookmarks             List bookmarks
  .load <n|id>           Restore a bookmark
  .unbookmark <n|id>     Remove a bookmark
  .queue <lang> <query>  Queue an action that wins over the next template
  .sort [column [desc]]  Sort the result rows
  .filter [text]         Filter the result rows
  .page <n>              Show a result page
  .export csv|json [path] Export the filtered and sorted rows
  .clear                 Clear the screen
  .quit / .exit          Exit the REPL

Tips:
  - SQL statements must end with a semicolon (;)
  - The active file is the relation "data" in SQL and the global data in Starlark
  - Use arrow keys to navigate history
`
	_, _ = fmt.Fprintln(w, help)
}

// newDotCompleter creates a readline completer for the dot commands.
func newDotCompleter() *readline.PrefixCompleter {
	modes := []readline.PrefixCompleterInterface{
		readline.PcItem("sql"),
		readline.PcItem("starlark"),
	}
	formats := []readline.PrefixCompleterInterface{
		readline.PcItem("csv"),
		readline.PcItem("json"),
	}

	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".open"),
		readline.PcItem(".mode", modes...),
		readline.PcItem(".query"),
		readline.PcItem(".run"),
		readline.PcItem(".show"),
		readline.PcItem(".history"),
		readline.PcItem(".select"),
		readline.PcItem(".bookmark"),
		readline.PcItem(".bookmarks"),
		readline.PcItem(".load"),
		readline.PcItem(".unbookmark"),
		readline.PcItem(".queue", modes...),
		readline.PcItem(".sort"),
		readline.PcItem(".filter"),
		readline.PcItem(".page"),
		readline.PcItem(".export", formats...),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}
