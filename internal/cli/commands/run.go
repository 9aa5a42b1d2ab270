package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/leapstack-labs/querypad/internal/cli/output"
	"github.com/leapstack-labs/querypad/internal/query"
	"github.com/leapstack-labs/querypad/internal/viewer"
	"github.com/spf13/cobra"
)

// ErrQueryFailed is returned when a run completes with an error result.
// The error itself has already been rendered.
var ErrQueryFailed = errors.New("query failed")

// RunOptions holds options for the run command.
type RunOptions struct {
	Query          string
	Input          string
	Mode           string
	Format         string
	ActionLanguage string
	ActionQuery    string
	Sort           string
	Descending     bool
	Filter         string
	Page           int
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run one query against a file",
		Long: `Run a single SQL or Starlark query against a data file and print the result.

The query comes from --query, --input, or standard input when it is piped.
Without any of these the default template for the mode and file type runs.
Scripts that call save() write the file back in place.`,
		Example: `  # Preview a CSV file
  querypad run orders.csv

  # Aggregate with SQL
  querypad run orders.csv -q "SELECT status, COUNT(*) FROM data GROUP BY 1"

  # Transform with Starlark and export JSON
  querypad run events.jsonl --mode scripting -q "[e for e in data if e['level'] == 'error']" --format json

  # Hand over a query produced by another tool
  querypad run notes.md --action-language python --action-query "print(len(content))"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "Query text")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read the query from a file")
	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", "structured", "Query mode: structured (sql) or scripting (starlark)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format, overrides --output: table, markdown, json, csv")
	cmd.Flags().StringVar(&opts.ActionLanguage, "action-language", "", "Language of a queued action (sql, duckdb, python, starlark)")
	cmd.Flags().StringVar(&opts.ActionQuery, "action-query", "", "Query text of a queued action")
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "Sort rows by column")
	cmd.Flags().BoolVar(&opts.Descending, "desc", false, "Sort descending")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "Keep rows containing this text (case-insensitive)")
	cmd.Flags().IntVar(&opts.Page, "page", 1, "Result page to print (table and markdown)")
	addEngineFlags(cmd)

	_ = cmd.RegisterFlagCompletionFunc("mode", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{string(query.ModeStructured), string(query.ModeScripting)}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "markdown", "json", "csv"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// addEngineFlags registers the engine overrides shared by every command
// that executes queries.
func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().Int("threads", 0, "DuckDB worker threads (0 = DuckDB default)")
	cmd.Flags().StringSlice("extensions", nil, "DuckDB extensions to load")
	cmd.Flags().Int("max-rows", 0, "Maximum JSON array elements ingested")
	cmd.Flags().String("temp-dir", "", "Directory for temporary ingestion files")
	cmd.Flags().String("scripts-dir", "", "Directory of Starlark library modules")
	cmd.Flags().Uint64("max-steps", 0, "Starlark step budget per run (0 = unlimited)")
}

func runRun(cmd *cobra.Command, path string, opts *RunOptions) error {
	mode, err := query.ParseMode(opts.Mode)
	if err != nil {
		return err
	}

	cmdCtx, cleanup := NewCommandContext(cmd, nil)
	defer cleanup()

	r := cmdCtx.Renderer
	if opts.Format != "" {
		r = output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(opts.Format))
	}

	s := cmdCtx.NewSession(mode)
	if err := OpenFile(s, path); err != nil {
		return err
	}

	text, err := readQuery(cmd, opts)
	if err != nil {
		return err
	}

	switch {
	case opts.ActionQuery != "":
		if err := s.QueueAction(opts.ActionLanguage, opts.ActionQuery); err != nil {
			return err
		}
		s.OpenPanel()
	case text != "":
		s.SetQuery(text)
	default:
		s.OpenPanel()
	}

	res, ran := s.Run(cmd.Context())
	if !ran {
		return errors.New("nothing to run")
	}

	s.SetViewOptions(viewer.Options{
		SortColumn: opts.Sort,
		Descending: opts.Descending,
		Filter:     opts.Filter,
		Page:       max(opts.Page-1, 0),
	})
	if err := r.Render(s.View()); err != nil {
		return err
	}

	if !res.Success {
		return ErrQueryFailed
	}
	return nil
}

// readQuery returns the query from --query, --input or piped stdin.
func readQuery(cmd *cobra.Command, opts *RunOptions) (string, error) {
	switch {
	case opts.Query != "":
		return opts.Query, nil
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		return strings.TrimSpace(string(content)), nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && !isPiped(f) {
		return "", nil
	}
	content, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimSpace(string(content)), nil
}

// isPiped reports whether f is a pipe or a redirected file.
func isPiped(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice == 0
}
