package commands

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/leapstack-labs/querypad/internal/query"
	"github.com/leapstack-labs/querypad/internal/tui"
	"github.com/spf13/cobra"
)

// TUIOptions holds options for the tui command.
type TUIOptions struct {
	Mode           string
	ActionLanguage string
	ActionQuery    string
}

// NewTUICommand creates the tui command.
func NewTUICommand() *cobra.Command {
	opts := &TUIOptions{}

	cmd := &cobra.Command{
		Use:   "tui <file>",
		Short: "Open the query panel in the terminal",
		Long: `Open a full-screen query editor with a results panel for a data file.

Keys:
  ctrl+r  run the query
  ctrl+j  show or hide the results panel
  ctrl+p  run and keep the panel open
  ctrl+t  switch between SQL and Starlark
  tab     move focus between editor and results`,
		Example: `  querypad tui orders.parquet`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", "structured", "Initial query mode")
	cmd.Flags().StringVar(&opts.ActionLanguage, "action-language", "", "Language of a queued action")
	cmd.Flags().StringVar(&opts.ActionQuery, "action-query", "", "Query text of a queued action, applied when the panel opens")
	addEngineFlags(cmd)

	return cmd
}

func runTUI(cmd *cobra.Command, path string, opts *TUIOptions) error {
	mode, err := query.ParseMode(opts.Mode)
	if err != nil {
		return err
	}

	cmdCtx, cleanup := NewCommandContext(cmd, nil)
	defer cleanup()

	s := cmdCtx.NewSession(mode)
	if err := OpenFile(s, path); err != nil {
		return err
	}
	if opts.ActionQuery != "" {
		if err := s.QueueAction(opts.ActionLanguage, opts.ActionQuery); err != nil {
			return err
		}
	}

	p := tea.NewProgram(tui.New(cmd.Context(), s),
		tea.WithAltScreen(),
		tea.WithContext(cmd.Context()),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
