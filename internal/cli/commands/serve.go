package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/leapstack-labs/querypad/internal/metrics"
	"github.com/leapstack-labs/querypad/internal/ui"
	"github.com/spf13/cobra"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	NoBrowser bool
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve [file]",
		Short: "Start the web query panel",
		Long: `Start a local web server with the query panel.

Each browser gets its own session with history and bookmarks. When a file
is given it becomes the active file of every new session; other files can
be opened from the panel. Active files are watched and reloaded on change.

Other tools can queue a query for the panel:
  curl -X POST localhost:8765/api/actions -d '{"language":"sql","query":"SELECT 1"}'`,
		Example: `  # Serve with a file
  querypad serve orders.csv

  # Custom port, no file watching
  querypad serve --port 3000 --watch=false`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := ""
			if len(args) == 1 {
				file = args[0]
			}
			return runServe(cmd, file, opts)
		},
	}

	cmd.Flags().Int("port", 0, "Port to serve on (default: 8765)")
	cmd.Flags().Bool("watch", true, "Reload active files when they change on disk")
	cmd.Flags().Int("panel-height", 0, "Initial results panel height in pixels (default: 320)")
	cmd.Flags().BoolVar(&opts.NoBrowser, "no-browser", false, "Don't auto-open browser")
	addEngineFlags(cmd)

	return cmd
}

func runServe(cmd *cobra.Command, file string, opts *ServeOptions) error {
	cmdCtx, cleanup := NewCommandContext(cmd, metrics.New())
	defer cleanup()

	uiCfg := cmdCtx.Cfg.UI
	secret := uiCfg.SessionSecret
	if secret == "" {
		// Sessions do not outlive the process, so a fresh secret is enough.
		var err error
		if secret, err = generateSessionSecret(); err != nil {
			return err
		}
	}

	server := ui.NewServer(ui.Config{
		App:           cmdCtx.App,
		Port:          uiCfg.Port,
		Watch:         uiCfg.Watch,
		SessionSecret: secret,
		PanelHeight:   uiCfg.PanelHeight,
		MaxSessions:   uiCfg.MaxSessions,
		Logger:        cmdCtx.Logger,
		FilePath:      file,
		OnSave:        writeBack,
	})

	url := fmt.Sprintf("http://localhost:%d", uiCfg.Port)
	if !opts.NoBrowser {
		go openBrowser(url)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Query panel on %s\n", url)
	_, _ = fmt.Fprintln(out, "Press Ctrl+C to stop")

	return server.Serve(cmd.Context())
}

func generateSessionSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// openBrowser opens the default browser to the specified URL.
func openBrowser(url string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url) //nolint:noctx
	case "linux":
		cmd = exec.Command("xdg-open", url) //nolint:noctx
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url) //nolint:noctx
	default:
		return
	}

	_ = cmd.Start()
}
