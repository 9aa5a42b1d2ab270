// Package config loads querypad configuration from defaults, a project file,
// QUERYPAD_ environment variables and command-line flags.
package config

// Config holds all CLI configuration options.
type Config struct {
	LogLevel     string           `koanf:"log_level"`
	Verbose      bool             `koanf:"verbose"`
	OutputFormat string           `koanf:"output"`
	Structured   StructuredConfig `koanf:"structured"`
	Scripting    ScriptingConfig  `koanf:"scripting"`
	UI           UIConfig         `koanf:"ui"`

	// ProjectRoot is the directory relative paths resolve against.
	ProjectRoot string `koanf:"-"`
}

// StructuredConfig configures the embedded DuckDB backend.
type StructuredConfig struct {
	Threads    int      `koanf:"threads"`
	Extensions []string `koanf:"extensions"`
	MaxRows    int      `koanf:"max_rows"`
	TempDir    string   `koanf:"temp_dir"`
}

// ScriptingConfig configures the Starlark backend.
type ScriptingConfig struct {
	ScriptsDir string `koanf:"scripts_dir"`
	MaxSteps   uint64 `koanf:"max_steps"`
}

// UIConfig holds configuration for the web panel.
type UIConfig struct {
	Port          int    `koanf:"port"`
	Watch         bool   `koanf:"watch"`
	SessionSecret string `koanf:"session_secret"`
	PanelHeight   int    `koanf:"panel_height"`
	MaxSessions   int    `koanf:"max_sessions"`
}

// Default configuration values.
const (
	DefaultLogLevel    = "info"
	DefaultOutput      = "auto" // Auto-detect: TTY=table, non-TTY=markdown
	DefaultMaxRows     = 10000
	DefaultScriptsDir  = "scripts"
	DefaultPort        = 8765
	DefaultPanelHeight = 320
	DefaultMaxSessions = 256
)

// DefaultExtensions are loaded into DuckDB at bootstrap.
var DefaultExtensions = []string{"json"}

func defaults() map[string]any {
	return map[string]any{
		"log_level":             DefaultLogLevel,
		"verbose":               false,
		"output":                DefaultOutput,
		"structured.threads":    0,
		"structured.extensions": append([]string(nil), DefaultExtensions...),
		"structured.max_rows":   DefaultMaxRows,
		"structured.temp_dir":   "",
		"scripting.scripts_dir": DefaultScriptsDir,
		"scripting.max_steps":   0,
		"ui.port":               DefaultPort,
		"ui.watch":              true,
		"ui.session_secret":     "",
		"ui.panel_height":       DefaultPanelHeight,
		"ui.max_sessions":       DefaultMaxSessions,
	}
}

// Default returns the configuration used when nothing else is loaded.
func Default() *Config {
	return &Config{
		LogLevel:     DefaultLogLevel,
		OutputFormat: DefaultOutput,
		Structured: StructuredConfig{
			Extensions: append([]string(nil), DefaultExtensions...),
			MaxRows:    DefaultMaxRows,
		},
		Scripting: ScriptingConfig{ScriptsDir: DefaultScriptsDir},
		UI: UIConfig{
			Port:        DefaultPort,
			Watch:       true,
			PanelHeight: DefaultPanelHeight,
			MaxSessions: DefaultMaxSessions,
		},
	}
}
