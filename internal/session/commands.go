package session

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/querypad/internal/query"
)

// Command is a keyboard-triggered action decoded by a host.
type Command string

// Commands.
const (
	CommandTogglePanel Command = "toggle-panel"
	CommandRunQuery    Command = "run-query"
	CommandRunAndPin   Command = "run-and-pin"
)

// Commands lists every command a host may dispatch.
func Commands() []Command {
	return []Command{CommandTogglePanel, CommandRunQuery, CommandRunAndPin}
}

// Dispatch applies a command. The result is non-nil only when a run
// actually happened.
func (s *Session) Dispatch(ctx context.Context, cmd Command) (*query.Result, error) {
	switch cmd {
	case CommandTogglePanel:
		s.TogglePanel()
		return nil, nil
	case CommandRunQuery:
		res, _ := s.Run(ctx)
		return res, nil
	case CommandRunAndPin:
		s.OpenPanel()
		res, _ := s.Run(ctx)
		return res, nil
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

// Template returns the starter query for a mode and file extension.
func Template(mode query.Mode, ext string) string {
	if mode == query.ModeScripting {
		switch ext {
		case "json", "jsonl", "ndjson", "yaml", "yml":
			return "data"
		case "csv", "tsv", "xlsx":
			return "data.head(10)"
		default:
			return "print(content[:500])"
		}
	}

	if ext == "parquet" {
		return "DESCRIBE data"
	}
	return "SELECT * FROM data LIMIT 100"
}
