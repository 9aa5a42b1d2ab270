package tui

import "github.com/charmbracelet/lipgloss"

type styles struct {
	Title lipgloss.Style
	Mode  lipgloss.Style
	Muted lipgloss.Style
	Panel lipgloss.Style
}

func newStyles() styles {
	return styles{
		Title: lipgloss.NewStyle().Bold(true),
		Mode:  lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("14")),
		Muted: lipgloss.NewStyle().Faint(true),
		Panel: lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true, false, false, false).BorderForeground(lipgloss.Color("8")),
	}
}
