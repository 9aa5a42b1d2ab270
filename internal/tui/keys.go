package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	TogglePanel key.Binding
	Run         key.Binding
	RunAndPin   key.Binding
	SwitchMode  key.Binding
	Focus       key.Binding
	Sort        key.Binding
	NextPage    key.Binding
	PrevPage    key.Binding
	Bookmark    key.Binding
	History     key.Binding
	Quit        key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		TogglePanel: key.NewBinding(key.WithKeys("ctrl+j"), key.WithHelp("ctrl+j", "panel")),
		Run:         key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "run")),
		RunAndPin:   key.NewBinding(key.WithKeys("ctrl+p"), key.WithHelp("ctrl+p", "run & pin")),
		SwitchMode:  key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "sql/starlark")),
		Focus:       key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "focus")),
		Sort:        key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", "sort")),
		NextPage:    key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "next page")),
		PrevPage:    key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "prev page")),
		Bookmark:    key.NewBinding(key.WithKeys("ctrl+k"), key.WithHelp("ctrl+k", "bookmark")),
		History:     key.NewBinding(key.WithKeys("ctrl+y"), key.WithHelp("ctrl+y", "last query")),
		Quit:        key.NewBinding(key.WithKeys("ctrl+c", "esc"), key.WithHelp("esc", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Run, k.TogglePanel, k.RunAndPin, k.SwitchMode, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Run, k.RunAndPin, k.TogglePanel, k.SwitchMode},
		{k.Focus, k.Sort, k.NextPage, k.PrevPage},
		{k.Bookmark, k.History, k.Quit},
	}
}
