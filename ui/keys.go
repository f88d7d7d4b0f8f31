package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Start     key.Binding
	Stop      key.Binding
	Prev      key.Binding
	Next      key.Binding
	Play      key.Binding
	Label     key.Binding
	Copy      key.Binding
	Reanalyze key.Binding
	Quit      key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Start: key.NewBinding(
			key.WithKeys("p", " "),
			key.WithHelp("p/space", "explain all"),
		),
		Stop: key.NewBinding(
			key.WithKeys("s", "esc"),
			key.WithHelp("s/esc", "stop"),
		),
		Prev: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "prev"),
		),
		Next: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→/l", "next"),
		),
		Play: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "play label"),
		),
		Label: key.NewBinding(
			key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"),
			key.WithHelp("1-9", "play label n"),
		),
		Copy: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "copy"),
		),
		Reanalyze: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "re-analyze"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Stop, k.Prev, k.Next, k.Play, k.Label, k.Copy, k.Reanalyze, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Start, k.Stop},
		{k.Prev, k.Next, k.Play, k.Label},
		{k.Copy, k.Reanalyze, k.Quit},
	}
}
