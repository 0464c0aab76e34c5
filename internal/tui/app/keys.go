package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the viewer.
type KeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Escape key.Binding
	Quit   key.Binding
	Chat   key.Binding
	Agents key.Binding
	React  key.Binding
}

// Reactions maps the number keys to emoji.
var Reactions = map[string]string{
	"1": "🔥",
	"2": "👀",
	"3": "🤯",
	"4": "👏",
	"5": "🚀",
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "scroll chat / prev agent"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "scroll chat / next agent"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send / watch"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel / close"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Chat: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "chat"),
		),
		Agents: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "agents"),
		),
		React: key.NewBinding(
			key.WithKeys("1", "2", "3", "4", "5"),
			key.WithHelp("1-5", "react"),
		),
	}
}
