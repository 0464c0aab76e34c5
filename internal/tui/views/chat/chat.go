// Package chat renders the scrollable viewer chat and reaction log.
package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/kulti/stream/internal/tui/theme"
)

const maxEntries = 200

// Entry kinds.
const (
	KindChat     = "chat"
	KindReaction = "react"
	KindSystem   = "sys"
)

type Entry struct {
	Time time.Time
	Kind string
	From string
	Text string
}

// Model holds the chat log. Offset scrolls from the bottom.
type Model struct {
	Entries []Entry
	Offset  int
}

func New() Model {
	return Model{}
}

// Add appends an entry, caps the buffer and scrolls back to the newest.
func (m *Model) Add(kind, from, text string) {
	m.Entries = append(m.Entries, Entry{Time: time.Now(), Kind: kind, From: from, Text: text})
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	m.Offset = 0
}

func (m *Model) ScrollUp(n int) {
	m.Offset += n
	max := len(m.Entries) - 1
	if max < 0 {
		max = 0
	}
	if m.Offset > max {
		m.Offset = max
	}
}

func (m *Model) ScrollDown(n int) {
	m.Offset -= n
	if m.Offset < 0 {
		m.Offset = 0
	}
}

// View renders the newest entries that fit in height lines.
func (m Model) View(width, height int) string {
	innerW := width - 4
	if innerW < 20 {
		innerW = 20
	}
	visible := height - 3
	if visible < 1 {
		visible = 1
	}

	title := theme.StyleHeader.Render("CHAT")
	if len(m.Entries) == 0 {
		body := theme.StyleDimmed.Render("No messages yet. Press c to chat.")
		return panel(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, body))
	}

	end := len(m.Entries) - m.Offset
	start := end - visible
	if start < 0 {
		start = 0
	}
	if end < 0 {
		end = 0
	}

	var lines []string
	for _, e := range m.Entries[start:end] {
		ts := theme.StyleDimmed.Render(e.Time.Format("15:04"))
		from := lipgloss.NewStyle().Foreground(kindColor(e.Kind)).Render(e.From)
		text := e.Text
		if max := innerW - len(e.From) - 8; max > 3 && len(text) > max {
			text = text[:max-3] + "..."
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", ts, from, text))
	}
	if m.Offset > 0 {
		lines = append(lines, theme.StyleDimmed.Render(fmt.Sprintf("↓ %d more", m.Offset)))
	}

	return panel(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")))
}

func panel(width int) lipgloss.Style {
	return theme.StyleBorder.Width(width).Padding(0, 1)
}

func kindColor(kind string) lipgloss.Color {
	switch kind {
	case KindChat:
		return theme.ColorObservation
	case KindReaction:
		return theme.ColorEvaluation
	case KindSystem:
		return theme.ColorDimmed
	default:
		return theme.ColorDefault
	}
}
