// Package thoughts renders the agent's thought stream as markdown.
package thoughts

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/kulti/stream/internal/tui/client"
	"github.com/kulti/stream/internal/tui/theme"
)

// shown caps how many recent thoughts are rendered per frame.
const shown = 20

// Model caches a glamour renderer per wrap width.
type Model struct {
	renderer *glamour.TermRenderer
	wrap     int
}

func New() *Model {
	return &Model{}
}

// Markdown builds the markdown document for the newest thoughts.
func Markdown(thoughts []client.Thought, thinking string) string {
	if len(thoughts) > shown {
		thoughts = thoughts[len(thoughts)-shown:]
	}
	var b strings.Builder
	for _, t := range thoughts {
		typ := t.Type
		if typ == "" {
			typ = "general"
		}
		b.WriteString("**" + typ + "** " + escape(t.Content) + "\n\n")
	}
	if thinking != "" {
		b.WriteString("> " + escape(thinking) + "\n")
	}
	return b.String()
}

// escape keeps agent text from being read as markdown structure.
func escape(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.NewReplacer("*", `\*`, "_", `\_`, "`", "\\`", "#", `\#`, "[", `\[`).Replace(s)
}

// View renders thoughts into a width x height panel, keeping the newest
// lines when the output is taller than the panel.
func (m *Model) View(thoughts []client.Thought, thinking string, width, height int) string {
	innerW := max(width-4, 20)
	visible := max(height-3, 1)

	title := theme.StyleHeader.Render("THOUGHTS")
	if len(thoughts) == 0 && thinking == "" {
		return panel(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title,
			theme.StyleDimmed.Render("Waiting for the agent to think...")))
	}

	md := Markdown(thoughts, thinking)
	out, err := m.render(md, innerW)
	if err != nil {
		out = md
	}
	rows := strings.Split(strings.Trim(out, "\n"), "\n")
	if len(rows) > visible {
		rows = rows[len(rows)-visible:]
	}
	return panel(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(rows, "\n")))
}

func (m *Model) render(md string, wrap int) (string, error) {
	if m.renderer == nil || m.wrap != wrap {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(wrap-2),
		)
		if err != nil {
			return "", err
		}
		m.renderer, m.wrap = r, wrap
	}
	return m.renderer.Render(md)
}

func panel(width int) lipgloss.Style {
	return theme.StyleBorder.Width(width).Padding(0, 1)
}
