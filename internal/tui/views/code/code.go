// Package code renders the file the agent touched last, or its diff.
package code

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"

	"github.com/kulti/stream/internal/tui/theme"
	"github.com/kulti/stream/pkg/kulti"
)

var (
	styleAdded   = lipgloss.NewStyle().Foreground(theme.ColorHealthy)
	styleRemoved = lipgloss.NewStyle().Foreground(theme.ColorDanger)
	styleLineNo  = lipgloss.NewStyle().Foreground(theme.ColorDimmed).Width(4).Align(lipgloss.Right)
)

// View renders the diff when it belongs to the current file, otherwise the
// head of the file content.
func View(c *kulti.Code, d *kulti.Diff, width, height int) string {
	innerW := max(width-4, 20)
	visible := max(height-3, 1)

	if c == nil {
		return panel(innerW).Render(lipgloss.JoinVertical(lipgloss.Left,
			theme.StyleHeader.Render("CODE"), theme.StyleDimmed.Render("No code yet.")))
	}

	header := theme.StyleHeader.Render(c.Filename) + " " +
		theme.StyleDimmed.Render(fmt.Sprintf("%s · %s", c.Language, c.Action))

	var rows []string
	if d != nil && d.Filename == c.Filename && len(d.Hunks) > 0 {
		rows = diffRows(d, innerW)
	} else {
		rows = contentRows(c, innerW-5, visible)
	}
	if len(rows) > visible {
		rows = rows[:visible]
	}
	return panel(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, header, strings.Join(rows, "\n")))
}

// contentRows clips the visible lines before highlighting so escape
// sequences never get cut.
func contentRows(c *kulti.Code, width, visible int) []string {
	lines := strings.Split(c.Content, "\n")
	if len(lines) > visible {
		lines = lines[:visible]
	}
	for i, l := range lines {
		lines[i] = clip(l, width)
	}
	lines = highlight(lines, c.Language)

	rows := make([]string, len(lines))
	for i, l := range lines {
		rows[i] = styleLineNo.Render(fmt.Sprint(i+1)) + " " + l
	}
	return rows
}

func highlight(lines []string, language string) []string {
	if language == "" || language == "text" {
		return lines
	}
	var b strings.Builder
	if err := quick.Highlight(&b, strings.Join(lines, "\n"), language, "terminal256", "monokai"); err != nil {
		return lines
	}
	out := strings.Split(strings.TrimSuffix(b.String(), "\n"), "\n")
	if len(out) < len(lines) {
		return lines
	}
	// The lexer adds a trailing newline whose reset code lands on an extra line.
	last := len(lines) - 1
	out[last] += strings.Join(out[len(lines):], "")
	return out[:len(lines)]
}

func diffRows(d *kulti.Diff, width int) []string {
	var rows []string
	for _, h := range d.Hunks {
		for _, l := range h.Removed {
			rows = append(rows, styleRemoved.Render("- "+clip(l, width-2)))
		}
		for _, l := range h.Added {
			rows = append(rows, styleAdded.Render("+ "+clip(l, width-2)))
		}
	}
	return rows
}

func clip(s string, n int) string {
	s = strings.ReplaceAll(s, "\t", "    ")
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}

func panel(width int) lipgloss.Style {
	return theme.StyleBorder.Width(width).Padding(0, 1)
}
