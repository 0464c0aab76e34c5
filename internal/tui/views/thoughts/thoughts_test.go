package thoughts

import (
	"strings"
	"testing"

	"github.com/kulti/stream/internal/tui/client"
)

func TestMarkdown(t *testing.T) {
	md := Markdown([]client.Thought{
		{Type: "reasoning", Content: "use *OAuth*"},
		{Content: "line\nbreak"},
	}, "weighing options")

	for _, want := range []string{`**reasoning** use \*OAuth\*`, "**general** line break", "> weighing options"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestMarkdownKeepsNewest(t *testing.T) {
	var ts []client.Thought
	for i := 0; i < shown+5; i++ {
		ts = append(ts, client.Thought{Type: "general", Content: "old"})
	}
	ts[len(ts)-1].Content = "newest"
	md := Markdown(ts, "")
	if got := strings.Count(md, "**general**"); got != shown {
		t.Errorf("rendered %d thoughts, want %d", got, shown)
	}
	if !strings.Contains(md, "newest") {
		t.Error("newest thought missing")
	}
}

func TestViewRenders(t *testing.T) {
	m := New()
	v := m.View([]client.Thought{{Type: "decision", Content: "ship"}}, "", 60, 12)
	if !strings.Contains(v, "THOUGHTS") || !strings.Contains(v, "ship") {
		t.Errorf("view missing content:\n%s", v)
	}
	if v := m.View(nil, "", 60, 12); !strings.Contains(v, "Waiting") {
		t.Error("empty view should say it is waiting")
	}
}
