package kulti

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

var languages = map[string]string{
	"ts":         "typescript",
	"tsx":        "typescript",
	"js":         "javascript",
	"jsx":        "javascript",
	"py":         "python",
	"sql":        "sql",
	"css":        "css",
	"html":       "html",
	"json":       "json",
	"md":         "markdown",
	"yml":        "yaml",
	"yaml":       "yaml",
	"sh":         "bash",
	"bash":       "bash",
	"zsh":        "bash",
	"rs":         "rust",
	"go":         "go",
	"rb":         "ruby",
	"java":       "java",
	"swift":      "swift",
	"kt":         "kotlin",
	"c":          "c",
	"cpp":        "cpp",
	"h":          "c",
	"toml":       "toml",
	"xml":        "xml",
	"svg":        "xml",
	"graphql":    "graphql",
	"gql":        "graphql",
	"dockerfile": "dockerfile",
}

// Language maps a filename to the highlighter language used by viewers.
// Unknown or missing extensions map to "text".
func Language(filename string) string {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 {
		return "text"
	}
	if lang, ok := languages[strings.ToLower(filename[i+1:])]; ok {
		return lang
	}
	return "text"
}

const truncatedSuffix = "... (truncated)"

// Truncate shortens s to at most max runes and marks the cut.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i] + truncatedSuffix
		}
		n++
	}
	return s
}

// TruncateValue is Truncate for arbitrary tool results.
func TruncateValue(v any, max int) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return Truncate(t, max)
	case fmt.Stringer:
		return Truncate(t.String(), max)
	default:
		return Truncate(fmt.Sprint(t), max)
	}
}

// ShortPath returns the last path element.
func ShortPath(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return path
	}
	return path[i+1:]
}
