package kulti

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLanguage(t *testing.T) {
	cases := map[string]string{
		"main.go":          "go",
		"App.TSX":          "typescript",
		"deploy.yml":       "yaml",
		"build.Dockerfile": "dockerfile",
		"README":           "text",
		"image.webp":       "text",
		"":                 "text",
	}
	for name, want := range cases {
		assert.Equal(t, want, Language(name), name)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 5))
	assert.Equal(t, "hel... (truncated)", Truncate("hello", 3))
	assert.Equal(t, "日本... (truncated)", Truncate("日本語", 2))
	assert.Equal(t, "", TruncateValue(nil, 3))
	assert.Equal(t, "123... (truncated)", TruncateValue(123456, 3))
}

func TestShortPath(t *testing.T) {
	assert.Equal(t, "main.go", ShortPath("/a/b/main.go"))
	assert.Equal(t, "main.go", ShortPath("main.go"))
	assert.Equal(t, "", ShortPath("dir/"))
}
