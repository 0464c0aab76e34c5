package kulti

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTool(t *testing.T) {
	cases := map[string]Tool{
		"Bash":          ToolExec,
		"shell":         ToolExec,
		"Write":         ToolWriteFile,
		"create_file":   ToolWriteFile,
		"apply_diff":    ToolEditFile,
		"Grep":          ToolSearch,
		"Task":          ToolDelegate,
		"memory_search": ToolMemory,
		"frobnicate":    ToolUnknown,
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeTool(raw), raw)
	}
}

func TestClassifyBefore(t *testing.T) {
	t.Run("exec prefers description", func(t *testing.T) {
		p := ClassifyBefore(ToolEvent{ToolName: "Bash", Params: map[string]any{
			"command":     "go test ./...",
			"description": "run tests",
		}})
		require.NotNil(t, p.Thought)
		assert.Equal(t, ThoughtTool, p.Thought.Type)
		assert.Equal(t, "Running: run tests", p.Thought.Content)
		assert.Equal(t, PriorityWorking, p.Thought.Priority)
		assert.Equal(t, "go test ./...", p.Thought.Metadata["command"])
		assert.Equal(t, StatusWorking, p.Status)
	})

	t.Run("read is detail", func(t *testing.T) {
		p := ClassifyBefore(ToolEvent{ToolName: "Read", Params: map[string]any{"file_path": "/src/app/main.go"}})
		assert.Equal(t, ThoughtObservation, p.Thought.Type)
		assert.Equal(t, "Reading: main.go", p.Thought.Content)
		assert.Equal(t, PriorityDetail, p.Thought.Priority)
		assert.Equal(t, "/src/app/main.go", p.Thought.Metadata["file"])
	})

	t.Run("delegate is headline", func(t *testing.T) {
		p := ClassifyBefore(ToolEvent{ToolName: "Task", Params: map[string]any{"prompt": "find the bug"}})
		assert.Equal(t, ThoughtReasoning, p.Thought.Type)
		assert.Equal(t, "Delegating: find the bug", p.Thought.Content)
		assert.Equal(t, PriorityHeadline, p.Thought.Priority)
	})

	t.Run("browser target", func(t *testing.T) {
		p := ClassifyBefore(ToolEvent{ToolName: "browser", Params: map[string]any{"targetUrl": "https://x.dev"}})
		assert.Equal(t, "Browser: browse https://x.dev", p.Thought.Content)
	})

	t.Run("unknown tool", func(t *testing.T) {
		p := ClassifyBefore(ToolEvent{ToolName: "Frob"})
		assert.Equal(t, "Using: Frob", p.Thought.Content)
		assert.Equal(t, PriorityWorking, p.Thought.Priority)
	})
}

func TestClassifyAfterWrite(t *testing.T) {
	p := ClassifyAfter(ToolEvent{ToolName: "Write", Params: map[string]any{
		"file_path": "/repo/web/index.tsx",
		"content":   "export {}",
	}})
	require.NotNil(t, p)
	require.NotNil(t, p.Code)
	assert.Equal(t, "index.tsx", p.Code.Filename)
	assert.Equal(t, "typescript", p.Code.Language)
	assert.Equal(t, ActionWrite, p.Code.Action)
	assert.Equal(t, 1, p.Stats.Files)
	assert.Nil(t, p.Error)
}

func TestClassifyAfterEdit(t *testing.T) {
	p := ClassifyAfter(ToolEvent{ToolName: "Edit", Params: map[string]any{
		"file_path":  "a.py",
		"old_string": "x = 1\ny = 2",
		"new_string": "x = 3",
	}})
	require.NotNil(t, p)
	require.NotNil(t, p.Diff)
	require.Len(t, p.Diff.Hunks, 1)
	assert.Equal(t, []string{"x = 1", "y = 2"}, p.Diff.Hunks[0].Removed)
	assert.Equal(t, []string{"x = 3"}, p.Diff.Hunks[0].Added)
	assert.Equal(t, "--- a.py\n- x = 1\n- y = 2\n+ x = 3\n", p.Code.Content)
	assert.Equal(t, ActionEdit, p.Code.Action)
}

func TestClassifyAfterExec(t *testing.T) {
	p := ClassifyAfter(ToolEvent{ToolName: "Bash", Params: map[string]any{"command": "ls"}, Result: "a\nb"})
	require.NotNil(t, p)
	require.Len(t, p.Terminal, 2)
	assert.Equal(t, TerminalLine{Type: "input", Content: "$ ls"}, p.Terminal[0])
	assert.Equal(t, TerminalLine{Type: "output", Content: "a\nb"}, p.Terminal[1])
	require.NotNil(t, p.TerminalAppend)
	assert.True(t, *p.TerminalAppend)
	assert.Equal(t, 1, p.Stats.Commands)

	quiet := ClassifyAfter(ToolEvent{ToolName: "Bash", Params: map[string]any{"command": "true"}, Result: "  "})
	assert.Len(t, quiet.Terminal, 1)
}

func TestClassifyAfterNothing(t *testing.T) {
	assert.Nil(t, ClassifyAfter(ToolEvent{ToolName: "Read", Result: "package main"}))

	p := ClassifyAfter(ToolEvent{ToolName: "Read", Params: map[string]any{"path": "x.go"}, Result: "ENOENT: no such file"})
	require.NotNil(t, p)
	require.NotNil(t, p.Error)
	assert.Equal(t, "ENOENT: no such file", p.Error.Message)
	assert.Equal(t, "x.go", p.Error.File)
}

func TestDetectError(t *testing.T) {
	assert.Nil(t, DetectError(ToolEvent{Result: "all good"}))
	assert.Nil(t, DetectError(ToolEvent{}))

	info := DetectError(ToolEvent{Result: "building...\nexit code 2\ndone"})
	require.NotNil(t, info)
	assert.Equal(t, "exit code 2", info.Message)
	assert.Empty(t, info.File)

	long := strings.Repeat("x", 3000) + " failed"
	info = DetectError(ToolEvent{Result: long})
	require.NotNil(t, info)
	assert.True(t, strings.HasSuffix(info.Stack, truncatedSuffix))

	structured := DetectError(ToolEvent{Result: map[string]any{"stderr": "Error: boom"}})
	require.NotNil(t, structured)
}
