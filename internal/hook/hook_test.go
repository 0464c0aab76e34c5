package hook

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kulti/stream/pkg/kulti"
)

type captureSender struct{ sent []*kulti.Payload }

func (c *captureSender) Send(_ context.Context, p *kulti.Payload) error {
	c.sent = append(c.sent, p)
	return nil
}

func TestTranslatePreToolUse(t *testing.T) {
	p, err := Translate(PreToolUse, []byte(`{"tool_name":"Bash","tool_input":{"command":"go test ./..."}}`))
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NotNil(t, p.Thought)
	assert.Equal(t, kulti.ThoughtTool, p.Thought.Type)
	assert.Equal(t, "Running: go test ./...", p.Thought.Content)
	assert.Equal(t, kulti.StatusWorking, p.Status)
}

func TestTranslatePostToolUseStringInput(t *testing.T) {
	body := `{"tool_name":"Write","tool_input":"{\"file_path\":\"/repo/main.go\",\"content\":\"package main\"}"}`
	p, err := Translate(PostToolUse, []byte(body))
	require.NoError(t, err)
	require.NotNil(t, p.Code)
	assert.Equal(t, "main.go", p.Code.Filename)
	assert.Equal(t, "package main", p.Code.Content)
}

func TestTranslateEventFromBody(t *testing.T) {
	p, err := Translate("", []byte(`{"hook_event_name":"UserPromptSubmit","prompt":"fix the build"}`))
	require.NoError(t, err)
	require.NotNil(t, p.Thought)
	assert.Equal(t, kulti.ThoughtPrompt, p.Thought.Type)
	assert.Equal(t, "User: fix the build", p.Thought.Content)
}

func TestTranslatePromptFromMessageObject(t *testing.T) {
	p, err := Translate(UserPromptSubmit, []byte(`{"message":{"content":"hello"}}`))
	require.NoError(t, err)
	assert.Equal(t, "User: hello", p.Thought.Content)
}

func TestTranslateLifecycle(t *testing.T) {
	p, err := Translate(Stop, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, kulti.StatusThinking, p.Status)
	assert.Equal(t, "Turn complete", p.Thought.Content)

	p, err = Translate(SubagentStart, []byte(`{"subagent_type":"explorer"}`))
	require.NoError(t, err)
	assert.Equal(t, "Subagent started: explorer", p.Thought.Content)

	p, err = Translate(SubagentStop, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "Subagent finished: subagent", p.Thought.Content)
}

func TestTranslateIgnored(t *testing.T) {
	p, err := Translate("Notification", []byte(`{}`))
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = Translate(PreToolUse, []byte("  \n"))
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = Translate(PreToolUse, []byte(`not json`))
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	s := &captureSender{}
	require.NoError(t, Run(context.Background(), strings.NewReader(`{"tool_name":"Read","tool_input":{"file_path":"/a/b.go"}}`), PreToolUse, s))
	require.Len(t, s.sent, 1)
	assert.Equal(t, "Reading: b.go", s.sent[0].Thought.Content)

	require.NoError(t, Run(context.Background(), strings.NewReader(`{}`), "Unknown", s))
	assert.Len(t, s.sent, 1)
}
