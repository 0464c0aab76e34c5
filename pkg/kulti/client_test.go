package kulti

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	path   string
	key    string
	body   map[string]any
	status int
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{status: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.path = r.URL.Path
		c.key = r.Header.Get("X-Kulti-Key")
		raw, _ := io.ReadAll(r.Body)
		c.body = map[string]any{}
		_ = json.Unmarshal(raw, &c.body)
		w.WriteHeader(c.status)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func TestClientThoughtMethods(t *testing.T) {
	srv, got := newCaptureServer(t, http.StatusOK)
	c := New(Config{AgentID: "nex", Server: srv.URL + "/", APIKey: "secret"})
	ctx := context.Background()

	require.NoError(t, c.Evaluate(ctx, "pick a db", []string{"pg", "sqlite"}, "pg"))
	assert.Equal(t, "/hook", got.path)
	assert.Equal(t, "secret", got.key)
	assert.Equal(t, "nex", got.body["agent_id"])

	th := got.body["thought"].(map[string]any)
	assert.Equal(t, "evaluation", th["type"])
	assert.Equal(t, "pick a db", th["content"])
	meta := th["metadata"].(map[string]any)
	assert.Equal(t, "pg", meta["chosen"])
	assert.Equal(t, []any{"pg", "sqlite"}, meta["options"])

	require.NoError(t, c.Context(ctx, "reading config", "config.yaml"))
	th = got.body["thought"].(map[string]any)
	assert.Equal(t, "context", th["type"])
	assert.Equal(t, "config.yaml", th["metadata"].(map[string]any)["file"])

	require.NoError(t, c.Think(ctx, "hmm"))
	th = got.body["thought"].(map[string]any)
	assert.Equal(t, "general", th["type"])
	assert.NotContains(t, th, "metadata")
}

func TestClientCode(t *testing.T) {
	srv, got := newCaptureServer(t, http.StatusOK)
	c := New(Config{AgentID: "nex", Server: srv.URL})

	require.NoError(t, c.Code(context.Background(), "gone.rs", "", ActionDelete))
	code := got.body["code"].(map[string]any)
	assert.Equal(t, "write", code["action"])
	assert.Equal(t, "rust", code["language"])
	assert.Equal(t, float64(1), got.body["stats"].(map[string]any)["files"])
}

func TestClientTerminalReplace(t *testing.T) {
	srv, got := newCaptureServer(t, http.StatusOK)
	c := New(Config{AgentID: "nex", Server: srv.URL})

	require.NoError(t, c.Terminal(context.Background(), []TerminalLine{{Type: "output", Content: "hi"}}, false))
	assert.Equal(t, false, got.body["terminal_append"])

	require.NoError(t, c.Terminal(context.Background(), []TerminalLine{{Type: "output", Content: "hi"}}, true))
	assert.NotContains(t, got.body, "terminal_append")
}

func TestClientStatusError(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusUnauthorized)
	c := New(Config{AgentID: "nex", Server: srv.URL})

	err := c.Live(context.Background())
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Code)
}

func TestClientDefaults(t *testing.T) {
	c := New(Config{AgentID: "a"})
	assert.Equal(t, DefaultServer, c.server)
	assert.Equal(t, defaultTimeout, c.http.Timeout)
	assert.Equal(t, "https://kulti.club/ai/watch/a", c.WatchURL())
}
