package persist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kulti/stream/internal/stream"
)

type fakeSink struct {
	mu      sync.Mutex
	ingests []IngestRecord
	chats   []ChatRecord
	err     error
	block   chan struct{}
}

func (s *fakeSink) PersistIngest(ctx context.Context, rec IngestRecord) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.ingests = append(s.ingests, rec)
	return nil
}

func (s *fakeSink) PersistChat(_ context.Context, rec ChatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.chats = append(s.chats, rec)
	return nil
}

func (s *fakeSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ingests), len(s.chats)
}

func ingestJob(t *testing.T, agent, body string) Job {
	t.Helper()
	u, err := stream.ParseUpdate([]byte(body))
	require.NoError(t, err)
	return Job{Ingest: &IngestRecord{Session: stream.SessionInfo{AgentID: agent}, Update: u, At: time.Now()}}
}

func TestOutboxDropsWhenFull(t *testing.T) {
	sink := &fakeSink{}
	o := NewOutbox(sink, OutboxConfig{Capacity: 2, WriteTimeout: time.Second})

	require.NoError(t, o.Enqueue(ingestJob(t, "a", `{}`)))
	require.NoError(t, o.Enqueue(ingestJob(t, "a", `{}`)))
	err := o.Enqueue(ingestJob(t, "a", `{}`))
	assert.ErrorIs(t, err, ErrOutboxFull)

	st := o.Stats()
	assert.Equal(t, 2, st.Depth)
	assert.Equal(t, int64(2), st.Enqueued)
	assert.Equal(t, int64(1), st.Dropped)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Close(ctx))

	ingests, _ := sink.counts()
	assert.Equal(t, 2, ingests, "Close drains queued jobs")
	assert.ErrorIs(t, o.Enqueue(ingestJob(t, "a", `{}`)), ErrClosed)
}

func TestOutboxPersistsIngestAndChat(t *testing.T) {
	sink := &fakeSink{}
	o := NewOutbox(sink, OutboxConfig{Capacity: 8, WriteTimeout: time.Second, FailureThreshold: 3})
	o.Start()

	require.NoError(t, o.Enqueue(ingestJob(t, "a", `{"thinking":"x"}`)))
	require.NoError(t, o.Enqueue(Job{Chat: &ChatRecord{AgentID: "a", Message: "hi"}}))

	require.NoError(t, o.Close(context.Background()))
	ingests, chats := sink.counts()
	assert.Equal(t, 1, ingests)
	assert.Equal(t, 1, chats)

	st := o.Stats()
	assert.Equal(t, int64(2), st.Persisted)
	assert.Equal(t, StatusHealthy, st.Health)
}

func TestOutboxHealthTransitions(t *testing.T) {
	sink := &fakeSink{err: errors.New("connection refused")}
	o := NewOutbox(sink, OutboxConfig{Capacity: 8, WriteTimeout: time.Second, FailureThreshold: 3})

	o.process(ingestJob(t, "a", `{}`))
	assert.Equal(t, StatusDegraded, o.Stats().Health)

	o.process(ingestJob(t, "a", `{}`))
	o.process(ingestJob(t, "a", `{}`))
	st := o.Stats()
	assert.Equal(t, StatusFailed, st.Health)
	assert.Equal(t, int64(3), st.Failed)
	assert.Equal(t, "connection refused", st.LastError)
	assert.NotNil(t, st.LastFailure)

	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()
	o.process(ingestJob(t, "a", `{}`))
	assert.Equal(t, StatusHealthy, o.Stats().Health)
}

func TestOutboxWriteTimeout(t *testing.T) {
	sink := &fakeSink{block: make(chan struct{})}
	o := NewOutbox(sink, OutboxConfig{Capacity: 1, WriteTimeout: 20 * time.Millisecond})

	start := time.Now()
	o.process(ingestJob(t, "a", `{}`))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, int64(1), o.Stats().Failed)
}

func TestCloseBeforeStartDrains(t *testing.T) {
	sink := &fakeSink{}
	o := NewOutbox(sink, OutboxConfig{Capacity: 4})
	require.NoError(t, o.Enqueue(ingestJob(t, "a", `{}`)))
	require.NoError(t, o.Close(context.Background()))
	ingests, _ := sink.counts()
	assert.Equal(t, 1, ingests)
}

func TestBuildEvents(t *testing.T) {
	u, err := stream.ParseUpdate([]byte(`{
		"thinking": "ignored because a thought is present",
		"thought": {"type": "decision", "content": "use pg", "priority": "headline"},
		"diff": {"filename": "a.go", "language": "go", "hunks": [{"start": 1, "removed": ["a"], "added": ["b"]}]},
		"goal": {"title": "ship"},
		"milestone": {"label": "tests", "completed": true},
		"error": {"message": "boom", "line": 3},
		"code": [{"filename": "a.go"}, {"content": "x"}],
		"terminal": [{"content": "$ ls"}],
		"art": {"status": "generating", "prompt": "cat"}
	}`))
	require.NoError(t, err)

	events := BuildEvents(u)
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	assert.Equal(t, []string{
		EventThought, EventDiff, EventGoal, EventMilestone, EventError,
		EventCode, EventCode, EventTerminal, EventArtStart,
	}, types)

	assert.Equal(t, "decision", events[0].Data["thoughtType"])
	assert.Equal(t, "headline", events[0].Data["priority"])
	assert.Equal(t, 3, events[4].Data["line"])
	assert.Equal(t, "unknown", events[6].Data["filename"])
	assert.Equal(t, "plaintext", events[6].Data["language"])
	assert.Equal(t, "write", events[6].Data["action"])
	assert.Equal(t, "info", events[7].Data["type"])
	assert.Nil(t, ArtCompletion(u))
}

func TestBuildEventsThinkingOnly(t *testing.T) {
	u, err := stream.ParseUpdate([]byte(`{"thinking":"hmm"}`))
	require.NoError(t, err)
	events := BuildEvents(u)
	require.Len(t, events, 1)
	assert.Equal(t, EventThinking, events[0].Type)
	assert.Equal(t, "hmm", events[0].Data["content"])
}

func TestArtCompletion(t *testing.T) {
	u, err := stream.ParseUpdate([]byte(`{"art":{"status":"complete","image_url":"https://img/1.png","prompt":"cat"}}`))
	require.NoError(t, err)
	art := ArtCompletion(u)
	require.NotNil(t, art)
	assert.Empty(t, BuildEvents(u))

	ev := ArtCompleteEvent(art, "42")
	assert.Equal(t, EventArtComplete, ev.Type)
	assert.Equal(t, "42", ev.Data["art_id"])
	assert.NotContains(t, ArtCompleteEvent(art, "").Data, "art_id")
}

func TestSessionStatus(t *testing.T) {
	assert.Equal(t, "live", SessionStatus("working"))
	assert.Equal(t, "live", SessionStatus("thinking"))
	assert.Equal(t, "paused", SessionStatus("paused"))
}

func TestLogSink(t *testing.T) {
	job := ingestJob(t, "a", `{"thinking":"x"}`)
	assert.NoError(t, LogSink{}.PersistIngest(context.Background(), *job.Ingest))
	assert.NoError(t, LogSink{}.PersistChat(context.Background(), ChatRecord{AgentID: "a"}))
}
