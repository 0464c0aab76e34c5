package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kulti/stream/internal/fanout"
	"github.com/kulti/stream/internal/persist"
	"github.com/kulti/stream/internal/stream"
)

type viewer struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (v *viewer) Send(data []byte) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.msgs = append(v.msgs, data)
	return true
}

func (v *viewer) last(t *testing.T) map[string]any {
	t.Helper()
	v.mu.Lock()
	defer v.mu.Unlock()
	require.NotEmpty(t, v.msgs)
	var m map[string]any
	require.NoError(t, json.Unmarshal(v.msgs[len(v.msgs)-1], &m))
	return m
}

type outbox struct {
	jobs []persist.Job
	err  error
}

func (o *outbox) Enqueue(job persist.Job) error {
	if o.err != nil {
		return o.err
	}
	o.jobs = append(o.jobs, job)
	return nil
}

type marker struct{ ids []string }

func (m *marker) MarkDirty(id string) { m.ids = append(m.ids, id) }

type publisher struct{ envs []fanout.Envelope }

func (p *publisher) Publish(env fanout.Envelope) error {
	p.envs = append(p.envs, env)
	return nil
}

type hydrator struct {
	calls int
	h     *stream.Hydration
	err   error
}

func (h *hydrator) Hydrate(context.Context, string) (*stream.Hydration, error) {
	h.calls++
	return h.h, h.err
}

var fixedNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func newRelay(opts Options) *Relay {
	opts.Now = func() time.Time { return fixedNow }
	return New(stream.NewRegistry(stream.DefaultLimits()), opts)
}

func TestApplyFeedsSidePaths(t *testing.T) {
	ob, mk, pub := &outbox{}, &marker{}, &publisher{}
	r := newRelay(Options{Outbox: ob, Cache: mk, Publisher: pub})

	u, err := r.Parse([]byte(`{"thinking":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, "nex", u.AgentID)

	res := r.Apply(u, true)
	assert.Equal(t, "nex", res.AgentID)

	require.Len(t, ob.jobs, 1)
	rec := ob.jobs[0].Ingest
	require.NotNil(t, rec)
	assert.Equal(t, "nex", rec.Session.AgentID)
	assert.Equal(t, fixedNow, rec.At)

	assert.Equal(t, []string{"nex"}, mk.ids)
	require.Len(t, pub.envs, 1)
	assert.Equal(t, fanout.KindUpdate, pub.envs[0].Kind)
	assert.True(t, pub.envs[0].Hook)
	assert.JSONEq(t, `{"thinking":"hello"}`, string(pub.envs[0].Payload))
	assert.Equal(t, int64(1), r.Stats().Ingested)
}

func TestApplyPersistenceFailureIsInvisible(t *testing.T) {
	ok := newRelay(Options{Outbox: &outbox{}})
	failing := newRelay(Options{Outbox: &outbox{err: persist.ErrOutboxFull}})

	for _, r := range []*Relay{ok, failing} {
		v := &viewer{}
		agent, _ := r.Connect(context.Background(), "nex", v, stream.ViewerInfo{ID: "v1", Name: "ann"})

		u, err := r.Parse([]byte(`{"agentId":"nex","terminal":{"content":"building..."}}`))
		require.NoError(t, err)
		res := r.Apply(u, false)
		assert.Equal(t, 1, res.Delivered)
		assert.Equal(t, "building...", agent.State().Terminal[0].Content)
	}
	assert.Equal(t, int64(1), failing.Stats().PersistSkipped)
}

func TestApplyWithRealOutboxAndFailingSink(t *testing.T) {
	ob := persist.NewOutbox(failSink{}, persist.OutboxConfig{Capacity: 4, WriteTimeout: time.Second})
	ob.Start()
	r := newRelay(Options{Outbox: ob})

	u, err := r.Parse([]byte(`{"thought":{"content":"x"}}`))
	require.NoError(t, err)
	res := r.Apply(u, false)
	assert.Equal(t, "nex", res.AgentID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ob.Close(ctx))
	assert.Equal(t, int64(1), ob.Stats().Failed)
}

type failSink struct{}

func (failSink) PersistIngest(context.Context, persist.IngestRecord) error {
	return errors.New("session not found")
}

func (failSink) PersistChat(context.Context, persist.ChatRecord) error {
	return errors.New("session not found")
}

func TestApplyRemoteSkipsSidePaths(t *testing.T) {
	ob, pub := &outbox{}, &publisher{}
	r := newRelay(Options{Outbox: ob, Publisher: pub})

	v := &viewer{}
	r.Connect(context.Background(), "nex", v, stream.ViewerInfo{ID: "v1"})

	r.ApplyRemote(fanout.Envelope{Origin: "other", AgentID: "nex", Payload: json.RawMessage(`{"status":"paused"}`)})

	a, ok := r.Registry().Get("nex")
	require.True(t, ok)
	assert.Equal(t, "paused", a.State().Status)
	assert.Equal(t, "paused", v.last(t)["status"])
	assert.Empty(t, ob.jobs)
	assert.Empty(t, pub.envs)
	assert.Equal(t, int64(1), r.Stats().RemoteApplied)

	r.ApplyRemote(fanout.Envelope{Kind: fanout.KindBroadcast, AgentID: "nex", Payload: json.RawMessage(`{"type":"reaction","emoji":"🔥"}`)})
	assert.Equal(t, "🔥", v.last(t)["emoji"])

	r.ApplyRemote(fanout.Envelope{AgentID: "nex", Payload: json.RawMessage(`[1]`)})
	assert.Equal(t, int64(1), r.Stats().RemoteApplied)
}

func TestConnectHydratesOnce(t *testing.T) {
	h := &hydrator{h: &stream.Hydration{Name: "Nexus", Status: "live", Thoughts: []stream.Thought{{ID: "t1", Type: "general", Content: "remembered"}}}}
	r := newRelay(Options{Hydrator: h})

	v := &viewer{}
	agent, n := r.Connect(context.Background(), "", v, stream.ViewerInfo{ID: "v1"})
	assert.Equal(t, 1, n)
	assert.Equal(t, "nex", agent.ID())
	assert.Equal(t, "Nexus", agent.State().AgentName)
	assert.Equal(t, "remembered", agent.State().Thinking)

	r.Connect(context.Background(), "nex", &viewer{}, stream.ViewerInfo{ID: "v2"})
	assert.Equal(t, 1, h.calls)

	var snap map[string]any
	require.NoError(t, json.Unmarshal(v.msgs[0], &snap))
	assert.Equal(t, "remembered", snap["thinking"])
}

func TestConnectAfterIngestKeepsLiveState(t *testing.T) {
	h := &hydrator{h: &stream.Hydration{Status: "live", Thoughts: []stream.Thought{
		{ID: "t0", Type: "general", Content: "older thought"},
		{ID: "t1", Type: "general", Content: "live thought"},
	}}}
	r := newRelay(Options{Hydrator: h})

	for _, body := range []string{`{"thought":{"content":"live thought"}}`, `{"thinking":"newest thinking"}`} {
		u, err := r.Parse([]byte(body))
		require.NoError(t, err)
		r.Apply(u, false)
	}

	v := &viewer{}
	r.Connect(context.Background(), "nex", v, stream.ViewerInfo{ID: "v1"})
	assert.Equal(t, 0, h.calls)

	var snap struct {
		Thinking string           `json:"thinking"`
		Status   string           `json:"status"`
		Thoughts []stream.Thought `json:"thoughts"`
	}
	require.NoError(t, json.Unmarshal(v.msgs[0], &snap))
	assert.Equal(t, "newest thinking", snap.Thinking)
	assert.Equal(t, stream.StatusThinking, snap.Status)
	require.Len(t, snap.Thoughts, 1)
	assert.Equal(t, "live thought", snap.Thoughts[0].Content)
}

func TestConnectRetriesFailedHydration(t *testing.T) {
	h := &hydrator{err: errors.New("db down")}
	r := newRelay(Options{Hydrator: h})

	agent, _ := r.Connect(context.Background(), "nex", &viewer{}, stream.ViewerInfo{ID: "v1"})
	assert.False(t, agent.Hydrated())

	h.err = nil
	r.Connect(context.Background(), "nex", &viewer{}, stream.ViewerInfo{ID: "v2"})
	assert.True(t, agent.Hydrated())
	assert.Equal(t, 2, h.calls)
}

func TestDisconnect(t *testing.T) {
	r := newRelay(Options{})
	a, b := &viewer{}, &viewer{}
	agent, _ := r.Connect(context.Background(), "nex", a, stream.ViewerInfo{ID: "a"})
	r.Connect(context.Background(), "nex", b, stream.ViewerInfo{ID: "b"})

	assert.Equal(t, 1, r.Disconnect(agent, b))
	last := a.last(t)
	assert.Equal(t, "viewer_leave", last["type"])
	assert.Equal(t, "b", last["viewerId"])
	assert.EqualValues(t, 1, last["viewers"])
}

func TestChat(t *testing.T) {
	ob, pub := &outbox{}, &publisher{}
	r := newRelay(Options{Outbox: ob, Publisher: pub})
	v := &viewer{}
	from := stream.ViewerInfo{ID: "v1", Name: "viewer-ab12"}
	agent, _ := r.Connect(context.Background(), "nex", v, from)

	r.Chat(agent, from, ChatMessage{Message: "nice"})
	chat, ok := v.last(t)["chat"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"type": "viewer", "username": "viewer-ab12", "text": "nice", "time": "just now"}, chat)

	require.Len(t, ob.jobs, 1)
	assert.Equal(t, &persist.ChatRecord{AgentID: "nex", SenderID: "anonymous", SenderName: "viewer-ab12", Message: "nice", At: fixedNow}, ob.jobs[0].Chat)

	r.Chat(agent, from, ChatMessage{Message: "hi", Username: "Ann", UserID: "u-1"})
	assert.Equal(t, "Ann", ob.jobs[1].Chat.SenderName)
	assert.Equal(t, "u-1", ob.jobs[1].Chat.SenderID)

	r.Chat(agent, from, ChatMessage{})
	assert.Len(t, ob.jobs, 2)
	require.Len(t, pub.envs, 2)
	assert.Equal(t, fanout.KindBroadcast, pub.envs[0].Kind)
}

func TestReact(t *testing.T) {
	r := newRelay(Options{})
	v := &viewer{}
	from := stream.ViewerInfo{ID: "v1", Name: "ann"}
	agent, _ := r.Connect(context.Background(), "nex", v, from)

	r.React(agent, from, "🎉")
	assert.Equal(t, map[string]any{"type": "reaction", "emoji": "🎉", "from": "ann"}, v.last(t))

	before := len(v.msgs)
	r.React(agent, from, "")
	assert.Len(t, v.msgs, before)
}
