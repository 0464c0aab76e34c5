// Package relay ties ingest, viewer delivery and the best-effort side paths
// (persistence, cache, fan-out) together. The HTTP and WebSocket layers call
// into it; nothing here blocks on storage.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kulti/stream/internal/fanout"
	"github.com/kulti/stream/internal/persist"
	"github.com/kulti/stream/internal/stream"
)

// Outbox accepts persistence jobs without blocking.
type Outbox interface {
	Enqueue(job persist.Job) error
}

// DirtyMarker records that an agent's cached state is stale.
type DirtyMarker interface {
	MarkDirty(agentID string)
}

// Publisher shares messages with other relay instances.
type Publisher interface {
	Publish(env fanout.Envelope) error
}

// Hydrator loads remembered agent state. A nil result with a nil error
// means there is nothing to load.
type Hydrator interface {
	Hydrate(ctx context.Context, agentID string) (*stream.Hydration, error)
}

type Options struct {
	DefaultAgent   string
	Outbox         Outbox
	Cache          DirtyMarker
	Publisher      Publisher
	Hydrator       Hydrator
	HydrateTimeout time.Duration
	Now            func() time.Time
}

// Relay is safe for concurrent use. Optional collaborators left nil are
// skipped.
type Relay struct {
	reg  *stream.Registry
	opts Options

	ingested   atomic.Int64
	remote     atomic.Int64
	persistErr atomic.Int64
}

func New(reg *stream.Registry, opts Options) *Relay {
	if opts.DefaultAgent == "" {
		opts.DefaultAgent = "nex"
	}
	if opts.HydrateTimeout <= 0 {
		opts.HydrateTimeout = 3 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Relay{reg: reg, opts: opts}
}

func (r *Relay) Registry() *stream.Registry { return r.reg }

// AgentID returns id, or the default agent when id is empty.
func (r *Relay) AgentID(id string) string {
	if id == "" {
		return r.opts.DefaultAgent
	}
	return id
}

// Parse decodes an ingest body and resolves its agent id.
func (r *Relay) Parse(body []byte) (*stream.Update, error) {
	u, err := stream.ParseUpdate(body)
	if err != nil {
		return nil, err
	}
	u.AgentID = r.AgentID(u.AgentID)
	return u, nil
}

// Result describes one applied update.
type Result struct {
	AgentID   string
	Delivered int
}

// Apply updates the agent, forwards the raw body to its viewers and then
// hands the update to the side paths. Side path failures are logged only.
func (r *Relay) Apply(u *stream.Update, hook bool) Result {
	u.AgentID = r.AgentID(u.AgentID)
	agent := r.reg.GetOrCreate(u.AgentID)
	delivered, session := agent.Ingest(u, hook)
	r.ingested.Add(1)

	if r.opts.Outbox != nil {
		err := r.opts.Outbox.Enqueue(persist.Job{Ingest: &persist.IngestRecord{
			Session: session,
			Update:  u,
			At:      r.opts.Now(),
		}})
		if err != nil {
			r.persistErr.Add(1)
			slog.Warn("persistence skipped", "agent", u.AgentID, "error", err)
		}
	}
	if r.opts.Cache != nil {
		r.opts.Cache.MarkDirty(u.AgentID)
	}
	if r.opts.Publisher != nil {
		r.publish(fanout.Envelope{Kind: fanout.KindUpdate, AgentID: u.AgentID, Hook: hook, Payload: u.Raw})
	}
	return Result{AgentID: u.AgentID, Delivered: delivered}
}

func (r *Relay) publish(env fanout.Envelope) {
	if err := r.opts.Publisher.Publish(env); err != nil {
		level := slog.LevelWarn
		if errors.Is(err, fanout.ErrPayloadTooLarge) {
			level = slog.LevelDebug
		}
		slog.Log(context.Background(), level, "fanout publish skipped", "agent", env.AgentID, "error", err)
	}
}

// ApplyRemote handles an envelope from another instance. Updates reach the
// registry and local viewers but are not persisted or published again.
func (r *Relay) ApplyRemote(env fanout.Envelope) {
	if env.Kind == fanout.KindBroadcast {
		if agent, ok := r.reg.Get(env.AgentID); ok {
			agent.Broadcast(env.Payload)
		}
		return
	}

	u, err := stream.ParseUpdate(env.Payload)
	if err != nil {
		slog.Warn("dropping remote update", "agent", env.AgentID, "error", err)
		return
	}
	u.AgentID = env.AgentID
	r.reg.GetOrCreate(env.AgentID).Ingest(u, env.Hook)
	r.remote.Add(1)
	if r.opts.Cache != nil {
		r.opts.Cache.MarkDirty(env.AgentID)
	}
}

// Connect registers a viewer. The agent is hydrated from durable storage
// the first time anyone watches it; a failed hydration is retried on the
// next connect.
func (r *Relay) Connect(ctx context.Context, agentID string, v stream.Viewer, info stream.ViewerInfo) (*stream.Agent, int) {
	agent := r.reg.GetOrCreate(r.AgentID(agentID))

	if r.opts.Hydrator != nil && !agent.Hydrated() {
		hctx, cancel := context.WithTimeout(ctx, r.opts.HydrateTimeout)
		h, err := r.opts.Hydrator.Hydrate(hctx, agent.ID())
		cancel()
		if err != nil {
			slog.Warn("hydration failed", "agent", agent.ID(), "error", err)
		} else {
			agent.Hydrate(h)
		}
	}

	return agent, agent.Join(v, info)
}

// Disconnect removes a viewer and returns the remaining count.
func (r *Relay) Disconnect(agent *stream.Agent, v stream.Viewer) int {
	return agent.Leave(v)
}

// ChatMessage is a viewer's chat input. Username and UserID override the
// connection's identity when set.
type ChatMessage struct {
	Message  string
	Username string
	UserID   string
}

type chatLine struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Text     string `json:"text"`
	Time     string `json:"time"`
}

type chatBroadcast struct {
	Chat chatLine `json:"chat"`
}

type reactionBroadcast struct {
	Type  string `json:"type"`
	Emoji string `json:"emoji"`
	From  string `json:"from"`
}

// Chat forwards a viewer message to everyone watching the agent and queues
// it for persistence. Empty messages are ignored.
func (r *Relay) Chat(agent *stream.Agent, from stream.ViewerInfo, msg ChatMessage) {
	if msg.Message == "" {
		return
	}
	name := msg.Username
	if name == "" {
		name = from.Name
	}
	data, err := json.Marshal(chatBroadcast{Chat: chatLine{
		Type:     "viewer",
		Username: name,
		Text:     msg.Message,
		Time:     "just now",
	}})
	if err != nil {
		slog.Error("encode chat", "agent", agent.ID(), "error", err)
		return
	}
	r.broadcast(agent, data)

	if r.opts.Outbox != nil {
		sender := msg.UserID
		if sender == "" {
			sender = "anonymous"
		}
		err := r.opts.Outbox.Enqueue(persist.Job{Chat: &persist.ChatRecord{
			AgentID:    agent.ID(),
			SenderID:   sender,
			SenderName: name,
			Message:    msg.Message,
			At:         r.opts.Now(),
		}})
		if err != nil {
			r.persistErr.Add(1)
			slog.Warn("chat persistence skipped", "agent", agent.ID(), "error", err)
		}
	}
}

// React forwards an emoji reaction. Empty reactions are ignored.
func (r *Relay) React(agent *stream.Agent, from stream.ViewerInfo, emoji string) {
	if emoji == "" {
		return
	}
	data, err := json.Marshal(reactionBroadcast{Type: "reaction", Emoji: emoji, From: from.Name})
	if err != nil {
		return
	}
	r.broadcast(agent, data)
}

func (r *Relay) broadcast(agent *stream.Agent, data []byte) {
	agent.Broadcast(data)
	if r.opts.Publisher != nil {
		r.publish(fanout.Envelope{Kind: fanout.KindBroadcast, AgentID: agent.ID(), Payload: data})
	}
}

// Stats are the relay counters.
type Stats struct {
	Ingested       int64 `json:"ingested"`
	RemoteApplied  int64 `json:"remote_applied"`
	PersistSkipped int64 `json:"persist_skipped"`
}

func (r *Relay) Stats() Stats {
	return Stats{
		Ingested:       r.ingested.Load(),
		RemoteApplied:  r.remote.Load(),
		PersistSkipped: r.persistErr.Load(),
	}
}
