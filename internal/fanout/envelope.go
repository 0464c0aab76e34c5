// Package fanout shares ingested updates between relay instances over
// PostgreSQL LISTEN/NOTIFY, so a viewer connected to any instance sees
// updates posted to any other.
package fanout

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// MaxPayloadBytes keeps NOTIFY payloads under PostgreSQL's 8000 byte limit.
const MaxPayloadBytes = 7900

var (
	// ErrPayloadTooLarge is returned for envelopes that cannot be sent.
	ErrPayloadTooLarge = errors.New("fanout payload too large")
	// ErrQueueFull is returned when the publisher cannot keep up.
	ErrQueueFull = errors.New("fanout queue full")
)

// Envelope kinds.
const (
	// KindUpdate carries a raw ingest body to apply.
	KindUpdate = ""
	// KindBroadcast carries a viewer message to forward without touching
	// state, such as chat or reactions.
	KindBroadcast = "broadcast"
)

// Envelope is one message travelling between instances. For updates,
// Payload is the raw ingest body.
type Envelope struct {
	Origin  string
	Kind    string
	AgentID string
	Hook    bool
	Payload json.RawMessage
}

// wireEnvelope carries the payload as a string so remote viewers receive the
// same bytes as local ones.
type wireEnvelope struct {
	Origin  string `json:"origin"`
	Kind    string `json:"kind,omitempty"`
	AgentID string `json:"agent_id"`
	Hook    bool   `json:"hook,omitempty"`
	Payload string `json:"payload"`
}

func encode(env Envelope) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(wireEnvelope{
		Origin:  env.Origin,
		Kind:    env.Kind,
		AgentID: env.AgentID,
		Hook:    env.Hook,
		Payload: string(env.Payload),
	})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	data := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	if len(data) > MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(data))
	}
	return data, nil
}

func decode(payload string) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if w.AgentID == "" || w.Payload == "" {
		return Envelope{}, errors.New("decode envelope: missing agent_id or payload")
	}
	return Envelope{
		Origin:  w.Origin,
		Kind:    w.Kind,
		AgentID: w.AgentID,
		Hook:    w.Hook,
		Payload: json.RawMessage(w.Payload),
	}, nil
}
