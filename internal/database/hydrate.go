package database

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/kulti/stream/internal/stream"
)

const timestampLayout = "2006-01-02T15:04:05.000Z"

// Hydrate loads the remembered identity and recent thoughts of an agent.
// It returns nil without error when the agent has never been persisted.
func (c *Client) Hydrate(ctx context.Context, agentID string) (*stream.Hydration, error) {
	var (
		sessionID string
		h         stream.Hydration
		task      stdsql.NullString
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT id, agent_name, agent_avatar, status, current_task
		   FROM ai_agent_sessions WHERE agent_id = $1`, agentID,
	).Scan(&sessionID, &h.Name, &h.Avatar, &h.Status, &task)
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", agentID, err)
	}
	h.Task = task.String

	rows, err := c.db.QueryContext(ctx,
		`SELECT id, type, data, created_at
		   FROM ai_stream_events
		  WHERE session_id = $1 AND type IN ('thought', 'thinking')
		  ORDER BY created_at DESC
		  LIMIT $2`, sessionID, c.hydrateThoughts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load thoughts for %s: %w", agentID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, typ string
			raw     []byte
			at      time.Time
		)
		if err := rows.Scan(&id, &typ, &raw, &at); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		t, ok := thoughtFromEvent(id, typ, raw, at)
		if ok {
			h.Thoughts = append(h.Thoughts, t)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read thoughts for %s: %w", agentID, err)
	}

	// Newest first from the query, oldest first in the state.
	slices.Reverse(h.Thoughts)
	return &h, nil
}

func thoughtFromEvent(id, typ string, raw []byte, at time.Time) (stream.Thought, bool) {
	var data struct {
		ThoughtType string         `json:"thoughtType"`
		Content     string         `json:"content"`
		Priority    string         `json:"priority"`
		Metadata    map[string]any `json:"metadata"`
	}
	if err := json.Unmarshal(raw, &data); err != nil || data.Content == "" {
		return stream.Thought{}, false
	}

	t := stream.Thought{
		ID:        id,
		Type:      "general",
		Content:   data.Content,
		Timestamp: at.UTC().Format(timestampLayout),
		Metadata:  data.Metadata,
	}
	if typ == "thought" && data.ThoughtType != "" {
		t.Type = data.ThoughtType
	}
	if data.Priority != "" {
		if t.Metadata == nil {
			t.Metadata = map[string]any{}
		}
		t.Metadata["priority"] = data.Priority
	}
	return t, true
}
