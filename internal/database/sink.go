package database

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kulti/stream/internal/persist"
	"github.com/kulti/stream/internal/stream"
)

// ErrSessionNotFound is returned when a chat message targets an agent with
// no session row.
var ErrSessionNotFound = errors.New("agent session not found")

const upsertSession = `
INSERT INTO ai_agent_sessions
    (agent_id, agent_name, status, current_task, viewers_count, files_edited, commands_run, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (agent_id) DO UPDATE SET
    agent_name    = EXCLUDED.agent_name,
    status        = EXCLUDED.status,
    current_task  = EXCLUDED.current_task,
    viewers_count = EXCLUDED.viewers_count,
    files_edited  = EXCLUDED.files_edited,
    commands_run  = EXCLUDED.commands_run,
    updated_at    = EXCLUDED.updated_at
RETURNING id`

const insertEvent = `INSERT INTO ai_stream_events (session_id, type, data, created_at) VALUES ($1, $2, $3, $4)`

const insertArt = `
INSERT INTO ai_art_gallery (agent_id, session_id, image_url, prompt, model, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`

// PersistIngest upserts the session row and appends the update's events in
// one transaction. A finished artwork gets a gallery row first; if that
// insert fails the event is still recorded without an art id.
func (c *Client) PersistIngest(ctx context.Context, rec persist.IngestRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	s := rec.Session
	var task any
	if s.Task != "" {
		task = s.Task
	}

	var sessionID string
	err = tx.QueryRowContext(ctx, upsertSession,
		s.AgentID, s.AgentName, persist.SessionStatus(s.Status), task,
		s.ViewerCount, s.FilesEdited, s.CommandsRun, rec.At,
	).Scan(&sessionID)
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", s.AgentID, err)
	}

	events := persist.BuildEvents(rec.Update)
	if art := persist.ArtCompletion(rec.Update); art != nil {
		artID, err := insertArtwork(ctx, tx, s.AgentID, sessionID, art, rec)
		if err != nil {
			slog.Warn("art gallery insert failed", "agent", s.AgentID, "error", err)
		}
		events = append(events, persist.ArtCompleteEvent(art, artID))
	}

	for _, ev := range events {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("failed to encode %s event: %w", ev.Type, err)
		}
		if _, err := tx.ExecContext(ctx, insertEvent, sessionID, ev.Type, data, rec.At); err != nil {
			return fmt.Errorf("failed to insert %s event: %w", ev.Type, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ingest: %w", err)
	}
	return nil
}

// insertArtwork runs under a savepoint so a gallery failure does not abort the
// event log.
func insertArtwork(ctx context.Context, tx *stdsql.Tx, agentID, sessionID string, art *stream.Art, rec persist.IngestRecord) (string, error) {
	meta := art.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	model := art.Model
	if model == "" {
		model = "unknown"
	}

	if _, err := tx.ExecContext(ctx, "SAVEPOINT artwork"); err != nil {
		return "", fmt.Errorf("failed to create savepoint: %w", err)
	}
	var id string
	err = tx.QueryRowContext(ctx, insertArt,
		agentID, sessionID, art.ImageURL, art.Prompt, model, metaJSON, rec.At,
	).Scan(&id)
	if err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT artwork"); rbErr != nil {
			return "", errors.Join(err, rbErr)
		}
		return "", fmt.Errorf("failed to insert artwork: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT artwork"); err != nil {
		return "", fmt.Errorf("failed to release savepoint: %w", err)
	}
	return id, nil
}

// PersistChat stores a viewer message against the agent's session.
func (c *Client) PersistChat(ctx context.Context, rec persist.ChatRecord) error {
	var sessionID string
	err := c.db.QueryRowContext(ctx,
		`SELECT id FROM ai_agent_sessions WHERE agent_id = $1`, rec.AgentID,
	).Scan(&sessionID)
	if errors.Is(err, stdsql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, rec.AgentID)
	}
	if err != nil {
		return fmt.Errorf("failed to look up session %s: %w", rec.AgentID, err)
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO ai_stream_messages (session_id, sender_type, sender_id, sender_name, message, created_at)
		 VALUES ($1, 'viewer', $2, $3, $4, $5)`,
		sessionID, rec.SenderID, rec.SenderName, rec.Message, rec.At,
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}
