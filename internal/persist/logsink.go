package persist

import (
	"context"
	"log/slog"
)

// LogSink is the sink used when no database is configured. It records what
// would have been written at debug level.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s LogSink) PersistIngest(ctx context.Context, rec IngestRecord) error {
	events := BuildEvents(rec.Update)
	if ArtCompletion(rec.Update) != nil {
		events = append(events, Event{Type: EventArtComplete})
	}
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	s.logger().DebugContext(ctx, "persist ingest",
		"agent", rec.Session.AgentID,
		"status", SessionStatus(rec.Session.Status),
		"events", types,
	)
	return nil
}

func (s LogSink) PersistChat(ctx context.Context, rec ChatRecord) error {
	s.logger().DebugContext(ctx, "persist chat", "agent", rec.AgentID, "from", rec.SenderName)
	return nil
}
