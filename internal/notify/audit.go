package notify

import (
	"context"

	"github.com/rs/zerolog"
)

type AuditEntry struct {
	ActorID    int64
	Action     string
	EntityType string
	EntityID   int64
	Reason     string
	Details    map[string]string
}

// AuditLogger writes audit entries as structured log lines.
type AuditLogger struct {
	log zerolog.Logger
}

func NewAuditLogger(log zerolog.Logger) *AuditLogger {
	return &AuditLogger{log: log.With().Str("component", "audit").Logger()}
}

func (a *AuditLogger) LogAction(_ context.Context, entry AuditEntry) error {
	ev := a.log.Info().
		Int64("actor_id", entry.ActorID).
		Str("action", entry.Action).
		Str("entity_type", entry.EntityType).
		Int64("entity_id", entry.EntityID)
	if entry.Reason != "" {
		ev = ev.Str("reason", entry.Reason)
	}
	for k, v := range entry.Details {
		ev = ev.Str(k, v)
	}
	ev.Msg("audit")
	return nil
}
