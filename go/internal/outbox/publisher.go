package outbox

import (
	"context"

	"github.com/mcdev12/vaxgame/go/internal/models"
	"github.com/mcdev12/vaxgame/go/internal/phaseclock"
	"github.com/rs/zerolog/log"
)

// LogPublisher only logs events. It stands in for NATS in single-node runs.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, event models.OutboxEvent) error {
	log.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Str("session_id", event.SessionID.String()).
		Str("created_at", phaseclock.FormatUTC(event.CreatedAt)).
		Msg("publishing event")
	return nil
}
