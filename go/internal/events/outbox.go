package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/vaxgame/go/internal/models"
)

// NewOutboxEvent marshals payload into an unsent outbox row for sessionID.
func NewOutboxEvent(sessionID uuid.UUID, eventType string, payload any, at time.Time) (*models.OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &models.OutboxEvent{
		ID:        uuid.New(),
		SessionID: sessionID,
		EventType: eventType,
		Payload:   raw,
		CreatedAt: at.UTC(),
	}, nil
}
