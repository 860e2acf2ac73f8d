package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/vaxgame/go/internal/models"
)

// Envelope is the message body published for every outbox event.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	SessionID string          `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope wraps an outbox row for publishing.
func NewEnvelope(ev models.OutboxEvent) Envelope {
	payload := ev.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Envelope{
		EventID:   ev.ID.String(),
		EventType: ev.EventType,
		SessionID: ev.SessionID.String(),
		Timestamp: ev.CreatedAt.UTC(),
		Payload:   payload,
	}
}

// Subject is the NATS subject an event type is published on.
func Subject(prefix, eventType string) string {
	return fmt.Sprintf("%s.%s", prefix, eventType)
}
