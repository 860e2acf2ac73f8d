package events

import (
	"time"
)

// Event types written to the outbox and published on NATS.
const (
	TypeRoundSettled    = "RoundSettled"
	TypeSessionArchived = "SessionArchived"
	TypeSessionReset    = "SessionReset"
)

// Event payload types that are shared between the game and gateway packages

// RoundSettledPayload is the payload for a RoundSettled event
type RoundSettledPayload struct {
	SessionID    string    `json:"session_id"`
	Round        int       `json:"round"`
	TotalA       int       `json:"total_a"`
	Participants int       `json:"participants"`
	SettledAt    time.Time `json:"settled_at"`
	WatchEndsAt  time.Time `json:"watch_ends_at"`
}

// SessionArchivedPayload is the payload for a SessionArchived event
type SessionArchivedPayload struct {
	SessionID  string    `json:"session_id"`
	ArchivedAt time.Time `json:"archived_at"`
}

// SessionResetPayload is the payload for a SessionReset event
type SessionResetPayload struct {
	SessionID string    `json:"session_id"`
	ResetAt   time.Time `json:"reset_at"`
}
