package models

import (
	"time"

	"github.com/google/uuid"
)

// RoundPhase records when a settled round's decision and watch windows end.
type RoundPhase struct {
	SessionID      uuid.UUID `json:"session_id"`
	RoundNumber    int       `json:"round_number"`
	DecisionEndsAt time.Time `json:"decision_ends_at"`
	WatchEndsAt    time.Time `json:"watch_ends_at"`
}

// Phase is the classification of a round at a given instant.
type Phase string

const (
	PhaseDecision Phase = "decision"
	PhaseWatch    Phase = "watch"
	PhaseDone     Phase = "done"
)
