package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/vaxgame/go/internal/models"
	"github.com/shopspring/decimal"
)

// ParticipantResult is one settled decision as shown to the group.
type ParticipantResult struct {
	ParticipantID uuid.UUID       `json:"participant_id"`
	Name          string          `json:"name"`
	Type          int             `json:"type"`
	Choice        models.Choice   `json:"choice"`
	OthersA       int             `json:"others_a"`
	Cost          decimal.Decimal `json:"cost"`
	Payout        decimal.Decimal `json:"payout"`
}

// RoundStatus is what a waiting participant polls for.
type RoundStatus struct {
	SessionID    uuid.UUID           `json:"session_id"`
	Round        int                 `json:"round"`
	DecidedCount int                 `json:"decided_count"`
	GroupSize    int                 `json:"group_size"`
	Ready        bool                `json:"ready"`
	Results      []ParticipantResult `json:"results"`
}

// RevealSnapshot places a round on the phase clock together with its results.
type RevealSnapshot struct {
	SessionID   uuid.UUID           `json:"session_id"`
	Round       int                 `json:"round"`
	Phase       models.Phase        `json:"phase"`
	PhaseEndsAt *time.Time          `json:"phase_ends_at,omitempty"`
	Remaining   int                 `json:"remaining_seconds"`
	Results     []ParticipantResult `json:"results"`
}

// ParticipantView is the participant's derived state plus what a client
// needs to render it.
type ParticipantView struct {
	ParticipantID uuid.UUID       `json:"participant_id"`
	SessionID     uuid.UUID       `json:"session_id"`
	SessionName   string          `json:"session_name"`
	JoinCode      string          `json:"join_code"`
	Name          string          `json:"name"`
	Type          int             `json:"type"`
	State         models.State    `json:"state"`
	CurrentRound  int             `json:"current_round"`
	RoundCount    int             `json:"round_count"`
	Balance       decimal.Decimal `json:"balance"`
	PhaseEndsAt   *time.Time      `json:"phase_ends_at,omitempty"`
}

// CostPreview is what a participant would pay for each option before deciding.
type CostPreview struct {
	ParticipantID uuid.UUID         `json:"participant_id"`
	Type          int               `json:"type"`
	GroupSize     int               `json:"group_size"`
	BasePayout    decimal.Decimal   `json:"base_payout"`
	ACost         decimal.Decimal   `json:"a_cost"`
	BCosts        []decimal.Decimal `json:"b_costs"` // indexed by others choosing A
}
