package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Choice is the option a participant picks in a round.
type Choice string

const (
	ChoiceA Choice = "A"
	ChoiceB Choice = "B"
)

// Valid reports whether c is one of the two known options.
func (c Choice) Valid() bool {
	return c == ChoiceA || c == ChoiceB
}

// Decision is a participant's choice for one round. The cost fields stay null
// until the round is settled and are never written twice.
type Decision struct {
	ID            uuid.UUID           `json:"id"`
	SessionID     uuid.UUID           `json:"session_id"`
	ParticipantID uuid.UUID           `json:"participant_id"`
	RoundNumber   int                 `json:"round_number"`
	Choice        Choice              `json:"choice"`
	ACost         decimal.NullDecimal `json:"a_cost"`
	BCost         decimal.NullDecimal `json:"b_cost"`
	TotalCost     decimal.NullDecimal `json:"total_cost"`
	Payout        decimal.NullDecimal `json:"payout"`
	OthersA       *int                `json:"others_a,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// Settled reports whether settlement has written this decision's outcome.
func (d Decision) Settled() bool {
	return d.TotalCost.Valid
}
