package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TypeCount is the number of participant types (rows in the cost table).
const TypeCount = 6

// Participant is a seat in a session, claimed by a person through its join code.
type Participant struct {
	ID           uuid.UUID       `json:"id"`
	SessionID    uuid.UUID       `json:"session_id"`
	Seat         int             `json:"seat"` // 0-based creation index
	JoinCode     string          `json:"join_code"`
	Alias        *string         `json:"alias,omitempty"`
	Joined       bool            `json:"joined"`
	JoinOrder    *int            `json:"join_order,omitempty"`
	CurrentRound int             `json:"current_round"`
	Balance      decimal.Decimal `json:"balance"`
	Completed    bool            `json:"completed"`
	Type         int             `json:"type"`
}

// TypeForIndex maps a 0-based index onto the cyclic type range 1..TypeCount.
func TypeForIndex(index int) int {
	return (index % TypeCount) + 1
}

// DisplayName returns the alias when set, otherwise the join code.
func (p Participant) DisplayName() string {
	if p.Alias != nil && *p.Alias != "" {
		return *p.Alias
	}
	return p.JoinCode
}
