package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Session is one experiment group playing a fixed number of rounds.
type Session struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	GroupSize          int             `json:"group_size"`
	RoundCount         int             `json:"round_count"`
	BasePayout         decimal.Decimal `json:"base_payout"`
	WatchWindowSeconds int             `json:"watch_window_seconds"`
	Archived           bool            `json:"archived"`
	CreatedAt          time.Time       `json:"created_at"`
}

// WatchWindow returns the reveal window as a duration.
func (s Session) WatchWindow() time.Duration {
	return time.Duration(s.WatchWindowSeconds) * time.Second
}
