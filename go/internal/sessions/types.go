package sessions

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/vaxgame/go/internal/models"
	"github.com/shopspring/decimal"
)

// Defaults applied by CreateSession when a field is left zero.
const (
	DefaultGroupSize  = 6
	DefaultRoundCount = 20
	MaxAliasLength    = 32
)

// CreateSessionRequest represents the data needed to create a session
type CreateSessionRequest struct {
	Name               string          `json:"name"`
	GroupSize          int             `json:"group_size"`
	RoundCount         int             `json:"round_count"`
	BasePayout         decimal.Decimal `json:"base_payout"`
	WatchWindowSeconds int             `json:"watch_window_seconds"`
}

// CreatedSession is a new session together with its pre-generated seats.
type CreatedSession struct {
	Session      *models.Session      `json:"session"`
	Participants []models.Participant `json:"participants"`
}

// JoinCodes lists the seat join codes in seat order.
func (c *CreatedSession) JoinCodes() []string {
	codes := make([]string, len(c.Participants))
	for i, p := range c.Participants {
		codes[i] = p.JoinCode
	}
	return codes
}

// SessionSummary is one row of the admin session list.
type SessionSummary struct {
	models.Session
	Joined    int      `json:"joined"`
	JoinCodes []string `json:"join_codes"`
}

// LobbyStatus tells a waiting participant how full the group is.
type LobbyStatus struct {
	Joined    int  `json:"joined"`
	GroupSize int  `json:"group_size"`
	Ready     bool `json:"ready"`
}

// MonitorRow is one participant in the admin monitor.
type MonitorRow struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	JoinCode      string    `json:"join_code"`
	Alias         *string   `json:"alias,omitempty"`
	Joined        bool      `json:"joined"`
	CurrentRound  int       `json:"current_round"`
	Decided       bool      `json:"decided"`
	Completed     bool      `json:"completed"`
}

// MonitorView is the admin's view of a running session. Round is the lowest
// current round in the group.
type MonitorView struct {
	SessionID    uuid.UUID    `json:"session_id"`
	Round        int          `json:"round"`
	Participants []MonitorRow `json:"participants"`
	GeneratedAt  time.Time    `json:"generated_at"`
}
