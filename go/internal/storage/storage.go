// Package storage declares the persistence contract shared by the Postgres
// and SQLite stores.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/vaxgame/go/internal/models"
	"github.com/shopspring/decimal"
)

// LockMode selects how InSessionTx acquires the per-session lock.
type LockMode int

const (
	// LockWait blocks until the lock is free or ctx is done.
	LockWait LockMode = iota
	// LockTry fails fast with gameerr.ErrContention when the lock is held.
	LockTry
)

// RoundCounts summarises the decisions recorded for one round.
type RoundCounts struct {
	Decided   int
	Unsettled int
}

// DecisionOutcome is what settlement writes onto one decision.
type DecisionOutcome struct {
	ParticipantID uuid.UUID
	RoundNumber   int
	OthersA       int
	ACost         decimal.NullDecimal
	BCost         decimal.NullDecimal
	TotalCost     decimal.Decimal
	Payout        decimal.Decimal
}

// Queries is the set of reads and writes available both on the store itself
// and inside a transaction.
type Queries interface {
	InsertSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListSessions(ctx context.Context) ([]models.Session, error)
	ArchiveSession(ctx context.Context, id uuid.UUID) error
	DeleteSession(ctx context.Context, id uuid.UUID) error

	InsertParticipant(ctx context.Context, p *models.Participant) error
	GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error)
	GetParticipantByCode(ctx context.Context, code string) (*models.Participant, error)
	ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error)
	CountJoined(ctx context.Context, sessionID uuid.UUID) (int, error)
	NextJoinOrder(ctx context.Context, sessionID uuid.UUID) (int, error)
	// MarkJoined claims a seat. It only touches participants not yet joined
	// and reports whether a row changed.
	MarkJoined(ctx context.Context, id uuid.UUID, joinOrder, typ int) (bool, error)
	SetAlias(ctx context.Context, id uuid.UUID, alias string) error
	SetBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error
	// AdvanceRound moves every participant of the session still at round
	// from to from+1 and returns how many moved.
	AdvanceRound(ctx context.Context, sessionID uuid.UUID, from int) (int64, error)
	CompleteParticipants(ctx context.Context, sessionID uuid.UUID) (int64, error)
	ResetParticipants(ctx context.Context, sessionID uuid.UUID) error

	// InsertDecision returns gameerr.ErrDuplicate when the participant already
	// decided in that round.
	InsertDecision(ctx context.Context, d *models.Decision) error
	GetDecision(ctx context.Context, participantID uuid.UUID, round int) (*models.Decision, error)
	ListRoundDecisions(ctx context.Context, sessionID uuid.UUID, round int) ([]models.Decision, error)
	CountRoundDecisions(ctx context.Context, sessionID uuid.UUID, round int) (RoundCounts, error)
	// SettleDecision writes an outcome only where total_cost is still null and
	// reports whether a row changed.
	SettleDecision(ctx context.Context, o DecisionOutcome) (bool, error)
	DeleteSessionDecisions(ctx context.Context, sessionID uuid.UUID) error

	// InsertRoundPhase creates the phase row unless it already exists and
	// reports whether it was created.
	InsertRoundPhase(ctx context.Context, ph models.RoundPhase) (bool, error)
	GetRoundPhase(ctx context.Context, sessionID uuid.UUID, round int) (*models.RoundPhase, error)
	DeleteSessionPhases(ctx context.Context, sessionID uuid.UUID) error

	InsertOutboxEvent(ctx context.Context, ev *models.OutboxEvent) error
	FetchOutboxByID(ctx context.Context, id uuid.UUID) (*models.OutboxEvent, error)
	FetchUnsentOutbox(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkOutboxSent(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteSessionOutbox(ctx context.Context, sessionID uuid.UUID) error
}

// Store is a Queries bound to the connection pool plus transactions.
type Store interface {
	Queries
	// InSessionTx runs fn in one transaction while holding the session's lock.
	// If fn returns an error the transaction rolls back.
	InSessionTx(ctx context.Context, sessionID uuid.UUID, mode LockMode, fn func(q Queries) error) error
	Close() error
}
