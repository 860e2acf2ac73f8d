package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/vaxgame/go/internal/costmodel"
	"github.com/mcdev12/vaxgame/go/internal/events"
	"github.com/mcdev12/vaxgame/go/internal/gameerr"
	"github.com/mcdev12/vaxgame/go/internal/phaseclock"
	"github.com/mcdev12/vaxgame/go/internal/storage"
	"github.com/rs/zerolog/log"
)

// App settles rounds against a store.
type App struct {
	store storage.Store
	table *costmodel.Table
	clock phaseclock.Clock
}

// NewApp creates a new settlement App
func NewApp(store storage.Store, table *costmodel.Table, clock phaseclock.Clock) *App {
	return &App{
		store: store,
		table: table,
		clock: clock,
	}
}

// Ready reports whether round has a decision from every group member and at
// least one of them is still unpriced.
func Ready(counts storage.RoundCounts, groupSize int) bool {
	return counts.Decided >= groupSize && counts.Unsettled > 0
}

// TrySettle settles round if it is ready and nobody else is settling the
// session right now. It reports whether this call performed the settlement.
// Lock contention and consistency violations are logged and reported as
// false with a nil error so pollers simply poll again.
func (a *App) TrySettle(ctx context.Context, sessionID uuid.UUID, round int) (bool, error) {
	session, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to load session: %w", err)
	}
	counts, err := a.store.CountRoundDecisions(ctx, sessionID, round)
	if err != nil {
		return false, err
	}
	if session.Archived || !Ready(counts, session.GroupSize) {
		return false, nil
	}

	var res *Result
	err = a.store.InSessionTx(ctx, sessionID, storage.LockTry, func(q storage.Queries) error {
		var err error
		res, err = a.settle(ctx, q, sessionID, round)
		return err
	})

	var violation *gameerr.ConsistencyViolation
	switch {
	case err == nil:
	case gameerr.IsContention(err):
		log.Debug().Str("session_id", sessionID.String()).Int("round", round).Msg("settlement skipped, session busy")
		return false, nil
	case errors.As(err, &violation):
		log.Error().Err(err).Str("session_id", sessionID.String()).Int("round", round).Msg("settlement rolled back")
		return false, nil
	default:
		return false, fmt.Errorf("failed to settle round %d: %w", round, err)
	}
	if res == nil {
		return false, nil
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Int("round", round).
		Int("total_a", res.TotalA).
		Int("decisions", len(res.Outcomes)).
		Msg("round settled")
	return true, nil
}

// settle runs inside the session transaction. A nil result with a nil error
// means another caller already settled the round.
func (a *App) settle(ctx context.Context, q storage.Queries, sessionID uuid.UUID, round int) (*Result, error) {
	session, err := q.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload session: %w", err)
	}
	counts, err := q.CountRoundDecisions(ctx, sessionID, round)
	if err != nil {
		return nil, err
	}
	if session.Archived || !Ready(counts, session.GroupSize) {
		return nil, nil
	}

	decisions, err := q.ListRoundDecisions(ctx, sessionID, round)
	if err != nil {
		return nil, err
	}
	participants, err := q.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	types := make(map[uuid.UUID]int, len(participants))
	for _, p := range participants {
		types[p.ID] = p.Type
	}

	entries := make([]Entry, 0, len(decisions))
	for _, d := range decisions {
		typ, ok := types[d.ParticipantID]
		if !ok {
			return nil, &gameerr.ConsistencyViolation{SessionID: sessionID, Round: round,
				Msg: fmt.Sprintf("decision %s has no participant", d.ID)}
		}
		entries = append(entries, Entry{ParticipantID: d.ParticipantID, Type: typ, Choice: d.Choice})
	}

	res, err := Compute(a.table, round, session.GroupSize, session.BasePayout, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to price round: %w", err)
	}

	for _, o := range res.Outcomes {
		written, err := q.SettleDecision(ctx, o)
		if err != nil {
			return nil, err
		}
		if !written {
			return nil, &gameerr.ConsistencyViolation{SessionID: sessionID, Round: round,
				Msg: fmt.Sprintf("decision of participant %s was already priced", o.ParticipantID)}
		}
		if err := q.SetBalance(ctx, o.ParticipantID, o.Payout); err != nil {
			return nil, err
		}
	}

	moved, err := q.AdvanceRound(ctx, sessionID, round)
	if err != nil {
		return nil, err
	}
	if moved != int64(len(participants)) {
		log.Warn().
			Str("session_id", sessionID.String()).
			Int("round", round).
			Int64("moved", moved).
			Int("participants", len(participants)).
			Msg("not every participant was on the settled round")
	}

	now := phaseclock.Now(a.clock)
	phase := phaseclock.Open(sessionID, round, now, session.WatchWindowSeconds)
	if _, err := q.InsertRoundPhase(ctx, phase); err != nil {
		return nil, err
	}

	ev, err := events.NewOutboxEvent(sessionID, events.TypeRoundSettled, events.RoundSettledPayload{
		SessionID:    sessionID.String(),
		Round:        round,
		TotalA:       res.TotalA,
		Participants: len(res.Outcomes),
		SettledAt:    phase.DecisionEndsAt,
		WatchEndsAt:  phase.WatchEndsAt,
	}, now)
	if err != nil {
		return nil, err
	}
	if err := q.InsertOutboxEvent(ctx, ev); err != nil {
		return nil, err
	}
	return res, nil
}
