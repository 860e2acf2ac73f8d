// Package game is the participant-facing surface of a session: recording
// decisions, polling round status and deriving each participant's state.
// Polls are what drive settlement forward.
package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/vaxgame/go/internal/costmodel"
	"github.com/mcdev12/vaxgame/go/internal/gameerr"
	"github.com/mcdev12/vaxgame/go/internal/models"
	"github.com/mcdev12/vaxgame/go/internal/participantstate"
	"github.com/mcdev12/vaxgame/go/internal/phaseclock"
	"github.com/mcdev12/vaxgame/go/internal/storage"
	"github.com/rs/zerolog/log"
)

// Settler defines what the game app needs from settlement
type Settler interface {
	TrySettle(ctx context.Context, sessionID uuid.UUID, round int) (bool, error)
}

// App handles game business logic
type App struct {
	store   storage.Store
	table   *costmodel.Table
	settler Settler
	clock   phaseclock.Clock
}

// NewApp creates a new game App
func NewApp(store storage.Store, table *costmodel.Table, settler Settler, clock phaseclock.Clock) *App {
	return &App{
		store:   store,
		table:   table,
		settler: settler,
		clock:   clock,
	}
}

func (a *App) load(ctx context.Context, participantID uuid.UUID) (*models.Participant, *models.Session, error) {
	p, err := a.store.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, nil, fmt.Errorf("participant not found: %w", err)
	}
	s, err := a.store.GetSession(ctx, p.SessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("session not found: %w", err)
	}
	return p, s, nil
}

func (a *App) roundPhase(ctx context.Context, sessionID uuid.UUID, round int) (*models.RoundPhase, error) {
	ph, err := a.store.GetRoundPhase(ctx, sessionID, round)
	if gameerr.IsNotFound(err) {
		return nil, nil
	}
	return ph, err
}

func (a *App) facts(ctx context.Context, p *models.Participant, s *models.Session) (participantstate.Facts, error) {
	f := participantstate.Facts{
		Archived:     s.Archived,
		Completed:    p.Completed,
		GroupSize:    s.GroupSize,
		CurrentRound: p.CurrentRound,
		RoundCount:   s.RoundCount,
	}
	var err error
	if f.JoinedCount, err = a.store.CountJoined(ctx, s.ID); err != nil {
		return f, err
	}
	if _, err := a.store.GetDecision(ctx, p.ID, p.CurrentRound); err == nil {
		f.HasDecision = true
	} else if !gameerr.IsNotFound(err) {
		return f, err
	}
	if f.CurrentPhase, err = a.roundPhase(ctx, s.ID, p.CurrentRound); err != nil {
		return f, err
	}
	if p.CurrentRound > 1 {
		if f.PreviousPhase, err = a.roundPhase(ctx, s.ID, p.CurrentRound-1); err != nil {
			return f, err
		}
	}
	return f, nil
}

func (a *App) trySettle(ctx context.Context, sessionID uuid.UUID, round int) {
	if _, err := a.settler.TrySettle(ctx, sessionID, round); err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Int("round", round).Msg("settlement attempt failed")
	}
}

// RecordDecision stores a participant's choice for round. It is accepted
// once per participant and round, only for the participant's current round
// and only while the participant is deciding.
func (a *App) RecordDecision(ctx context.Context, participantID uuid.UUID, round int, choice models.Choice) (*models.Decision, error) {
	if !choice.Valid() {
		return nil, gameerr.Validationf("invalid choice %q", choice)
	}
	p, s, err := a.load(ctx, participantID)
	if err != nil {
		return nil, err
	}

	if _, err := a.store.GetDecision(ctx, p.ID, round); err == nil {
		return nil, gameerr.ErrAlreadyRecorded
	} else if !gameerr.IsNotFound(err) {
		return nil, err
	}
	if round != p.CurrentRound {
		return nil, gameerr.Conflictf("round %d is not the current round %d", round, p.CurrentRound)
	}

	f, err := a.facts(ctx, p, s)
	if err != nil {
		return nil, err
	}
	if err := participantstate.Require(participantstate.Derive(f, phaseclock.Now(a.clock)), models.StateDecide); err != nil {
		return nil, err
	}

	d := &models.Decision{
		ID:            uuid.New(),
		SessionID:     s.ID,
		ParticipantID: p.ID,
		RoundNumber:   round,
		Choice:        choice,
		CreatedAt:     phaseclock.Now(a.clock),
	}
	// Admin reset and archive take the same lock, so the round checked here
	// is still the participant's current round when the row commits.
	err = a.store.InSessionTx(ctx, s.ID, storage.LockWait, func(q storage.Queries) error {
		return insertDecision(ctx, q, d)
	})
	if err != nil {
		if errors.Is(err, gameerr.ErrDuplicate) {
			return nil, gameerr.ErrAlreadyRecorded
		}
		if gameerr.IsConflict(err) || gameerr.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to record decision: %w", err)
	}

	log.Debug().
		Str("session_id", s.ID.String()).
		Str("participant_id", p.ID.String()).
		Int("round", round).
		Str("choice", string(choice)).
		Msg("decision recorded")

	a.trySettle(ctx, s.ID, round)
	return d, nil
}

func insertDecision(ctx context.Context, q storage.Queries, d *models.Decision) error {
	s, err := q.GetSession(ctx, d.SessionID)
	if err != nil {
		return err
	}
	if s.Archived {
		return gameerr.Conflictf("session is archived")
	}
	p, err := q.GetParticipant(ctx, d.ParticipantID)
	if err != nil {
		return err
	}
	if p.Completed {
		return gameerr.Conflictf("participant has completed the session")
	}
	if p.CurrentRound != d.RoundNumber {
		return gameerr.Conflictf("round %d is not the current round %d", d.RoundNumber, p.CurrentRound)
	}
	return q.InsertDecision(ctx, d)
}

// GetRoundStatus reports how many of the group have decided. Once everyone
// has, it settles the round if nobody has yet and returns the results.
func (a *App) GetRoundStatus(ctx context.Context, sessionID uuid.UUID, round int) (*RoundStatus, error) {
	s, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	if round < 1 || round > s.RoundCount {
		return nil, gameerr.Validationf("round %d is outside 1..%d", round, s.RoundCount)
	}

	counts, err := a.store.CountRoundDecisions(ctx, sessionID, round)
	if err != nil {
		return nil, err
	}
	status := &RoundStatus{
		SessionID:    sessionID,
		Round:        round,
		DecidedCount: counts.Decided,
		GroupSize:    s.GroupSize,
		Ready:        counts.Decided >= s.GroupSize,
		Results:      []ParticipantResult{},
	}
	if !status.Ready {
		return status, nil
	}
	if counts.Unsettled > 0 {
		a.trySettle(ctx, sessionID, round)
	}
	if status.Results, err = a.results(ctx, sessionID, round); err != nil {
		return nil, err
	}
	return status, nil
}

// results lists the settled decisions of a round.
func (a *App) results(ctx context.Context, sessionID uuid.UUID, round int) ([]ParticipantResult, error) {
	decisions, err := a.store.ListRoundDecisions(ctx, sessionID, round)
	if err != nil {
		return nil, err
	}
	participants, err := a.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Participant, len(participants))
	for _, p := range participants {
		byID[p.ID] = p
	}

	out := make([]ParticipantResult, 0, len(decisions))
	for _, d := range decisions {
		if !d.Settled() {
			continue
		}
		p := byID[d.ParticipantID]
		r := ParticipantResult{
			ParticipantID: d.ParticipantID,
			Name:          p.DisplayName(),
			Type:          p.Type,
			Choice:        d.Choice,
			Cost:          d.TotalCost.Decimal,
			Payout:        d.Payout.Decimal,
		}
		if d.OthersA != nil {
			r.OthersA = *d.OthersA
		}
		out = append(out, r)
	}
	return out, nil
}

// GetParticipantState derives the participant's state. A participant who is
// waiting on the group nudges settlement before the state is returned.
func (a *App) GetParticipantState(ctx context.Context, participantID uuid.UUID) (*ParticipantView, error) {
	p, s, err := a.load(ctx, participantID)
	if err != nil {
		return nil, err
	}
	f, err := a.facts(ctx, p, s)
	if err != nil {
		return nil, err
	}
	state := participantstate.Derive(f, phaseclock.Now(a.clock))

	if state == models.StateAwaiting {
		a.trySettle(ctx, s.ID, p.CurrentRound)
		if p, s, err = a.load(ctx, participantID); err != nil {
			return nil, err
		}
		if f, err = a.facts(ctx, p, s); err != nil {
			return nil, err
		}
		state = participantstate.Derive(f, phaseclock.Now(a.clock))
	}

	view := &ParticipantView{
		ParticipantID: p.ID,
		SessionID:     s.ID,
		SessionName:   s.Name,
		JoinCode:      p.JoinCode,
		Name:          p.DisplayName(),
		Type:          p.Type,
		State:         state,
		CurrentRound:  p.CurrentRound,
		RoundCount:    s.RoundCount,
		Balance:       p.Balance,
	}
	if state == models.StateReveal {
		ph := f.CurrentPhase
		if f.PreviousPhase != nil && phaseclock.Classify(phaseclock.Now(a.clock), f.PreviousPhase) == models.PhaseWatch {
			ph = f.PreviousPhase
		}
		if ph != nil {
			ends := ph.WatchEndsAt
			view.PhaseEndsAt = &ends
		}
	}
	return view, nil
}

// GetRevealSnapshot places round on the phase clock. Results are included
// once the round is settled.
func (a *App) GetRevealSnapshot(ctx context.Context, sessionID uuid.UUID, round int) (*RevealSnapshot, error) {
	if _, err := a.store.GetSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	ph, err := a.roundPhase(ctx, sessionID, round)
	if err != nil {
		return nil, err
	}
	now := phaseclock.Now(a.clock)
	snap := &RevealSnapshot{
		SessionID: sessionID,
		Round:     round,
		Phase:     phaseclock.Classify(now, ph),
		Remaining: int(phaseclock.Remaining(now, ph) / time.Second),
		Results:   []ParticipantResult{},
	}
	if ph == nil {
		return snap, nil
	}
	ends := ph.WatchEndsAt
	snap.PhaseEndsAt = &ends
	if snap.Results, err = a.results(ctx, sessionID, round); err != nil {
		return nil, err
	}
	return snap, nil
}

// GetCostPreview returns the participant's cost for A and for B at every
// possible number of others choosing A.
func (a *App) GetCostPreview(ctx context.Context, participantID uuid.UUID) (*CostPreview, error) {
	p, s, err := a.load(ctx, participantID)
	if err != nil {
		return nil, err
	}
	pv, err := a.table.Preview(p.Type, s.GroupSize)
	if err != nil {
		return nil, fmt.Errorf("failed to build cost preview: %w", err)
	}
	return &CostPreview{
		ParticipantID: p.ID,
		Type:          p.Type,
		GroupSize:     s.GroupSize,
		BasePayout:    s.BasePayout,
		ACost:         pv.ACost,
		BCosts:        pv.BCosts,
	}, nil
}
