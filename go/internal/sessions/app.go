// Package sessions issues sessions and their seats, lets participants claim
// a seat by join code, and carries the admin life-cycle operations.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mcdev12/vaxgame/go/internal/events"
	"github.com/mcdev12/vaxgame/go/internal/gameerr"
	"github.com/mcdev12/vaxgame/go/internal/models"
	"github.com/mcdev12/vaxgame/go/internal/phaseclock"
	"github.com/mcdev12/vaxgame/go/internal/storage"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const createAttempts = 5

// App handles session registry business logic
type App struct {
	store storage.Store
	clock phaseclock.Clock
}

// NewApp creates a new sessions App
func NewApp(store storage.Store, clock phaseclock.Clock) *App {
	return &App{
		store: store,
		clock: clock,
	}
}

// CreateSession creates a session and one seat per group member. A join code
// collision retries the whole creation with fresh codes.
func (a *App) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreatedSession, error) {
	req, err := a.normalizeCreateRequest(req)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		created, err := a.createOnce(ctx, req)
		if err == nil {
			log.Info().
				Str("session_id", created.Session.ID.String()).
				Str("name", created.Session.Name).
				Int("group_size", created.Session.GroupSize).
				Int("round_count", created.Session.RoundCount).
				Msg("session created")
			return created, nil
		}
		if !errors.Is(err, gameerr.ErrDuplicate) || attempt == createAttempts {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		log.Debug().Int("attempt", attempt).Msg("join code collision, regenerating session")
	}
}

func (a *App) normalizeCreateRequest(req CreateSessionRequest) (CreateSessionRequest, error) {
	now := phaseclock.Now(a.clock)
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		req.Name = fmt.Sprintf("Session %s", now.Format("20060102-1504"))
	}
	if req.GroupSize == 0 {
		req.GroupSize = DefaultGroupSize
	}
	if req.RoundCount == 0 {
		req.RoundCount = DefaultRoundCount
	}
	switch {
	case req.GroupSize < 0:
		return req, gameerr.Validationf("group size must be positive")
	case req.RoundCount < 0:
		return req, gameerr.Validationf("round count must be positive")
	case req.BasePayout.IsNegative():
		return req, gameerr.Validationf("base payout must not be negative")
	case req.WatchWindowSeconds < 0:
		return req, gameerr.Validationf("watch window must not be negative")
	}
	return req, nil
}

func (a *App) createOnce(ctx context.Context, req CreateSessionRequest) (*CreatedSession, error) {
	session := &models.Session{
		ID:                 uuid.New(),
		Name:               req.Name,
		GroupSize:          req.GroupSize,
		RoundCount:         req.RoundCount,
		BasePayout:         req.BasePayout,
		WatchWindowSeconds: req.WatchWindowSeconds,
		CreatedAt:          phaseclock.Now(a.clock),
	}
	participants := make([]models.Participant, req.GroupSize)
	for i := range participants {
		code, err := NewJoinCode()
		if err != nil {
			return nil, err
		}
		participants[i] = models.Participant{
			ID:           uuid.New(),
			SessionID:    session.ID,
			Seat:         i,
			JoinCode:     code,
			CurrentRound: 1,
			Balance:      decimal.Zero,
			Type:         models.TypeForIndex(i),
		}
	}

	err := a.store.InSessionTx(ctx, session.ID, storage.LockWait, func(q storage.Queries) error {
		if err := q.InsertSession(ctx, session); err != nil {
			return err
		}
		for i := range participants {
			if err := q.InsertParticipant(ctx, &participants[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &CreatedSession{Session: session, Participants: participants}, nil
}

// GetSession retrieves a session by ID
func (a *App) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, err := a.store.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	return s, nil
}

// GetParticipant retrieves a participant by ID
func (a *App) GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	p, err := a.store.GetParticipant(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("participant not found: %w", err)
	}
	return p, nil
}

// Join claims the seat behind code. The first join assigns the next join
// order and the type that goes with it; joining again returns the same
// participant unchanged apart from the alias.
func (a *App) Join(ctx context.Context, code, alias string) (*models.Participant, error) {
	code = NormalizeJoinCode(code)
	if !ValidJoinCode(code) {
		return nil, gameerr.Validationf("malformed join code %q", code)
	}
	alias = strings.TrimSpace(alias)
	if err := validateAlias(alias, true); err != nil {
		return nil, err
	}

	p, err := a.store.GetParticipantByCode(ctx, code)
	if err != nil {
		if gameerr.IsNotFound(err) {
			return nil, &gameerr.ValidationError{Msg: "unknown join code", Err: err}
		}
		return nil, err
	}

	var joined *models.Participant
	firstJoin := false
	err = a.store.InSessionTx(ctx, p.SessionID, storage.LockWait, func(q storage.Queries) error {
		session, err := q.GetSession(ctx, p.SessionID)
		if err != nil {
			return err
		}
		cur, err := q.GetParticipant(ctx, p.ID)
		if err != nil {
			return err
		}
		if session.Archived {
			return gameerr.Conflictf("session %s is archived", session.ID)
		}
		if cur.Completed {
			return gameerr.Conflictf("participant %s has already completed the session", cur.JoinCode)
		}

		if !cur.Joined {
			order, err := q.NextJoinOrder(ctx, cur.SessionID)
			if err != nil {
				return err
			}
			ok, err := q.MarkJoined(ctx, cur.ID, order, models.TypeForIndex(order))
			if err != nil {
				return err
			}
			firstJoin = ok
		}
		if alias != "" {
			if err := q.SetAlias(ctx, cur.ID, alias); err != nil {
				return err
			}
		}
		joined, err = q.GetParticipant(ctx, cur.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to join: %w", err)
	}

	if firstJoin {
		log.Info().
			Str("session_id", joined.SessionID.String()).
			Str("participant_id", joined.ID.String()).
			Int("join_order", *joined.JoinOrder).
			Int("type", joined.Type).
			Msg("participant joined")
	}
	return joined, nil
}

func validateAlias(alias string, optional bool) error {
	if alias == "" {
		if optional {
			return nil
		}
		return gameerr.Validationf("alias must not be empty")
	}
	if utf8.RuneCountInString(alias) > MaxAliasLength {
		return gameerr.Validationf("alias is longer than %d characters", MaxAliasLength)
	}
	return nil
}

// SetAlias changes a participant's display name.
func (a *App) SetAlias(ctx context.Context, participantID uuid.UUID, alias string) (*models.Participant, error) {
	alias = strings.TrimSpace(alias)
	if err := validateAlias(alias, false); err != nil {
		return nil, err
	}
	p, err := a.store.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("participant not found: %w", err)
	}
	err = a.store.InSessionTx(ctx, p.SessionID, storage.LockWait, func(q storage.Queries) error {
		session, err := q.GetSession(ctx, p.SessionID)
		if err != nil {
			return err
		}
		cur, err := q.GetParticipant(ctx, p.ID)
		if err != nil {
			return err
		}
		if session.Archived {
			return gameerr.Conflictf("session %s is archived", session.ID)
		}
		if cur.Completed {
			return gameerr.Conflictf("participant %s has already completed the session", cur.JoinCode)
		}
		return q.SetAlias(ctx, cur.ID, alias)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set alias: %w", err)
	}
	return a.GetParticipant(ctx, participantID)
}

// LobbyStatus reports how many seats of the participant's group are taken.
func (a *App) LobbyStatus(ctx context.Context, participantID uuid.UUID) (*LobbyStatus, error) {
	p, err := a.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	s, err := a.GetSession(ctx, p.SessionID)
	if err != nil {
		return nil, err
	}
	joined, err := a.store.CountJoined(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	return &LobbyStatus{Joined: joined, GroupSize: s.GroupSize, Ready: joined >= s.GroupSize}, nil
}

// ListSessions returns every session, newest first.
func (a *App) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	sessions, err := a.store.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	out := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		ps, err := a.store.ListParticipants(ctx, s.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list participants: %w", err)
		}
		sum := SessionSummary{Session: s, JoinCodes: make([]string, 0, len(ps))}
		for _, p := range ps {
			if p.Joined {
				sum.Joined++
			}
			sum.JoinCodes = append(sum.JoinCodes, p.JoinCode)
		}
		out = append(out, sum)
	}
	return out, nil
}

// Monitor shows every participant's progress through the group's lowest
// current round.
func (a *App) Monitor(ctx context.Context, sessionID uuid.UUID) (*MonitorView, error) {
	if _, err := a.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	ps, err := a.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	round := 0
	for _, p := range ps {
		if round == 0 || p.CurrentRound < round {
			round = p.CurrentRound
		}
	}
	if round == 0 {
		round = 1
	}

	decisions, err := a.store.ListRoundDecisions(ctx, sessionID, round)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	decided := make(map[uuid.UUID]bool, len(decisions))
	for _, d := range decisions {
		decided[d.ParticipantID] = true
	}

	view := &MonitorView{
		SessionID:    sessionID,
		Round:        round,
		Participants: make([]MonitorRow, 0, len(ps)),
		GeneratedAt:  phaseclock.Now(a.clock),
	}
	for _, p := range ps {
		view.Participants = append(view.Participants, MonitorRow{
			ParticipantID: p.ID,
			JoinCode:      p.JoinCode,
			Alias:         p.Alias,
			Joined:        p.Joined,
			CurrentRound:  p.CurrentRound,
			Decided:       decided[p.ID],
			Completed:     p.Completed,
		})
	}
	return view, nil
}

// Archive ends a session for good and marks every participant completed.
// Archiving twice is a no-op.
func (a *App) Archive(ctx context.Context, sessionID uuid.UUID) error {
	archived := false
	err := a.store.InSessionTx(ctx, sessionID, storage.LockWait, func(q storage.Queries) error {
		s, err := q.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if s.Archived {
			return nil
		}
		if err := q.ArchiveSession(ctx, sessionID); err != nil {
			return err
		}
		if _, err := q.CompleteParticipants(ctx, sessionID); err != nil {
			return err
		}
		now := phaseclock.Now(a.clock)
		ev, err := events.NewOutboxEvent(sessionID, events.TypeSessionArchived, events.SessionArchivedPayload{
			SessionID:  sessionID.String(),
			ArchivedAt: now,
		}, now)
		if err != nil {
			return err
		}
		archived = true
		return q.InsertOutboxEvent(ctx, ev)
	})
	if err != nil {
		return fmt.Errorf("failed to archive session: %w", err)
	}
	if archived {
		log.Info().Str("session_id", sessionID.String()).Msg("session archived")
	}
	return nil
}

// Reset clears every decision and phase of a session and puts each
// participant back on round one with a zero balance. Joins are kept.
func (a *App) Reset(ctx context.Context, sessionID uuid.UUID) error {
	err := a.store.InSessionTx(ctx, sessionID, storage.LockWait, func(q storage.Queries) error {
		s, err := q.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if s.Archived {
			return gameerr.Conflictf("session %s is archived", sessionID)
		}
		if err := q.DeleteSessionDecisions(ctx, sessionID); err != nil {
			return err
		}
		if err := q.DeleteSessionPhases(ctx, sessionID); err != nil {
			return err
		}
		if err := q.ResetParticipants(ctx, sessionID); err != nil {
			return err
		}
		now := phaseclock.Now(a.clock)
		ev, err := events.NewOutboxEvent(sessionID, events.TypeSessionReset, events.SessionResetPayload{
			SessionID: sessionID.String(),
			ResetAt:   now,
		}, now)
		if err != nil {
			return err
		}
		return q.InsertOutboxEvent(ctx, ev)
	})
	if err != nil {
		return fmt.Errorf("failed to reset session: %w", err)
	}
	log.Info().Str("session_id", sessionID.String()).Msg("session reset")
	return nil
}

// Delete removes a session and everything it owns.
func (a *App) Delete(ctx context.Context, sessionID uuid.UUID) error {
	err := a.store.InSessionTx(ctx, sessionID, storage.LockWait, func(q storage.Queries) error {
		if err := q.DeleteSessionDecisions(ctx, sessionID); err != nil {
			return err
		}
		if err := q.DeleteSessionPhases(ctx, sessionID); err != nil {
			return err
		}
		if err := q.DeleteSessionOutbox(ctx, sessionID); err != nil {
			return err
		}
		return q.DeleteSession(ctx, sessionID)
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	log.Info().Str("session_id", sessionID.String()).Msg("session deleted")
	return nil
}
