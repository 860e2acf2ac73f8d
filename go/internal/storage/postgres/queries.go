package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mcdev12/vaxgame/go/internal/models"
	"github.com/mcdev12/vaxgame/go/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/sqlc-dev/pqtype"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db dbtx
}

var _ storage.Queries = (*queries)(nil)

const sessionColumns = `id, name, group_size, round_count, base_payout, watch_window_seconds, archived, created_at`

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	if err := row.Scan(&s.ID, &s.Name, &s.GroupSize, &s.RoundCount, &s.BasePayout,
		&s.WatchWindowSeconds, &s.Archived, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}

func (q *queries) InsertSession(ctx context.Context, s *models.Session) error {
	_, err := q.db.Exec(ctx, `
INSERT INTO sessions (`+sessionColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.Name, s.GroupSize, s.RoundCount, s.BasePayout, s.WatchWindowSeconds, s.Archived, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", mapError(err))
	}
	return nil
}

func (q *queries) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, err := scanSession(q.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", mapError(err))
	}
	return s, nil
}

func (q *queries) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := q.db.Query(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", mapError(err))
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (q *queries) ArchiveSession(ctx context.Context, id uuid.UUID) error {
	return q.execOne(ctx, "archive session", `UPDATE sessions SET archived = TRUE WHERE id = $1`, id)
}

func (q *queries) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM participants WHERE session_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete participants: %w", mapError(err))
	}
	return q.execOne(ctx, "delete session", `DELETE FROM sessions WHERE id = $1`, id)
}

func (q *queries) execOne(ctx context.Context, op, sql string, args ...any) error {
	tag, err := q.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to %s: %w", op, mapError(pgx.ErrNoRows))
	}
	return nil
}

const participantColumns = `id, session_id, seat, join_code, alias, joined, join_order, current_round, balance, completed, type`

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var p models.Participant
	if err := row.Scan(&p.ID, &p.SessionID, &p.Seat, &p.JoinCode, &p.Alias, &p.Joined, &p.JoinOrder,
		&p.CurrentRound, &p.Balance, &p.Completed, &p.Type); err != nil {
		return nil, err
	}
	return &p, nil
}

func (q *queries) InsertParticipant(ctx context.Context, p *models.Participant) error {
	_, err := q.db.Exec(ctx, `
INSERT INTO participants (`+participantColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.SessionID, p.Seat, p.JoinCode, p.Alias, p.Joined, p.JoinOrder,
		p.CurrentRound, p.Balance, p.Completed, p.Type)
	if err != nil {
		return fmt.Errorf("failed to insert participant: %w", mapError(err))
	}
	return nil
}

func (q *queries) GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	p, err := scanParticipant(q.db.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", mapError(err))
	}
	return p, nil
}

func (q *queries) GetParticipantByCode(ctx context.Context, code string) (*models.Participant, error) {
	p, err := scanParticipant(q.db.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE join_code = $1`, code))
	if err != nil {
		return nil, fmt.Errorf("failed to get participant by code: %w", mapError(err))
	}
	return p, nil
}

func (q *queries) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE session_id = $1 ORDER BY seat`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", mapError(err))
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (q *queries) CountJoined(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	if err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM participants WHERE session_id = $1 AND joined`, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count joined participants: %w", mapError(err))
	}
	return n, nil
}

func (q *queries) NextJoinOrder(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	if err := q.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(join_order) + 1, 0) FROM participants WHERE session_id = $1`, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to compute next join order: %w", mapError(err))
	}
	return n, nil
}

func (q *queries) MarkJoined(ctx context.Context, id uuid.UUID, joinOrder, typ int) (bool, error) {
	tag, err := q.db.Exec(ctx, `
UPDATE participants SET joined = TRUE, join_order = $2, type = $3
WHERE id = $1 AND NOT joined`, id, joinOrder, typ)
	if err != nil {
		return false, fmt.Errorf("failed to mark participant joined: %w", mapError(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (q *queries) SetAlias(ctx context.Context, id uuid.UUID, alias string) error {
	return q.execOne(ctx, "set alias", `UPDATE participants SET alias = $2 WHERE id = $1`, id, alias)
}

func (q *queries) SetBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	return q.execOne(ctx, "set balance", `UPDATE participants SET balance = $2 WHERE id = $1`, id, balance)
}

func (q *queries) AdvanceRound(ctx context.Context, sessionID uuid.UUID, from int) (int64, error) {
	tag, err := q.db.Exec(ctx, `
UPDATE participants SET current_round = current_round + 1
WHERE session_id = $1 AND current_round = $2`, sessionID, from)
	if err != nil {
		return 0, fmt.Errorf("failed to advance round: %w", mapError(err))
	}
	return tag.RowsAffected(), nil
}

func (q *queries) CompleteParticipants(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE participants SET completed = TRUE WHERE session_id = $1 AND NOT completed`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to complete participants: %w", mapError(err))
	}
	return tag.RowsAffected(), nil
}

func (q *queries) ResetParticipants(ctx context.Context, sessionID uuid.UUID) error {
	if _, err := q.db.Exec(ctx,
		`UPDATE participants SET current_round = 1, balance = 0, completed = FALSE WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to reset participants: %w", mapError(err))
	}
	return nil
}

const decisionColumns = `id, session_id, participant_id, round_number, choice, a_cost, b_cost, total_cost, payout, others_a, created_at`

func scanDecision(row pgx.Row) (*models.Decision, error) {
	var d models.Decision
	var choice string
	if err := row.Scan(&d.ID, &d.SessionID, &d.ParticipantID, &d.RoundNumber, &choice,
		&d.ACost, &d.BCost, &d.TotalCost, &d.Payout, &d.OthersA, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.Choice = models.Choice(choice)
	d.CreatedAt = d.CreatedAt.UTC()
	return &d, nil
}

func (q *queries) InsertDecision(ctx context.Context, d *models.Decision) error {
	_, err := q.db.Exec(ctx, `
INSERT INTO decisions (id, session_id, participant_id, round_number, choice, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.SessionID, d.ParticipantID, d.RoundNumber, string(d.Choice), d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", mapError(err))
	}
	return nil
}

func (q *queries) GetDecision(ctx context.Context, participantID uuid.UUID, round int) (*models.Decision, error) {
	d, err := scanDecision(q.db.QueryRow(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE participant_id = $1 AND round_number = $2`,
		participantID, round))
	if err != nil {
		return nil, fmt.Errorf("failed to get decision: %w", mapError(err))
	}
	return d, nil
}

func (q *queries) ListRoundDecisions(ctx context.Context, sessionID uuid.UUID, round int) ([]models.Decision, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE session_id = $1 AND round_number = $2 ORDER BY participant_id`,
		sessionID, round)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", mapError(err))
	}
	defer rows.Close()

	var out []models.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (q *queries) CountRoundDecisions(ctx context.Context, sessionID uuid.UUID, round int) (storage.RoundCounts, error) {
	var c storage.RoundCounts
	err := q.db.QueryRow(ctx, `
SELECT COUNT(*), COUNT(*) FILTER (WHERE total_cost IS NULL)
FROM decisions WHERE session_id = $1 AND round_number = $2`, sessionID, round).Scan(&c.Decided, &c.Unsettled)
	if err != nil {
		return c, fmt.Errorf("failed to count decisions: %w", mapError(err))
	}
	return c, nil
}

func (q *queries) SettleDecision(ctx context.Context, o storage.DecisionOutcome) (bool, error) {
	tag, err := q.db.Exec(ctx, `
UPDATE decisions
SET a_cost = $3, b_cost = $4, total_cost = $5, payout = $6, others_a = $7
WHERE participant_id = $1 AND round_number = $2 AND total_cost IS NULL`,
		o.ParticipantID, o.RoundNumber, o.ACost, o.BCost, o.TotalCost, o.Payout, o.OthersA)
	if err != nil {
		return false, fmt.Errorf("failed to settle decision: %w", mapError(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (q *queries) DeleteSessionDecisions(ctx context.Context, sessionID uuid.UUID) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM decisions WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete decisions: %w", mapError(err))
	}
	return nil
}

func (q *queries) InsertRoundPhase(ctx context.Context, ph models.RoundPhase) (bool, error) {
	tag, err := q.db.Exec(ctx, `
INSERT INTO round_phases (session_id, round_number, decision_ends_at, watch_ends_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (session_id, round_number) DO NOTHING`,
		ph.SessionID, ph.RoundNumber, ph.DecisionEndsAt, ph.WatchEndsAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert round phase: %w", mapError(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (q *queries) GetRoundPhase(ctx context.Context, sessionID uuid.UUID, round int) (*models.RoundPhase, error) {
	var ph models.RoundPhase
	err := q.db.QueryRow(ctx, `
SELECT session_id, round_number, decision_ends_at, watch_ends_at
FROM round_phases WHERE session_id = $1 AND round_number = $2`, sessionID, round).
		Scan(&ph.SessionID, &ph.RoundNumber, &ph.DecisionEndsAt, &ph.WatchEndsAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get round phase: %w", mapError(err))
	}
	ph.DecisionEndsAt = ph.DecisionEndsAt.UTC()
	ph.WatchEndsAt = ph.WatchEndsAt.UTC()
	return &ph, nil
}

func (q *queries) DeleteSessionPhases(ctx context.Context, sessionID uuid.UUID) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM round_phases WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete round phases: %w", mapError(err))
	}
	return nil
}

const outboxColumns = `id, session_id, event_type, payload, created_at, sent_at`

func scanOutbox(row pgx.Row) (*models.OutboxEvent, error) {
	var ev models.OutboxEvent
	var payload pqtype.NullRawMessage
	if err := row.Scan(&ev.ID, &ev.SessionID, &ev.EventType, &payload, &ev.CreatedAt, &ev.SentAt); err != nil {
		return nil, err
	}
	if payload.Valid {
		ev.Payload = payload.RawMessage
	}
	ev.CreatedAt = ev.CreatedAt.UTC()
	return &ev, nil
}

func (q *queries) InsertOutboxEvent(ctx context.Context, ev *models.OutboxEvent) error {
	payload := pqtype.NullRawMessage{RawMessage: ev.Payload, Valid: len(ev.Payload) > 0}
	_, err := q.db.Exec(ctx, `
INSERT INTO outbox_events (id, session_id, event_type, payload, created_at)
VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.SessionID, ev.EventType, payload, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", mapError(err))
	}
	return nil
}

func (q *queries) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*models.OutboxEvent, error) {
	ev, err := scanOutbox(q.db.QueryRow(ctx, `SELECT `+outboxColumns+` FROM outbox_events WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox event: %w", mapError(err))
	}
	return ev, nil
}

func (q *queries) FetchUnsentOutbox(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	rows, err := q.db.Query(ctx, `
SELECT `+outboxColumns+` FROM outbox_events
WHERE sent_at IS NULL ORDER BY created_at, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", mapError(err))
	}
	defer rows.Close()

	var out []models.OutboxEvent
	for rows.Next() {
		ev, err := scanOutbox(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

func (q *queries) MarkOutboxSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return q.execOne(ctx, "mark outbox event sent", `UPDATE outbox_events SET sent_at = $2 WHERE id = $1`, id, at)
}

func (q *queries) DeleteSessionOutbox(ctx context.Context, sessionID uuid.UUID) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM outbox_events WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete outbox events: %w", mapError(err))
	}
	return nil
}
