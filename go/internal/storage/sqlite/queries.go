package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/vaxgame/go/internal/models"
	"github.com/mcdev12/vaxgame/go/internal/sqlutil"
	"github.com/mcdev12/vaxgame/go/internal/storage"
	"github.com/shopspring/decimal"
)

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries runs statements against either the pool or a transaction.
type queries struct {
	db dbtx
}

var _ storage.Queries = (*queries)(nil)

type scanner interface {
	Scan(dest ...any) error
}

const sessionColumns = `id, name, group_size, round_count, base_payout, watch_window_seconds, archived, created_at`

func scanSession(row scanner) (*models.Session, error) {
	var s models.Session
	var createdAt int64
	if err := row.Scan(&s.ID, &s.Name, &s.GroupSize, &s.RoundCount, &s.BasePayout,
		&s.WatchWindowSeconds, &s.Archived, &createdAt); err != nil {
		return nil, err
	}
	s.CreatedAt = sqlutil.FromUnix(createdAt)
	return &s, nil
}

func (q *queries) InsertSession(ctx context.Context, s *models.Session) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO sessions (`+sessionColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.GroupSize, s.RoundCount, s.BasePayout.String(),
		s.WatchWindowSeconds, s.Archived, sqlutil.ToUnix(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", mapError(err))
	}
	return nil
}

func (q *queries) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", mapError(err))
	}
	return s, nil
}

func (q *queries) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC, id`)
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
	return q.execOne(ctx, "archive session", `UPDATE sessions SET archived = 1 WHERE id = ?`, id)
}

func (q *queries) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM participants WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete participants: %w", mapError(err))
	}
	return q.execOne(ctx, "delete session", `DELETE FROM sessions WHERE id = ?`, id)
}

// execOne runs a statement that must touch exactly one row.
func (q *queries) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("failed to %s: %w", op, mapError(sql.ErrNoRows))
	}
	return nil
}

const participantColumns = `id, session_id, seat, join_code, alias, joined, join_order, current_round, balance, completed, type`

func scanParticipant(row scanner) (*models.Participant, error) {
	var p models.Participant
	var alias sql.NullString
	var joinOrder sql.NullInt64
	if err := row.Scan(&p.ID, &p.SessionID, &p.Seat, &p.JoinCode, &alias, &p.Joined, &joinOrder,
		&p.CurrentRound, &p.Balance, &p.Completed, &p.Type); err != nil {
		return nil, err
	}
	p.Alias = sqlutil.FromSqlStringPtr(alias)
	p.JoinOrder = sqlutil.FromSqlInt(joinOrder)
	return &p, nil
}

func (q *queries) InsertParticipant(ctx context.Context, p *models.Participant) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO participants (`+participantColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SessionID, p.Seat, p.JoinCode, sqlutil.ToSqlString(p.Alias), p.Joined,
		sqlutil.ToSqlInt(p.JoinOrder), p.CurrentRound, p.Balance.String(), p.Completed, p.Type)
	if err != nil {
		return fmt.Errorf("failed to insert participant: %w", mapError(err))
	}
	return nil
}

func (q *queries) GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = ?`, id)
	p, err := scanParticipant(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", mapError(err))
	}
	return p, nil
}

func (q *queries) GetParticipantByCode(ctx context.Context, code string) (*models.Participant, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM participants WHERE join_code = ?`, code)
	p, err := scanParticipant(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get participant by code: %w", mapError(err))
	}
	return p, nil
}

func (q *queries) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE session_id = ? ORDER BY seat`, sessionID)
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
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM participants WHERE session_id = ? AND joined = 1`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count joined participants: %w", mapError(err))
	}
	return n, nil
}

func (q *queries) NextJoinOrder(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(join_order) + 1, 0) FROM participants WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to compute next join order: %w", mapError(err))
	}
	return n, nil
}

func (q *queries) MarkJoined(ctx context.Context, id uuid.UUID, joinOrder, typ int) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
UPDATE participants SET joined = 1, join_order = ?, type = ?
WHERE id = ? AND joined = 0`, joinOrder, typ, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark participant joined: %w", mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark participant joined: %w", err)
	}
	return n == 1, nil
}

func (q *queries) SetAlias(ctx context.Context, id uuid.UUID, alias string) error {
	return q.execOne(ctx, "set alias", `UPDATE participants SET alias = ? WHERE id = ?`, alias, id)
}

func (q *queries) SetBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	return q.execOne(ctx, "set balance", `UPDATE participants SET balance = ? WHERE id = ?`, balance.String(), id)
}

func (q *queries) AdvanceRound(ctx context.Context, sessionID uuid.UUID, from int) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
UPDATE participants SET current_round = current_round + 1
WHERE session_id = ? AND current_round = ?`, sessionID, from)
	if err != nil {
		return 0, fmt.Errorf("failed to advance round: %w", mapError(err))
	}
	return res.RowsAffected()
}

func (q *queries) CompleteParticipants(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE participants SET completed = 1 WHERE session_id = ? AND completed = 0`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to complete participants: %w", mapError(err))
	}
	return res.RowsAffected()
}

func (q *queries) ResetParticipants(ctx context.Context, sessionID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE participants SET current_round = 1, balance = '0', completed = 0 WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to reset participants: %w", mapError(err))
	}
	return nil
}

const decisionColumns = `id, session_id, participant_id, round_number, choice, a_cost, b_cost, total_cost, payout, others_a, created_at`

func scanDecision(row scanner) (*models.Decision, error) {
	var d models.Decision
	var othersA sql.NullInt64
	var createdAt int64
	if err := row.Scan(&d.ID, &d.SessionID, &d.ParticipantID, &d.RoundNumber, &d.Choice,
		&d.ACost, &d.BCost, &d.TotalCost, &d.Payout, &othersA, &createdAt); err != nil {
		return nil, err
	}
	d.OthersA = sqlutil.FromSqlInt(othersA)
	d.CreatedAt = sqlutil.FromUnix(createdAt)
	return &d, nil
}

func (q *queries) InsertDecision(ctx context.Context, d *models.Decision) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO decisions (id, session_id, participant_id, round_number, choice, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.SessionID, d.ParticipantID, d.RoundNumber, string(d.Choice), sqlutil.ToUnix(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", mapError(err))
	}
	return nil
}

func (q *queries) GetDecision(ctx context.Context, participantID uuid.UUID, round int) (*models.Decision, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE participant_id = ? AND round_number = ?`,
		participantID, round)
	d, err := scanDecision(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get decision: %w", mapError(err))
	}
	return d, nil
}

func (q *queries) ListRoundDecisions(ctx context.Context, sessionID uuid.UUID, round int) ([]models.Decision, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE session_id = ? AND round_number = ? ORDER BY participant_id`,
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
	err := q.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(CASE WHEN total_cost IS NULL THEN 1 ELSE 0 END), 0)
FROM decisions WHERE session_id = ? AND round_number = ?`, sessionID, round).Scan(&c.Decided, &c.Unsettled)
	if err != nil {
		return c, fmt.Errorf("failed to count decisions: %w", mapError(err))
	}
	return c, nil
}

func (q *queries) SettleDecision(ctx context.Context, o storage.DecisionOutcome) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
UPDATE decisions
SET a_cost = ?, b_cost = ?, total_cost = ?, payout = ?, others_a = ?
WHERE participant_id = ? AND round_number = ? AND total_cost IS NULL`,
		o.ACost, o.BCost, o.TotalCost.String(), o.Payout.String(), o.OthersA,
		o.ParticipantID, o.RoundNumber)
	if err != nil {
		return false, fmt.Errorf("failed to settle decision: %w", mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to settle decision: %w", err)
	}
	return n == 1, nil
}

func (q *queries) DeleteSessionDecisions(ctx context.Context, sessionID uuid.UUID) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM decisions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete decisions: %w", mapError(err))
	}
	return nil
}

func (q *queries) InsertRoundPhase(ctx context.Context, ph models.RoundPhase) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
INSERT INTO round_phases (session_id, round_number, decision_ends_at, watch_ends_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (session_id, round_number) DO NOTHING`,
		ph.SessionID, ph.RoundNumber, sqlutil.ToUnix(ph.DecisionEndsAt), sqlutil.ToUnix(ph.WatchEndsAt))
	if err != nil {
		return false, fmt.Errorf("failed to insert round phase: %w", mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert round phase: %w", err)
	}
	return n == 1, nil
}

func (q *queries) GetRoundPhase(ctx context.Context, sessionID uuid.UUID, round int) (*models.RoundPhase, error) {
	var ph models.RoundPhase
	var decisionEnds, watchEnds int64
	err := q.db.QueryRowContext(ctx, `
SELECT session_id, round_number, decision_ends_at, watch_ends_at
FROM round_phases WHERE session_id = ? AND round_number = ?`, sessionID, round).
		Scan(&ph.SessionID, &ph.RoundNumber, &decisionEnds, &watchEnds)
	if err != nil {
		return nil, fmt.Errorf("failed to get round phase: %w", mapError(err))
	}
	ph.DecisionEndsAt = sqlutil.FromUnix(decisionEnds)
	ph.WatchEndsAt = sqlutil.FromUnix(watchEnds)
	return &ph, nil
}

func (q *queries) DeleteSessionPhases(ctx context.Context, sessionID uuid.UUID) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM round_phases WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete round phases: %w", mapError(err))
	}
	return nil
}

const outboxColumns = `id, session_id, event_type, payload, created_at, sent_at`

func scanOutbox(row scanner) (*models.OutboxEvent, error) {
	var ev models.OutboxEvent
	var payload string
	var createdAt int64
	var sentAt sql.NullInt64
	if err := row.Scan(&ev.ID, &ev.SessionID, &ev.EventType, &payload, &createdAt, &sentAt); err != nil {
		return nil, err
	}
	ev.Payload = []byte(payload)
	ev.CreatedAt = sqlutil.FromUnix(createdAt)
	ev.SentAt = sqlutil.FromSqlUnix(sentAt)
	return &ev, nil
}

func (q *queries) InsertOutboxEvent(ctx context.Context, ev *models.OutboxEvent) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO outbox_events (id, session_id, event_type, payload, created_at)
VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.SessionID, ev.EventType, string(ev.Payload), sqlutil.ToUnix(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", mapError(err))
	}
	return nil
}

func (q *queries) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*models.OutboxEvent, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM outbox_events WHERE id = ?`, id)
	ev, err := scanOutbox(row)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox event: %w", mapError(err))
	}
	return ev, nil
}

func (q *queries) FetchUnsentOutbox(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT `+outboxColumns+` FROM outbox_events
WHERE sent_at IS NULL ORDER BY created_at, id LIMIT ?`, limit)
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
	return q.execOne(ctx, "mark outbox event sent",
		`UPDATE outbox_events SET sent_at = ? WHERE id = ?`, sqlutil.ToUnix(at), id)
}

func (q *queries) DeleteSessionOutbox(ctx context.Context, sessionID uuid.UUID) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM outbox_events WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete outbox events: %w", mapError(err))
	}
	return nil
}
