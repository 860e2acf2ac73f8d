// Package postgres is the pgx-backed storage backend. Session transactions
// are serialized with a transaction-scoped advisory lock keyed on the session.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/vaxgame/go/internal/gameerr"
	"github.com/mcdev12/vaxgame/go/internal/sqlutil"
	"github.com/mcdev12/vaxgame/go/internal/storage"
	"github.com/mcdev12/vaxgame/go/internal/storage/postgres/migrations"
	"github.com/rs/zerolog/log"
)

// NotifyChannel is the LISTEN channel the outbox trigger notifies on.
const NotifyChannel = "game_outbox_events"

const maxTxAttempts = 4

// Store is a Postgres-backed storage.Store.
type Store struct {
	*queries
	pool  *pgxpool.Pool
	locks *storage.SessionLocks
}

// Connect creates a pgx pool for dsn, verifies it with a ping and applies
// migrations.
func Connect(ctx context.Context, dsn string, opts ...func(*pgxpool.Config)) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.MaxConnIdleTime == 0 {
		cfg.MaxConnIdleTime = 5 * time.Minute
	}
	if cfg.HealthCheckPeriod == 0 {
		cfg.HealthCheckPeriod = time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{queries: &queries{db: pool}, pool: pool, locks: storage.NewSessionLocks()}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: run migrations: %w", err)
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// InSessionTx implements storage.Store. In LockWait mode a transaction that
// fails with a serialization failure or deadlock is retried with backoff.
func (s *Store) InSessionTx(ctx context.Context, sessionID uuid.UUID, mode storage.LockMode, fn func(q storage.Queries) error) error {
	unlock, err := s.locks.Acquire(ctx, sessionID, mode)
	if err != nil {
		return err
	}
	defer unlock()

	attempts := 1
	if mode == storage.LockWait {
		attempts = maxTxAttempts
	}
	retryDelay := 25 * time.Millisecond
	for attempt := 0; ; attempt++ {
		err := s.runTx(ctx, sessionID, mode, fn)
		if err == nil {
			return nil
		}
		if mode == storage.LockTry || !isSerializationError(err) || attempt == attempts-1 {
			return mapError(err)
		}
		log.Debug().Err(err).Str("session_id", sessionID.String()).Int("attempt", attempt+1).Msg("retrying session transaction")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
		retryDelay *= 2
	}
}

func (s *Store) runTx(ctx context.Context, sessionID uuid.UUID, mode storage.LockMode, fn func(q storage.Queries) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if mode == storage.LockTry {
		var locked bool
		err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock(hashtextextended($1, 0))`, sessionID.String()).Scan(&locked)
		if err != nil {
			return fmt.Errorf("try advisory lock: %w", err)
		}
		if !locked {
			return gameerr.ErrContention
		}
	} else if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, sessionID.String()); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) runMigrations(ctx context.Context) error {
	all, err := sqlutil.LoadMigrations(migrations.FS, ".")
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS `+sqlutil.MigrationTable+` (
    name TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, m := range all {
		var applied bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM `+sqlutil.MigrationTable+` WHERE name = $1)`, m.Name).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", m.Name, err)
		}
		if applied {
			continue
		}
		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.Up); err != nil && !sqlutil.IsAlreadyExistsError(err) {
				return fmt.Errorf("exec migration %s: %w", m.Name, err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO `+sqlutil.MigrationTable+` (name) VALUES ($1) ON CONFLICT DO NOTHING`, m.Name); err != nil {
				return fmt.Errorf("record migration %s: %w", m.Name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		log.Info().Str("migration", m.Name).Msg("applied migration")
	}
	return nil
}

func isSerializationError(err error) bool {
	if errors.Is(err, gameerr.ErrContention) {
		return true
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// mapError translates pgx errors into the gameerr sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", gameerr.ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %v", gameerr.ErrDuplicate, err)
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %v", gameerr.ErrContention, err)
		}
	}
	return err
}

var _ storage.Store = (*Store)(nil)
