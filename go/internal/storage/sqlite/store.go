// Package sqlite is the single-file storage backend. All writes go through one
// connection, so transactions in this process never see SQLITE_BUSY.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/vaxgame/go/internal/gameerr"
	"github.com/mcdev12/vaxgame/go/internal/sqlutil"
	"github.com/mcdev12/vaxgame/go/internal/storage"
	"github.com/mcdev12/vaxgame/go/internal/storage/sqlite/migrations"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store is a SQLite-backed storage.Store.
type Store struct {
	*queries
	sqlDB *sql.DB
	locks *storage.SessionLocks
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{
		queries: &queries{db: sqlDB},
		sqlDB:   sqlDB,
		locks:   storage.NewSessionLocks(),
	}
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// InSessionTx implements storage.Store.
func (s *Store) InSessionTx(ctx context.Context, sessionID uuid.UUID, mode storage.LockMode, fn func(q storage.Queries) error) error {
	unlock, err := s.locks.Acquire(ctx, sessionID, mode)
	if err != nil {
		return err
	}
	defer unlock()

	err = sqlutil.Run(ctx, s.sqlDB, nil,
		func(tx *sql.Tx) *queries { return &queries{db: tx} },
		func(q *queries) error { return fn(q) },
	)
	return mapError(err)
}

func (s *Store) runMigrations() error {
	all, err := sqlutil.LoadMigrations(migrations.FS, ".")
	if err != nil {
		return err
	}

	createSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`, sqlutil.MigrationTable)
	if _, err := s.sqlDB.Exec(createSQL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, m := range all {
		var found int
		err := s.sqlDB.QueryRow("SELECT 1 FROM "+sqlutil.MigrationTable+" WHERE name = ?", m.Name).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", m.Name, err)
		}

		tx, err := s.sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration transaction %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(m.Up); err != nil && !sqlutil.IsAlreadyExistsError(err) {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO "+sqlutil.MigrationTable+" (name, applied_at) VALUES (?, ?)",
			m.Name, time.Now().UTC().UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.Name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.Name, err)
		}
	}
	return nil
}

// mapError translates driver errors into the gameerr sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", gameerr.ErrNotFound, err)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch {
		case se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE, se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", gameerr.ErrDuplicate, err)
		case se.Code() == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE"):
			return fmt.Errorf("%w: %v", gameerr.ErrDuplicate, err)
		case se.Code()&0xff == sqlite3.SQLITE_BUSY, se.Code()&0xff == sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %v", gameerr.ErrContention, err)
		}
	}
	return err
}

var _ storage.Store = (*Store)(nil)
