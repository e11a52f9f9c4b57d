// Package sqlstore is the sqlx backend for PostgreSQL and SQLite.
package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

type dialect int

const (
	postgres dialect = iota
	sqlite
)

// Store implements store.Store on top of a SQL database.
type Store struct {
	db      *sqlx.DB
	dialect dialect
	logger  *zap.Logger
}

// OpenPostgres connects to PostgreSQL and applies migrations.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	return open(ctx, db, postgres, logger)
}

// OpenSQLite opens the database file at path with foreign keys enforced and applies migrations.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sqlx.ConnectContext(ctx, "sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	db.SetMaxOpenConns(1)
	return open(ctx, db, sqlite, logger)
}

func open(ctx context.Context, db *sqlx.DB, d dialect, logger *zap.Logger) (*Store, error) {
	s := &Store{db: db, dialect: d, logger: logger}
	if err := s.runMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) runMigrations(ctx context.Context) error {
	ts := "TIMESTAMPTZ"
	if s.dialect == sqlite {
		ts = "TIMESTAMP"
	}
	migrations := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS accounts (
            id TEXT PRIMARY KEY,
            email TEXT NOT NULL,
            username TEXT NOT NULL,
            username_folded TEXT NOT NULL,
            password_hash TEXT NOT NULL,
            created_at %[1]s NOT NULL,
            last_login %[1]s NULL,
            CONSTRAINT accounts_email_key UNIQUE (email),
            CONSTRAINT accounts_username_key UNIQUE (username)
        );`, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            sender_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
            recipient_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
            content TEXT NOT NULL,
            created_at %s NOT NULL,
            is_read BOOLEAN NOT NULL DEFAULT FALSE
        );`, ts),
		`CREATE INDEX IF NOT EXISTS messages_pair_idx ON messages (sender_id, recipient_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS messages_recipient_unread_idx ON messages (recipient_id, sender_id, is_read);`,
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	s.logger.Info("database migrations applied", zap.String("driver", s.db.DriverName()))
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
