package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the session in a single key/value table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the store at path. ":memory:" is accepted.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating kv table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Set(ctx context.Context, access, refresh, username string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting session write: %w", err)
	}
	defer tx.Rollback()

	if err := put(ctx, tx, KeyAccess, access); err != nil {
		return err
	}
	if err := put(ctx, tx, KeyRefresh, refresh); err != nil {
		return err
	}
	if username != "" {
		if err := put(ctx, tx, KeyUsername, username); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) SetAccess(ctx context.Context, access string) error {
	return put(ctx, s.db, KeyAccess, access)
}

func (s *SQLiteStore) Get(ctx context.Context) (Session, error) {
	var sess Session
	var err error
	if sess.Access, err = s.get(ctx, KeyAccess); err != nil {
		return Session{}, err
	}
	if sess.Refresh, err = s.get(ctx, KeyRefresh); err != nil {
		return Session{}, err
	}
	if sess.Username, err = s.get(ctx, KeyUsername); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	return s.remove(ctx, KeyAccess, KeyRefresh)
}

func (s *SQLiteStore) Forget(ctx context.Context) error {
	return s.remove(ctx, KeyAccess, KeyRefresh, KeyUsername)
}

func (s *SQLiteStore) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting %q: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) remove(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
			return fmt.Errorf("removing %q: %w", key, err)
		}
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func put(ctx context.Context, db execer, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}
