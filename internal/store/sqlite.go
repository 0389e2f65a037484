package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/carecompanion/n1/internal/experiment"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrCorruptState = errors.New("stored experiment state is corrupt")
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    user_id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE TABLE IF NOT EXISTS experiment_states (
    user_id TEXT PRIMARY KEY,
    state TEXT NOT NULL,
    updated_at INTEGER NOT NULL DEFAULT (unixepoch()),
    FOREIGN KEY (user_id) REFERENCES users(user_id)
);

CREATE INDEX IF NOT EXISTS idx_experiment_states_updated ON experiment_states(updated_at);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);
`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadState returns ErrNotFound when the user has no record and
// ErrCorruptState (with an unconfigured state) when the record does not
// decode.
func (s *SQLiteStore) LoadState(ctx context.Context, userID string) (experiment.State, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM experiment_states WHERE user_id = ?`, userID,
	).Scan(&raw)

	if err == sql.ErrNoRows {
		return experiment.State{}, ErrNotFound
	}
	if err != nil {
		return experiment.State{}, fmt.Errorf("failed to load state: %w", err)
	}

	state, err := experiment.Decode([]byte(raw))
	if err != nil {
		return experiment.State{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return state, nil
}

// SaveState overwrites the user's record, creating the user row on first save.
func (s *SQLiteStore) SaveState(ctx context.Context, userID string, state experiment.State) error {
	data, err := experiment.Encode(state)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (user_id, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET updated_at = excluded.updated_at`,
		userID, now, now,
	); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO experiment_states (user_id, state, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		userID, string(data), now,
	); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteState(ctx context.Context, userID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM experiment_states WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// ListStates returns every stored record, most recently updated first.
func (s *SQLiteStore) ListStates(ctx context.Context) ([]*UserState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.user_id, COALESCE(u.name, ''), e.state, e.updated_at
		 FROM experiment_states e LEFT JOIN users u ON u.user_id = e.user_id
		 ORDER BY e.updated_at DESC, e.user_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list states: %w", err)
	}
	defer rows.Close()

	var states []*UserState
	for rows.Next() {
		var us UserState
		var raw string
		var updatedAt int64

		if err := rows.Scan(&us.UserID, &us.UserName, &raw, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan state: %w", err)
		}

		state, err := experiment.Decode([]byte(raw))
		if err != nil {
			us.Corrupt = true
		}
		us.State = state
		us.UpdatedAt = time.Unix(updatedAt, 0)

		states = append(states, &us)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate states: %w", err)
	}

	return states, nil
}

func (s *SQLiteStore) CountStates(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM experiment_states`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count states: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) UpsertUser(ctx context.Context, userID, name string) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, name, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
		userID, name, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*User, error) {
	var u User
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, name, created_at, updated_at FROM users WHERE user_id = ?`, userID,
	).Scan(&u.ID, &u.Name, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.CreatedAt = time.Unix(createdAt, 0)
	u.UpdatedAt = time.Unix(updatedAt, 0)
	return &u, nil
}

func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}
