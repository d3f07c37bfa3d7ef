// Package sessionstore persists LMS client sessions in a sqlite database so
// that separate processes (for example successive CLI invocations) share a
// login.
package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	lmsgo "github.com/scibono/lmsclient/clients/go"
)

// DefaultName is the row used when a store is opened without a name.
const DefaultName = "default"

// SQLiteStore implements lmsgo.SessionStore on top of a sqlite table. Each
// store owns one named row, so several profiles can share a database.
type SQLiteStore struct {
	db   *sqlx.DB
	name string
}

type sessionRow struct {
	Name         string    `db:"name"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	TokenType    string    `db:"token_type"`
	ExpiresIn    int       `db:"expires_in"`
	UserJSON     string    `db:"user_json"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Open connects to the sqlite database at path, creating it and its
// directory if needed.
func Open(path, name string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create session db directory: %w", err)
	}
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session db: %w", err)
	}
	store, err := New(db, name)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an existing connection and makes sure the table exists.
func New(db *sqlx.DB, name string) (*SQLiteStore, error) {
	if name == "" {
		name = DefaultName
	}
	if err := DBInit(db); err != nil {
		return nil, fmt.Errorf("failed to initialize session table: %w", err)
	}
	return &SQLiteStore{db: db, name: name}, nil
}

// --- Database Methods ---

func DBInit(db *sqlx.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS client_sessions (
		name TEXT PRIMARY KEY,
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL DEFAULT '',
		token_type TEXT NOT NULL DEFAULT '',
		expires_in INTEGER NOT NULL DEFAULT 0,
		user_json TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)
	`)
	return err
}

// Load implements lmsgo.SessionStore.
func (s *SQLiteStore) Load(ctx context.Context) (*lmsgo.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM client_sessions WHERE name = $1", s.name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %q: %w", s.name, err)
	}

	session := &lmsgo.Session{
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		TokenType:    row.TokenType,
		ExpiresIn:    row.ExpiresIn,
	}
	if row.UserJSON != "" {
		if err := json.Unmarshal([]byte(row.UserJSON), &session.User); err != nil {
			return nil, fmt.Errorf("failed to decode stored user of session %q: %w", s.name, err)
		}
	}
	return session, nil
}

// Save implements lmsgo.SessionStore.
func (s *SQLiteStore) Save(ctx context.Context, session *lmsgo.Session) error {
	userJSON := ""
	if session.User != nil {
		b, err := json.Marshal(session.User)
		if err != nil {
			return fmt.Errorf("failed to encode user: %w", err)
		}
		userJSON = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_sessions (name, access_token, refresh_token, token_type, expires_in, user_json, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT(name) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			expires_in = excluded.expires_in,
			user_json = excluded.user_json,
			updated_at = excluded.updated_at`,
		s.name, session.AccessToken, session.RefreshToken, session.TokenType, session.ExpiresIn, userJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save session %q: %w", s.name, err)
	}
	return nil
}

// Clear implements lmsgo.SessionStore.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM client_sessions WHERE name = $1", s.name); err != nil {
		return fmt.Errorf("failed to clear session %q: %w", s.name, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
