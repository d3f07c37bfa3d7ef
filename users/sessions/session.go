package sessions

import (
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

const (
	sessionIDBytes    = 16
	refreshTokenBytes = 32
)

// Session represents an active login. Access tokens reference it by ID, so
// deleting the session revokes every access token issued for it.
type Session struct {
	ID            string    `json:"id" db:"id"`
	UserID        int       `json:"user_id" db:"user_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	LastRefreshed time.Time `json:"last_refreshed" db:"last_refreshed"`
	RefreshToken  string    `json:"refresh_token" db:"refresh_token"`
}

// NewSession opens a session for userID at now with a fresh refresh token.
func NewSession(userID int, now time.Time) (*Session, error) {
	id, err := randomToken(sessionIDBytes)
	if err != nil {
		return nil, err
	}
	s := &Session{
		ID:            id,
		UserID:        userID,
		CreatedAt:     now.UTC(),
		LastRefreshed: now.UTC(),
	}
	if err := s.rotate(now); err != nil {
		return nil, err
	}
	return s, nil
}

// Idle reports how long the session has gone without a refresh.
func (s *Session) Idle(now time.Time) time.Duration {
	return now.Sub(s.LastRefreshed)
}

func (s *Session) rotate(now time.Time) error {
	token, err := randomToken(refreshTokenBytes)
	if err != nil {
		return err
	}
	s.RefreshToken = token
	s.LastRefreshed = now.UTC()
	return nil
}

// randomToken returns n bytes from crypto/rand as unpadded URL-safe base64.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// --- Database Methods ---

func DBInit(db *sqlx.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		refresh_token TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_refreshed TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users_v1(id) ON DELETE CASCADE
	)
	`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_last_refreshed ON sessions(last_refreshed)`)
	return err
}

func DBGetSessionByID(db *sqlx.DB, id string) (*Session, error) {
	s := &Session{}
	switch err := db.Get(s, "SELECT * FROM sessions WHERE id = $1", id); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrSessionNotFound
	case err != nil:
		return nil, err
	}
	return s, nil
}

func (s *Session) DBCreate(db *sqlx.DB) error {
	log.Debug().Str("session_id", s.ID).Int("user_id", s.UserID).Msg("creating session")
	_, err := db.NamedExec(`
		INSERT INTO sessions (id, user_id, refresh_token, created_at, last_refreshed)
		VALUES (:id, :user_id, :refresh_token, :created_at, :last_refreshed)`, s)
	return err
}

// DBUpdateRefreshToken issues a new refresh token for the session, marks it
// refreshed at now and returns the token.
func (s *Session) DBUpdateRefreshToken(db *sqlx.DB, now time.Time) (string, error) {
	log.Debug().Str("session_id", s.ID).Msg("rotating refresh token")
	if err := s.rotate(now); err != nil {
		return "", err
	}
	_, err := db.NamedExec(`
		UPDATE sessions SET refresh_token = :refresh_token, last_refreshed = :last_refreshed
		WHERE id = :id`, s)
	return s.RefreshToken, err
}

func (s *Session) DBDelete(db *sqlx.DB) error {
	log.Debug().Str("session_id", s.ID).Msg("deleting session")
	_, err := db.Exec("DELETE FROM sessions WHERE id = $1", s.ID)
	return err
}

// DBDeleteExpiredSessions removes sessions last refreshed before cutoff.
func DBDeleteExpiredSessions(db *sqlx.DB, cutoff time.Time) (int64, error) {
	res, err := db.Exec("DELETE FROM sessions WHERE last_refreshed < $1", cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
