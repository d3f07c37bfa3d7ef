// Package audit records authentication events of the users service. Tokens
// are never stored; only their SHA-256 fingerprints are.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// EventType represents the type of audit event
type EventType string

const (
	EventLogin               EventType = "login"
	EventLoginFailed         EventType = "login_failed"
	EventLogout              EventType = "logout"
	EventAccessTokenRefresh  EventType = "access_token_refresh"
	EventAccessTokenExpiry   EventType = "access_token_expiry"
	EventInvalidRefreshToken EventType = "invalid_refresh_token"
)

// AuditEvent represents an audit log entry in the database
type AuditEvent struct {
	ID                         string `db:"id"`
	EventType                  string `db:"event_type"`
	Timestamp                  int64  `db:"timestamp"`
	UserID                     *int   `db:"user_id"` // Nullable for events without user context
	Identifier                 string `db:"identifier"`
	RefreshTokenFingerprint    string `db:"refresh_token_fingerprint"`
	OldRefreshTokenFingerprint string `db:"old_refresh_token_fingerprint"`
	NewRefreshTokenFingerprint string `db:"new_refresh_token_fingerprint"`
	AccessTokenFingerprint     string `db:"access_token_fingerprint"`
}

// Logger handles audit logging for authentication events
type Logger struct {
	db *sqlx.DB
}

// NewLogger creates a new audit logger instance
func NewLogger(db *sqlx.DB) (*Logger, error) {
	if err := DBInit(db); err != nil {
		return nil, err
	}
	return &Logger{
		db: db,
	}, nil
}

// DBInit initializes the audit events database table
func DBInit(db *sqlx.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		user_id INTEGER,
		identifier TEXT NOT NULL DEFAULT '',
		refresh_token_fingerprint TEXT NOT NULL DEFAULT '',
		old_refresh_token_fingerprint TEXT NOT NULL DEFAULT '',
		new_refresh_token_fingerprint TEXT NOT NULL DEFAULT '',
		access_token_fingerprint TEXT NOT NULL DEFAULT ''
	)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_events_user_id ON audit_events(user_id)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events(event_type)`)
	return err
}

// tokenFingerprint creates a SHA-256 hash of a token for audit logging
func tokenFingerprint(token string) string {
	if token == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func newEvent(eventType EventType, userID *int) *AuditEvent {
	return &AuditEvent{
		ID:        uuid.New().String(),
		EventType: string(eventType),
		Timestamp: time.Now().UTC().Unix(),
		UserID:    userID,
	}
}

func (l *Logger) insertEvent(event *AuditEvent) error {
	_, err := l.db.NamedExec(`
		INSERT INTO audit_events (
			id, event_type, timestamp, user_id, identifier,
			refresh_token_fingerprint, old_refresh_token_fingerprint,
			new_refresh_token_fingerprint, access_token_fingerprint
		) VALUES (
			:id, :event_type, :timestamp, :user_id, :identifier,
			:refresh_token_fingerprint, :old_refresh_token_fingerprint,
			:new_refresh_token_fingerprint, :access_token_fingerprint
		)`, event)
	return err
}

// LogLogin logs a successful login event
func (l *Logger) LogLogin(userID int, refreshToken string) error {
	event := newEvent(EventLogin, &userID)
	event.RefreshTokenFingerprint = tokenFingerprint(refreshToken)
	return l.insertEvent(event)
}

// LogLoginFailed logs a rejected login attempt
func (l *Logger) LogLoginFailed(identifier string) error {
	event := newEvent(EventLoginFailed, nil)
	event.Identifier = identifier
	return l.insertEvent(event)
}

// LogLogout logs a logout event
func (l *Logger) LogLogout(userID int, accessToken string) error {
	event := newEvent(EventLogout, &userID)
	event.AccessTokenFingerprint = tokenFingerprint(accessToken)
	return l.insertEvent(event)
}

// LogAccessTokenRefresh logs an access token refresh event
func (l *Logger) LogAccessTokenRefresh(userID int, oldRefreshToken string, newRefreshToken string, accessToken string) error {
	event := newEvent(EventAccessTokenRefresh, &userID)
	event.OldRefreshTokenFingerprint = tokenFingerprint(oldRefreshToken)
	event.NewRefreshTokenFingerprint = tokenFingerprint(newRefreshToken)
	event.AccessTokenFingerprint = tokenFingerprint(accessToken)
	return l.insertEvent(event)
}

// LogAccessTokenExpiry logs a request rejected because its access token expired
func (l *Logger) LogAccessTokenExpiry(accessToken string) error {
	event := newEvent(EventAccessTokenExpiry, nil)
	event.AccessTokenFingerprint = tokenFingerprint(accessToken)
	return l.insertEvent(event)
}

// LogInvalidRefreshToken logs when an expired or invalid refresh token is used
func (l *Logger) LogInvalidRefreshToken(refreshToken string) error {
	event := newEvent(EventInvalidRefreshToken, nil)
	event.RefreshTokenFingerprint = tokenFingerprint(refreshToken)
	return l.insertEvent(event)
}

// GetEventsByUserID retrieves audit events for a specific user
func (l *Logger) GetEventsByUserID(userID int, limit int) ([]AuditEvent, error) {
	var events []AuditEvent
	err := l.db.Select(&events,
		"SELECT * FROM audit_events WHERE user_id = $1 ORDER BY timestamp DESC LIMIT $2",
		userID, limit)
	return events, err
}

// GetEventsByType retrieves audit events of a specific type
func (l *Logger) GetEventsByType(eventType EventType, limit int) ([]AuditEvent, error) {
	var events []AuditEvent
	err := l.db.Select(&events,
		"SELECT * FROM audit_events WHERE event_type = $1 ORDER BY timestamp DESC LIMIT $2",
		string(eventType), limit)
	return events, err
}

// CountEvents returns how many events of a type were recorded
func (l *Logger) CountEvents(eventType EventType) (int, error) {
	var n int
	err := l.db.Get(&n, "SELECT COUNT(*) FROM audit_events WHERE event_type = $1", string(eventType))
	return n, err
}
