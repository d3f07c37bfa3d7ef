package sessions

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/scibono/lmsclient/users/util"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrSessionExpired      = errors.New("session expired")
	ErrInvalidAccessToken  = errors.New("invalid access token")
	ErrAccessTokenExpired  = errors.New("access token expired")
)

// SessionManager handles the lifecycle of user sessions and refresh tokens.
type SessionManager struct {
	db            *sqlx.DB
	accessExpiry  time.Duration // How long access tokens are valid
	sessionExpiry time.Duration // How long sessions are valid without a refresh
	jwtSecretKey  []byte        // The secret key for JWT signing
	now           func() time.Time
}

// NewManager creates and initializes a new SessionManager.
func NewManager(db *sqlx.DB, accessTokenExpiry, sessionExpiry time.Duration, jwtSecretKey []byte) (*SessionManager, error) {
	if err := DBInit(db); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if len(jwtSecretKey) == 0 {
		return nil, errors.New("JWT secret key is required")
	}

	return &SessionManager{
		db:            db,
		accessExpiry:  accessTokenExpiry,
		sessionExpiry: sessionExpiry,
		jwtSecretKey:  jwtSecretKey,
		now:           time.Now,
	}, nil
}

// SetClock replaces the time source used for token and session expiry.
func (m *SessionManager) SetClock(now func() time.Time) {
	m.now = now
}

// AccessExpiry is the lifetime of newly issued access tokens.
func (m *SessionManager) AccessExpiry() time.Duration {
	return m.accessExpiry
}

// CreateSession creates a session with a fresh refresh token for userID and
// stores it.
func (m *SessionManager) CreateSession(userID int) (*Session, error) {
	session, err := NewSession(userID, m.now())
	if err != nil {
		return nil, err
	}

	if err := session.DBCreate(m.db); err != nil {
		return nil, err
	}

	return session, nil
}

// GetSession loads a session and deletes it when it has been idle longer
// than the session expiry.
func (m *SessionManager) GetSession(sessionID string) (*Session, error) {
	session, err := DBGetSessionByID(m.db, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Idle(m.now()) > m.sessionExpiry {
		m.expire(session)
		return nil, ErrSessionExpired
	}

	return session, nil
}

// expire removes a session found past the session expiry. The caller reports
// the expiry either way.
func (m *SessionManager) expire(session *Session) {
	if err := session.DBDelete(m.db); err != nil {
		log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to delete expired session")
	}
}

// DeleteSession revokes a session.
func (m *SessionManager) DeleteSession(session *Session) error {
	return session.DBDelete(m.db)
}

// DeleteExpiredSessions removes sessions that have been inactive for a while
func (m *SessionManager) DeleteExpiredSessions() error {
	n, err := DBDeleteExpiredSessions(m.db, m.now().Add(-m.sessionExpiry))
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info().Int64("count", n).Msg("deleted expired sessions")
	}
	return nil
}

// IssueAccessToken signs a new JWT access token for the session.
func (m *SessionManager) IssueAccessToken(session *Session, role string) (string, error) {
	now := m.now().UTC()
	claims := util.AccessClaims{
		SessionID: session.ID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.Itoa(session.UserID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.jwtSecretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return tokenString, nil
}

// ParseAccessToken verifies the signature of tokenString. Expiry is checked
// unless allowExpired is set, which the refresh and logout flows use.
func (m *SessionManager) ParseAccessToken(tokenString string, allowExpired bool) (*util.AccessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	}
	if allowExpired {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &util.AccessClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.jwtSecretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrAccessTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	}
	if claims.SessionID == "" {
		return nil, ErrInvalidAccessToken
	}
	return claims, nil
}

// RefreshAccessToken creates a new JWT access token and rotates the
// session's refresh token. An empty refreshToken skips the refresh token
// check; the caller has then proven possession of a signed access token
// for the session.
func (m *SessionManager) RefreshAccessToken(session *Session, refreshToken, role string) (string, string, error) {
	if refreshToken != "" && session.RefreshToken != refreshToken {
		return "", "", ErrInvalidRefreshToken
	}

	if session.Idle(m.now()) > m.sessionExpiry {
		m.expire(session)
		return "", "", ErrSessionExpired
	}

	tokenString, err := m.IssueAccessToken(session, role)
	if err != nil {
		return "", "", err
	}

	// Update the session with the new refresh token
	newRefreshToken, err := session.DBUpdateRefreshToken(m.db, m.now())
	if err != nil {
		return "", "", fmt.Errorf("failed to update session with new refresh token: %w", err)
	}

	return tokenString, newRefreshToken, nil
}
