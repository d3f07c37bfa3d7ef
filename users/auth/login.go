package auth

import (
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/scibono/lmsclient/users/audit"
	"github.com/scibono/lmsclient/users/sessions"
	"github.com/scibono/lmsclient/users/state"
)

var (
	ErrMissingCredentials = errors.New("identifier and password are required")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// LoginResponse is the data block of a successful login or refresh.
type LoginResponse struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int         `json:"expires_in"`
	User         *state.User `json:"user,omitempty"`
}

// DoLogin checks the credentials, opens a session and issues its first
// access token.
func DoLogin(db *sqlx.DB, sessionManager *sessions.SessionManager, auditLogger *audit.Logger, loginRequest LoginRequest) (*LoginResponse, error) {
	if loginRequest.Identifier == "" || loginRequest.Password == "" {
		return nil, ErrMissingCredentials
	}

	success, user, err := state.AttemptLogin(db, loginRequest.Identifier, loginRequest.Password)
	if err != nil {
		return nil, fmt.Errorf("login lookup failed: %w", err)
	}
	if !success {
		if err := auditLogger.LogLoginFailed(loginRequest.Identifier); err != nil {
			log.Warn().Err(err).Msg("failed to record login failure")
		}
		return nil, ErrInvalidCredentials
	}

	session, err := sessionManager.CreateSession(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	accessToken, err := sessionManager.IssueAccessToken(session, user.UserType)
	if err != nil {
		return nil, err
	}

	if err := auditLogger.LogLogin(user.ID, session.RefreshToken); err != nil {
		log.Warn().Err(err).Int("user_id", user.ID).Msg("failed to record login")
	}

	return &LoginResponse{
		Token:        accessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(sessionManager.AccessExpiry().Seconds()),
		User:         user,
	}, nil
}
