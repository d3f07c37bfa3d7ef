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

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// DoRefresh exchanges an access token, possibly expired, for a new one.
// When refreshToken is set it must match the session's current refresh
// token, which is then rotated.
func DoRefresh(db *sqlx.DB, sessionManager *sessions.SessionManager, auditLogger *audit.Logger, accessToken, refreshToken string) (*LoginResponse, error) {
	claims, err := sessionManager.ParseAccessToken(accessToken, true)
	if err != nil {
		return nil, err
	}

	session, err := sessionManager.GetSession(claims.SessionID)
	if err != nil {
		return nil, err
	}

	user, err := state.GetUser(db, session.UserID)
	if errors.Is(err, state.ErrUserNotFound) {
		if err := sessionManager.DeleteSession(session); err != nil {
			log.Warn().Err(err).Int("user_id", session.UserID).Msg("failed to delete session of removed user")
		}
		return nil, sessions.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	oldRefreshToken := session.RefreshToken
	newAccessToken, newRefreshToken, err := sessionManager.RefreshAccessToken(session, refreshToken, user.UserType)
	if errors.Is(err, sessions.ErrInvalidRefreshToken) {
		if err := auditLogger.LogInvalidRefreshToken(refreshToken); err != nil {
			log.Warn().Err(err).Msg("failed to record invalid refresh token")
		}
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to refresh access token: %w", err)
	}

	if err := auditLogger.LogAccessTokenRefresh(user.ID, oldRefreshToken, newRefreshToken, newAccessToken); err != nil {
		log.Warn().Err(err).Int("user_id", user.ID).Msg("failed to record token refresh")
	}

	return &LoginResponse{
		Token:        newAccessToken,
		RefreshToken: newRefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(sessionManager.AccessExpiry().Seconds()),
	}, nil
}
