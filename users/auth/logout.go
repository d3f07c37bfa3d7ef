package auth

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/scibono/lmsclient/users/audit"
	"github.com/scibono/lmsclient/users/sessions"
)

// DoLogout deletes the session the access token belongs to. Expired tokens
// are accepted so a client can always end its session.
func DoLogout(sessionManager *sessions.SessionManager, auditLogger *audit.Logger, accessToken string) error {
	claims, err := sessionManager.ParseAccessToken(accessToken, true)
	if err != nil {
		return err
	}

	session, err := sessionManager.GetSession(claims.SessionID)
	if errors.Is(err, sessions.ErrSessionExpired) {
		// GetSession already removed it
		return nil
	}
	if err != nil {
		return err
	}

	if err := sessionManager.DeleteSession(session); err != nil {
		return err
	}

	if err := auditLogger.LogLogout(session.UserID, accessToken); err != nil {
		log.Warn().Err(err).Int("user_id", session.UserID).Msg("failed to record logout")
	}
	return nil
}
