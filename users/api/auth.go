package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/scibono/lmsclient/applib/httputils"
	"github.com/scibono/lmsclient/users/auth"
	"github.com/scibono/lmsclient/users/sessions"
)

// decodeBody decodes a JSON request body into v. An empty body leaves v
// untouched when optional is set.
func decodeBody(r *http.Request, v interface{}, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var loginRequest auth.LoginRequest
	if err := decodeBody(r, &loginRequest, false); err != nil {
		httputils.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := auth.DoLogin(s.db, s.sessions, s.audit, loginRequest)
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		fields := map[string][]string{}
		if loginRequest.Identifier == "" {
			fields["identifier"] = []string{"identifier is required"}
		}
		if loginRequest.Password == "" {
			fields["password"] = []string{"password is required"}
		}
		httputils.WriteValidationError(w, r, fields)
	case errors.Is(err, auth.ErrInvalidCredentials):
		httputils.WriteError(w, r, http.StatusUnauthorized, "invalid credentials")
	case err != nil:
		s.logger.Error().Err(err).Msg("login failed")
		httputils.WriteError(w, r, http.StatusInternalServerError, "login failed")
	default:
		s.logger.Info().Int("user_id", resp.User.ID).Msg("user logged in")
		httputils.WriteSuccess(w, r, http.StatusOK, "login successful", resp)
	}
}

// authStatus maps session and token errors to 401 and anything else to 500.
func authStatus(err error) int {
	switch {
	case errors.Is(err, sessions.ErrSessionNotFound),
		errors.Is(err, sessions.ErrSessionExpired),
		errors.Is(err, sessions.ErrInvalidRefreshToken),
		errors.Is(err, sessions.ErrInvalidAccessToken),
		errors.Is(err, sessions.ErrAccessTokenExpired):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		httputils.WriteError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var refreshRequest auth.RefreshRequest
	if err := decodeBody(r, &refreshRequest, true); err != nil {
		httputils.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := auth.DoRefresh(s.db, s.sessions, s.audit, token, refreshRequest.RefreshToken)
	if err != nil {
		status := authStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error().Err(err).Msg("refresh failed")
		}
		httputils.WriteError(w, r, status, err.Error())
		return
	}
	httputils.WriteSuccess(w, r, http.StatusOK, "token refreshed", resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		httputils.WriteError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	err := auth.DoLogout(s.sessions, s.audit, token)
	if err != nil && !errors.Is(err, sessions.ErrSessionNotFound) {
		status := authStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error().Err(err).Msg("logout failed")
		}
		httputils.WriteError(w, r, status, err.Error())
		return
	}
	httputils.WriteSuccess(w, r, http.StatusOK, "logged out", nil)
}
