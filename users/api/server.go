// Package api exposes the users service over HTTP. Every response uses the
// httputils envelope.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/scibono/lmsclient/applib/httputils"
	"github.com/scibono/lmsclient/users/audit"
	"github.com/scibono/lmsclient/users/sessions"
	"github.com/scibono/lmsclient/users/util"
)

// Server routes requests to the auth and user handlers.
type Server struct {
	db       *sqlx.DB
	sessions *sessions.SessionManager
	audit    *audit.Logger
	logger   zerolog.Logger
	mux      *http.ServeMux
}

func NewServer(db *sqlx.DB, sessionManager *sessions.SessionManager, auditLogger *audit.Logger, logger zerolog.Logger) *Server {
	s := &Server{
		db:       db,
		sessions: sessionManager,
		audit:    auditLogger,
		logger:   logger,
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	s.mux.HandleFunc("POST /auth/logout", s.handleLogout)

	s.mux.HandleFunc("GET /users", s.requireAuth(s.handleListUsers))
	s.mux.HandleFunc("POST /users", s.requireAuth(s.requireAdmin(s.handleCreateUser)))
	s.mux.HandleFunc("GET /users/{id}", s.requireAuth(s.handleGetUser))
	s.mux.HandleFunc("PUT /users/{id}", s.requireAuth(s.requireSelfOrAdmin(s.handleUpdateUser)))
	s.mux.HandleFunc("DELETE /users/{id}", s.requireAuth(s.requireAdmin(s.handleDeleteUser)))
	s.mux.HandleFunc("POST /users/{id}/change-password", s.requireAuth(s.requireSelfOrAdmin(s.handleChangePassword)))
	s.mux.HandleFunc("GET /users/{id}/profile", s.requireAuth(s.requireSelfOrAdmin(s.handleGetProfile)))
	s.mux.HandleFunc("PUT /users/{id}/profile", s.requireAuth(s.requireSelfOrAdmin(s.handleUpdateProfile)))

	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		httputils.WriteError(w, r, http.StatusNotFound, "endpoint not found")
	})
	return s
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.logger.Debug().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("request_id", r.Header.Get("X-Request-ID")).
		Int("status", rec.status).
		Dur("duration", time.Since(start)).
		Msg("request")
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func claimsFrom(r *http.Request) *util.AccessClaims {
	claims, _ := r.Context().Value(util.ClaimsKey).(*util.AccessClaims)
	return claims
}

// requireAuth rejects requests without a valid, unexpired access token whose
// session still exists.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httputils.WriteError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}

		claims, err := s.sessions.ParseAccessToken(token, false)
		if errors.Is(err, sessions.ErrAccessTokenExpired) {
			if err := s.audit.LogAccessTokenExpiry(token); err != nil {
				s.logger.Warn().Err(err).Msg("failed to record token expiry")
			}
			httputils.WriteError(w, r, http.StatusUnauthorized, "token expired")
			return
		}
		if err != nil {
			httputils.WriteError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		if _, err := s.sessions.GetSession(claims.SessionID); err != nil {
			httputils.WriteError(w, r, http.StatusUnauthorized, "session is no longer valid")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), util.ClaimsKey, claims)))
	}
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !claimsFrom(r).IsAdmin() {
			httputils.WriteError(w, r, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r)
	}
}

// requireSelfOrAdmin lets a user act on their own {id}; admins may act on
// anyone.
func (s *Server) requireSelfOrAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r)
		if claims.IsAdmin() {
			next(w, r)
			return
		}
		self, err := claims.UserID()
		id, ok := pathID(r)
		if err != nil || !ok || self != id {
			httputils.WriteError(w, r, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r)
	}
}

func pathID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
