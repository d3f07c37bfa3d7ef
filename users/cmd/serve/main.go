package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog"

	"github.com/scibono/lmsclient/internal/config"
	"github.com/scibono/lmsclient/internal/logger"
	"github.com/scibono/lmsclient/users/api"
	"github.com/scibono/lmsclient/users/audit"
	"github.com/scibono/lmsclient/users/sessions"
	"github.com/scibono/lmsclient/users/state"
	"github.com/scibono/lmsclient/users/util"
)

const sessionCleanupInterval = 10 * time.Minute

type service struct {
	db       *sqlx.DB
	sessions *sessions.SessionManager
	handler  http.Handler
}

// setup opens the database, creates the tables, seeds the admin account and
// builds the HTTP handler.
func setup(cfg *config.Server, log zerolog.Logger) (*service, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sqlx.Connect("sqlite3", cfg.DBPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(1)

	svc, err := initService(db, cfg, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	return svc, nil
}

func initService(db *sqlx.DB, cfg *config.Server, log zerolog.Logger) (*service, error) {
	if err := state.DBInit(db); err != nil {
		return nil, err
	}

	if cfg.AdminPassword != "" {
		admin, err := state.SeedAdmin(db, cfg.AdminEmail, cfg.AdminPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to seed admin account: %w", err)
		}
		log.Info().Int("user_id", admin.ID).Str("email", admin.Email).Msg("Admin account ready")
	} else {
		log.Warn().Msg("LMS_SERVER_ADMIN_PASSWORD not set, skipping admin seeding")
	}

	secret, err := util.LoadJWTSecretKey(cfg.JWTSecretPath)
	if err != nil {
		return nil, err
	}
	sessionManager, err := sessions.NewManager(db, cfg.AccessTTL, cfg.SessionTTL, secret)
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}
	auditLogger, err := audit.NewLogger(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit logger: %w", err)
	}

	return &service{
		db:       db,
		sessions: sessionManager,
		handler:  api.NewServer(db, sessionManager, auditLogger, log),
	}, nil
}

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		l := logger.NewConsole(false)
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// 1. Setup logger
	log := logger.New("users", cfg.Debug)
	log.Info().Str("addr", cfg.Addr).Str("db_path", cfg.DBPath).Msg("Starting users service")

	// 2. Database, sessions and audit log
	svc, err := setup(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up users service")
	}
	defer svc.db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Once every 10 minutes, delete expired sessions
	go func() {
		ticker := time.NewTicker(sessionCleanupInterval)
		defer ticker.Stop()
		for {
			if err := svc.sessions.DeleteExpiredSessions(); err != nil {
				log.Error().Err(err).Msg("Failed to delete expired sessions")
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	// 3. Serve until a signal arrives
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           svc.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down users service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
