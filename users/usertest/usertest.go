// Package usertest runs an in-process users service backed by a temporary
// sqlite database, for tests of code that talks to the LMS API.
package usertest

import (
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/scibono/lmsclient/users/api"
	"github.com/scibono/lmsclient/users/audit"
	"github.com/scibono/lmsclient/users/sessions"
	"github.com/scibono/lmsclient/users/state"
)

const (
	AdminEmail    = "admin@sci-bono.test"
	AdminPassword = "admin-password"

	AccessTTL  = 5 * time.Minute
	SessionTTL = 24 * time.Hour
)

// Clock is a settable time source shared by the service's session manager.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Service is a running users service.
type Service struct {
	Server   *httptest.Server
	DB       *sqlx.DB
	Sessions *sessions.SessionManager
	Audit    *audit.Logger
	Clock    *Clock
	Admin    *state.User
}

// URL is the base URL of the service.
func (s *Service) URL() string {
	return s.Server.URL
}

// CreateUser inserts a user directly into the database.
func (s *Service) CreateUser(t testing.TB, u state.NewUser) *state.User {
	t.Helper()
	user, err := state.CreateUser(s.DB, u)
	if err != nil {
		t.Fatalf("failed to create user %s: %v", u.Email, err)
	}
	return user
}

// NewService starts a users service seeded with an admin account. It is
// shut down when the test ends.
func NewService(t testing.TB) *Service {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "users.db")
	db := sqlx.MustConnect("sqlite3", dbPath+"?_foreign_keys=on")
	db.SetMaxOpenConns(1)

	if err := state.DBInit(db); err != nil {
		t.Fatalf("failed to init users table: %v", err)
	}
	admin, err := state.SeedAdmin(db, AdminEmail, AdminPassword)
	if err != nil {
		t.Fatalf("failed to seed admin: %v", err)
	}

	sessionManager, err := sessions.NewManager(db, AccessTTL, SessionTTL, []byte("usertest-secret-key"))
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}
	clock := &Clock{now: time.Now().UTC()}
	sessionManager.SetClock(clock.Now)

	auditLogger, err := audit.NewLogger(db)
	if err != nil {
		t.Fatalf("failed to create audit logger: %v", err)
	}

	server := httptest.NewServer(api.NewServer(db, sessionManager, auditLogger, zerolog.Nop()))
	t.Cleanup(func() {
		server.Close()
		db.Close()
	})

	return &Service{
		Server:   server,
		DB:       db,
		Sessions: sessionManager,
		Audit:    auditLogger,
		Clock:    clock,
		Admin:    admin,
	}
}
