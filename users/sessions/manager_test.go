package sessions

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func setupTestManager(t *testing.T) (*SessionManager, *fakeClock) {
	t.Helper()
	db := sqlx.MustConnect("sqlite3", filepath.Join(t.TempDir(), "sessions.db"))
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	m, err := NewManager(db, time.Minute, time.Hour, []byte("test-secret"))
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m.SetClock(clock.Now)
	return m, clock
}

func TestNewManagerRequiresKey(t *testing.T) {
	db := sqlx.MustConnect("sqlite3", filepath.Join(t.TempDir(), "sessions.db"))
	defer db.Close()
	if _, err := NewManager(db, time.Minute, time.Hour, nil); err == nil {
		t.Fatal("expected an error for an empty key")
	}
}

func TestIssueAndParseAccessToken(t *testing.T) {
	m, _ := setupTestManager(t)
	session, err := m.CreateSession(42)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	token, err := m.IssueAccessToken(session, "mentor")
	if err != nil {
		t.Fatalf("IssueAccessToken returned error: %v", err)
	}

	claims, err := m.ParseAccessToken(token, false)
	if err != nil {
		t.Fatalf("ParseAccessToken returned error: %v", err)
	}
	if claims.SessionID != session.ID {
		t.Errorf("session id = %q, want %q", claims.SessionID, session.ID)
	}
	if id, _ := claims.UserID(); id != 42 {
		t.Errorf("user id = %d, want 42", id)
	}
	if claims.Role != "mentor" || claims.IsAdmin() {
		t.Errorf("unexpected role %q", claims.Role)
	}

	again, err := m.IssueAccessToken(session, "mentor")
	if err != nil {
		t.Fatal(err)
	}
	if again == token {
		t.Error("two tokens issued at the same instant are identical")
	}
}

func TestParseAccessTokenExpiry(t *testing.T) {
	m, clock := setupTestManager(t)
	session, _ := m.CreateSession(1)
	token, _ := m.IssueAccessToken(session, "member")

	clock.now = clock.now.Add(2 * time.Minute)

	if _, err := m.ParseAccessToken(token, false); !errors.Is(err, ErrAccessTokenExpired) {
		t.Fatalf("expected ErrAccessTokenExpired, got %v", err)
	}
	if _, err := m.ParseAccessToken(token, true); err != nil {
		t.Fatalf("expired token should parse when allowed, got %v", err)
	}
}

func TestParseAccessTokenRejectsForeignSignature(t *testing.T) {
	m, _ := setupTestManager(t)
	other, _ := setupTestManager(t)
	other.jwtSecretKey = []byte("another-secret")

	session, _ := other.CreateSession(1)
	token, _ := other.IssueAccessToken(session, "admin")

	if _, err := m.ParseAccessToken(token, true); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected ErrInvalidAccessToken, got %v", err)
	}
	if _, err := m.ParseAccessToken("not-a-jwt", false); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected ErrInvalidAccessToken for garbage, got %v", err)
	}
}

func TestRefreshAccessTokenRotates(t *testing.T) {
	m, clock := setupTestManager(t)
	session, _ := m.CreateSession(5)
	original := session.RefreshToken

	clock.now = clock.now.Add(10 * time.Minute)
	token, newRefresh, err := m.RefreshAccessToken(session, original, "member")
	if err != nil {
		t.Fatalf("RefreshAccessToken returned error: %v", err)
	}
	if token == "" || newRefresh == "" || newRefresh == original {
		t.Fatal("expected a new access token and a rotated refresh token")
	}

	stored, err := m.GetSession(session.ID)
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if stored.RefreshToken != newRefresh {
		t.Error("rotated refresh token was not stored")
	}
	if !stored.LastRefreshed.Equal(clock.now) {
		t.Errorf("last refreshed = %v, want %v", stored.LastRefreshed, clock.now)
	}

	if _, _, err := m.RefreshAccessToken(stored, original, "member"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for the old token, got %v", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	m, clock := setupTestManager(t)
	session, _ := m.CreateSession(9)

	clock.now = clock.now.Add(2 * time.Hour)

	if _, err := m.GetSession(session.ID); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if _, err := m.GetSession(session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expired session should have been deleted, got %v", err)
	}
}

func TestSessionExpiryLogsFailedDelete(t *testing.T) {
	m, clock := setupTestManager(t)
	session, _ := m.CreateSession(9)

	_, err := m.db.Exec(`CREATE TRIGGER sessions_keep BEFORE DELETE ON sessions
		BEGIN SELECT RAISE(ABORT, 'sessions are read-only'); END`)
	if err != nil {
		t.Fatalf("failed to create trigger: %v", err)
	}

	var buf bytes.Buffer
	saved := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = saved })

	clock.now = clock.now.Add(2 * time.Hour)
	if _, err := m.GetSession(session.ID); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if _, _, err := m.RefreshAccessToken(session, session.RefreshToken, "student"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired from refresh, got %v", err)
	}

	out := buf.String()
	if n := strings.Count(out, "failed to delete expired session"); n != 2 {
		t.Errorf("expected 2 delete failures to be logged, got %d in %q", n, out)
	}
	if !strings.Contains(out, "sessions are read-only") {
		t.Errorf("log does not carry the delete error: %q", out)
	}
}

func TestDeleteExpiredSessions(t *testing.T) {
	m, clock := setupTestManager(t)
	stale, _ := m.CreateSession(1)
	clock.now = clock.now.Add(90 * time.Minute)
	fresh, _ := m.CreateSession(2)

	if err := m.DeleteExpiredSessions(); err != nil {
		t.Fatalf("DeleteExpiredSessions returned error: %v", err)
	}
	if _, err := DBGetSessionByID(m.db, stale.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("stale session still present: %v", err)
	}
	if _, err := DBGetSessionByID(m.db, fresh.ID); err != nil {
		t.Errorf("fresh session was deleted: %v", err)
	}
}
