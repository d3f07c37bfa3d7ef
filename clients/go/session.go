package lmsgo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session holds the credentials issued by the LMS for one login.
type Session struct {
	AccessToken  string                 `json:"token"`
	RefreshToken string                 `json:"refresh_token,omitempty"`
	TokenType    string                 `json:"token_type,omitempty"`
	ExpiresIn    int                    `json:"expires_in,omitempty"`
	User         map[string]interface{} `json:"user,omitempty"`
}

// UnmarshalJSON accepts both "token" and "access_token" for the access token.
func (s *Session) UnmarshalJSON(data []byte) error {
	type plain Session
	var aux struct {
		plain
		AltAccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*s = Session(aux.plain)
	if s.AccessToken == "" {
		s.AccessToken = aux.AltAccessToken
	}
	return nil
}

// ExpiresAt reads the "exp" claim of the access token without verifying
// its signature. ok is false when the token is not a JWT or has no expiry.
func (s *Session) ExpiresAt() (t time.Time, ok bool) {
	if s == nil || s.AccessToken == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.User != nil {
		c.User = make(map[string]interface{}, len(s.User))
		for k, v := range s.User {
			c.User[k] = v
		}
	}
	return &c
}

// SessionStore persists a session between client instances.
type SessionStore interface {
	// Load returns the stored session, or nil when nothing is stored.
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Clear(ctx context.Context) error
}

// FileSessionStore keeps the session as JSON in a single file readable only
// by the current user.
type FileSessionStore struct {
	path string
}

// NewFileSessionStore returns a store writing to path.
func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{path: path}
}

// DefaultSessionPath is ~/.lms/session.json, or ./.lms/session.json when
// the home directory is unknown.
func DefaultSessionPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".lms", "session.json")
}

// Path returns the file backing the store.
func (f *FileSessionStore) Path() string {
	return f.path
}

// Load implements SessionStore.
func (f *FileSessionStore) Load(ctx context.Context) (*Session, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No session file is not an error
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", f.path, err)
	}
	if s.AccessToken == "" {
		return nil, nil
	}
	return &s, nil
}

// Save implements SessionStore.
func (f *FileSessionStore) Save(ctx context.Context, s *Session) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// Clear implements SessionStore.
func (f *FileSessionStore) Clear(ctx context.Context) error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}
