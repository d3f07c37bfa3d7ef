// Package config loads settings for lmsctl and the users service from the
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Client configures the API client used by lmsctl. Variables are prefixed
// with LMS_, e.g. LMS_BASE_URL.
type Client struct {
	BaseURL     string        `envconfig:"BASE_URL" default:"http://localhost:8080/api/v1"`
	Timeout     time.Duration `envconfig:"TIMEOUT" default:"30s"`
	SessionFile string        `envconfig:"SESSION_FILE" default:""`
	SessionDB   string        `envconfig:"SESSION_DB" default:""`
	UserAgent   string        `envconfig:"USER_AGENT" default:""`
	Debug       bool          `envconfig:"DEBUG" default:"false"`
}

// Server configures the users service. Variables are prefixed with
// LMS_SERVER_, e.g. LMS_SERVER_ADDR.
type Server struct {
	Addr          string        `envconfig:"ADDR" default:":8080"`
	DBPath        string        `envconfig:"DB_PATH" default:"./users.db"`
	JWTSecretPath string        `envconfig:"JWT_SECRET_PATH" default:"./jwt_secret.key"`
	AccessTTL     time.Duration `envconfig:"ACCESS_TTL" default:"15m"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"720h"`
	AdminEmail    string        `envconfig:"ADMIN_EMAIL" default:"admin@sci-bono.local"`
	AdminPassword string        `envconfig:"ADMIN_PASSWORD" default:""`
	Debug         bool          `envconfig:"DEBUG" default:"false"`
}

// LoadClient reads the client configuration.
func LoadClient() (*Client, error) {
	var cfg Client
	if err := envconfig.Process("LMS", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Client) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("LMS_BASE_URL must not be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("LMS_TIMEOUT must be positive, got %s", c.Timeout)
	}
	return nil
}

// SessionPath returns SessionFile, or ~/.lms/session.json when unset.
func (c *Client) SessionPath() (string, error) {
	if c.SessionFile != "" {
		return c.SessionFile, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".lms", "session.json"), nil
}

// LoadServer reads the users service configuration.
func LoadServer() (*Server, error) {
	var cfg Server
	if err := envconfig.Process("LMS_SERVER", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Server) Validate() error {
	if c.AccessTTL <= 0 || c.SessionTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.SessionTTL < c.AccessTTL {
		return fmt.Errorf("LMS_SERVER_SESSION_TTL (%s) is shorter than LMS_SERVER_ACCESS_TTL (%s)", c.SessionTTL, c.AccessTTL)
	}
	if c.AdminEmail == "" {
		return fmt.Errorf("LMS_SERVER_ADMIN_EMAIL must not be empty")
	}
	return nil
}
