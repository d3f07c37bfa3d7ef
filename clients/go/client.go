package lmsgo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTimeout bounds every single HTTP exchange.
	DefaultTimeout = 30 * time.Second
	// DefaultUserAgent identifies the SDK to the LMS.
	DefaultUserAgent = "Sci-Bono-LMS-Go-Client/1.0"
)

// Client represents the main LMS API client
type Client struct {
	baseURL       string
	transport     Transport
	timeout       time.Duration
	userAgent     string
	logger        zerolog.Logger
	store         SessionStore
	refreshLeeway time.Duration
	now           func() time.Time

	mu           sync.RWMutex // Protects session
	session      *Session
	refreshGroup singleflight.Group
}

// ClientOption represents a functional option for configuring the Client
type ClientOption func(*Client)

// WithTransport sets the transport used for every HTTP exchange
func WithTransport(t Transport) ClientOption {
	return func(c *Client) {
		if t != nil {
			c.transport = t
		}
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUserAgent sets the client identifier sent in the User-Agent header
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithSessionStore persists the session across client instances.
// See Initialize.
func WithSessionStore(s SessionStore) ClientOption {
	return func(c *Client) {
		c.store = s
	}
}

// WithSession starts the client with an existing session
func WithSession(s *Session) ClientOption {
	return func(c *Client) {
		c.session = s.clone()
	}
}

// WithProactiveRefresh refreshes the access token before an authenticated
// request when its expiry is closer than leeway. Tokens that are not JWTs
// are never refreshed proactively.
func WithProactiveRefresh(leeway time.Duration) ClientOption {
	return func(c *Client) {
		c.refreshLeeway = leeway
	}
}

// NewClient creates a new LMS API client with the given base URL and options
func NewClient(baseURL string, options ...ClientOption) *Client {
	client := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
		logger:    zerolog.Nop(),
		now:       time.Now,
	}

	for _, option := range options {
		option(client)
	}

	if client.transport == nil {
		client.transport = NewRestyTransport(nil)
	}

	return client
}

// GetBaseURL returns the client's base URL
func (c *Client) GetBaseURL() string {
	return c.baseURL
}

// Initialize restores a persisted session, if a SessionStore is configured
// and holds one.
func (c *Client) Initialize(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	s, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stored session: %w", err)
	}
	if s == nil {
		return nil
	}
	c.setSession(s)
	c.logger.Debug().Msg("restored stored session")
	return nil
}

// IsAuthenticated checks if the client holds an access token
func (c *Client) IsAuthenticated() bool {
	return c.getAccessToken() != ""
}

// Session returns a copy of the current session, or nil after logout.
func (c *Client) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.clone()
}

// TokenExpiresAt returns the expiry of the current access token when it is
// a JWT carrying an "exp" claim.
func (c *Client) TokenExpiresAt() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.ExpiresAt()
}

// setSession replaces the session in a thread-safe manner
func (c *Client) setSession(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s.clone()
}

// getAccessToken gets the access token in a thread-safe manner
func (c *Client) getAccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
}

// clearSession drops both tokens in a thread-safe manner
func (c *Client) clearSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
}

// persist saves s to the configured store. Failures are logged only: the
// in-memory session stays usable.
func (c *Client) persist(ctx context.Context, s *Session) {
	if c.store == nil {
		return
	}
	if err := c.store.Save(context.WithoutCancel(ctx), s); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist session")
	}
}

func hasBody(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

// do sends one API request. When an authenticated request is answered with
// 401 while a token was attached, the token is refreshed once and the same
// request is resent once with the new token.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, authRequired bool) (*Response, error) {
	var payload []byte
	if body != nil && hasBody(method) {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, NewErrorWithCause(ErrorTypeValidation, "failed to encode request body", err)
		}
		payload = b
	}

	if authRequired && c.refreshLeeway > 0 {
		if err := c.refreshIfExpiring(ctx); err != nil {
			return nil, refreshError(ctx, err)
		}
	}

	requestID := uuid.NewString()
	token := c.getAccessToken()
	tr, err := c.send(ctx, method, path, payload, token, requestID)
	if err != nil {
		return nil, err
	}

	if tr.StatusCode == http.StatusUnauthorized && authRequired && token != "" {
		if err := c.refreshStale(ctx, token); err != nil {
			return nil, refreshError(ctx, err)
		}
		tr, err = c.send(ctx, method, path, payload, c.getAccessToken(), requestID)
		if err != nil {
			return nil, err
		}
	}

	resp, err := parseResponse(tr)
	if err != nil {
		return nil, err
	}
	if tr.StatusCode < 200 || tr.StatusCode >= 300 {
		return nil, newAPIErrorFromResponse(resp)
	}
	return resp, nil
}

// refreshError reports a refresh that failed while dispatching a request.
// A caller that gave up gets its own cancellation back rather than an
// authentication failure.
func refreshError(ctx context.Context, err error) error {
	if ctx.Err() != nil && !IsSessionExpiredError(err) {
		return err
	}
	return NewAuthFailedError(err)
}

// send performs a single exchange through the transport
func (c *Client) send(ctx context.Context, method, path string, payload []byte, token, requestID string) (*TransportResponse, error) {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")
	header.Set("User-Agent", c.userAgent)
	header.Set("X-Request-ID", requestID)
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	req := &TransportRequest{
		Method:  method,
		URL:     c.baseURL + path,
		Header:  header,
		Body:    payload,
		Timeout: c.timeout,
	}

	start := time.Now()
	tr, err := c.transport.Send(ctx, req)
	requestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues(method, "0").Inc()
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Str("request_id", requestID).Msg("HTTP request failed")
		return nil, NewNetworkError(fmt.Sprintf("%s %s failed", method, path), err)
	}

	requestsTotal.WithLabelValues(method, strconv.Itoa(tr.StatusCode)).Inc()
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Str("request_id", requestID).
		Int("status_code", tr.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("HTTP response")
	return tr, nil
}
