package lmsgo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// LoginRequest represents the login request payload
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type sessionEnvelope struct {
	Data Session `json:"data"`
}

// Login authenticates with an email or username and a password. On success
// the returned session is held by the client and attached to every later
// authenticated request.
func (c *Client) Login(ctx context.Context, identifier, password string) (*Session, error) {
	if identifier == "" {
		return nil, NewRequiredFieldError("identifier")
	}
	if password == "" {
		return nil, NewRequiredFieldError("password")
	}

	resp, err := c.do(ctx, http.MethodPost, "/auth/login", LoginRequest{
		Identifier: identifier,
		Password:   password,
	}, false)
	if err != nil {
		var lErr *Error
		if errors.As(err, &lErr) && lErr.Type == ErrorTypeAPI && lErr.StatusCode < http.StatusInternalServerError {
			return nil, &Error{
				Type:       ErrorTypeAuthentication,
				Message:    "login failed",
				StatusCode: lErr.StatusCode,
				Body:       lErr.Body,
				Cause:      lErr,
			}
		}
		return nil, err
	}

	if !resp.Success() {
		msg := resp.Message()
		if msg == "" {
			msg = "unknown error"
		}
		return nil, NewAuthenticationError("login failed: " + msg)
	}

	var env sessionEnvelope
	if err := resp.Decode(&env); err != nil {
		return nil, err
	}
	if env.Data.AccessToken == "" {
		return nil, NewAuthenticationError("login failed: no token in response")
	}

	c.setSession(&env.Data)
	c.persist(ctx, &env.Data)
	c.logger.Info().Str("identifier", identifier).Msg("logged in")

	return env.Data.clone(), nil
}

// Logout terminates the session. The server is told on a best-effort basis;
// its answer is ignored. The local session, and the stored one when a
// SessionStore is configured, are always cleared. Only a failure to clear
// the store is returned.
func (c *Client) Logout(ctx context.Context) (err error) {
	defer func() {
		c.clearSession()
		if c.store == nil {
			return
		}
		if cerr := c.store.Clear(context.WithoutCancel(ctx)); cerr != nil {
			err = fmt.Errorf("failed to clear stored session: %w", cerr)
		}
	}()

	if c.getAccessToken() == "" {
		return nil
	}
	if _, lerr := c.do(ctx, http.MethodPost, "/auth/logout", nil, false); lerr != nil {
		c.logger.Debug().Err(lerr).Msg("logout request failed, clearing session anyway")
	}
	return nil
}

// Refresh exchanges the current access token for a new one. Concurrent
// callers share a single in-flight refresh. If the server rejects the
// refresh or cannot be reached the session is logged out and a
// session-expired error is returned.
//
// The shared refresh is detached from ctx; each of its requests is bounded
// by the client timeout. Cancelling ctx only stops this caller from waiting
// and leaves the session in place.
func (c *Client) Refresh(ctx context.Context) error {
	ch := c.refreshGroup.DoChan("refresh", func() (interface{}, error) {
		return nil, c.refresh(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return NewNetworkError("token refresh canceled", ctx.Err())
	}
}

func (c *Client) refresh(ctx context.Context) error {
	current := c.Session()
	if current == nil || current.AccessToken == "" {
		return NewStateError("no token to refresh")
	}

	var body interface{}
	if current.RefreshToken != "" {
		body = map[string]string{"refresh_token": current.RefreshToken}
	}

	next, err := c.requestRefresh(ctx, body)
	if err != nil && ctx.Err() != nil {
		tokenRefreshTotal.WithLabelValues("canceled").Inc()
		return err
	}
	if err != nil {
		tokenRefreshTotal.WithLabelValues("failure").Inc()
		c.logger.Warn().Err(err).Msg("token refresh failed, clearing session")
		_ = c.Logout(ctx)
		return NewSessionExpiredError(err)
	}

	c.mu.Lock()
	if c.session == nil || c.session.AccessToken != current.AccessToken {
		c.mu.Unlock()
		tokenRefreshTotal.WithLabelValues("discarded").Inc()
		return NewSessionExpiredError(NewStateError("session changed during refresh"))
	}
	c.session.AccessToken = next.AccessToken
	if next.RefreshToken != "" {
		c.session.RefreshToken = next.RefreshToken
	}
	if next.TokenType != "" {
		c.session.TokenType = next.TokenType
	}
	if next.ExpiresIn != 0 {
		c.session.ExpiresIn = next.ExpiresIn
	}
	snapshot := c.session.clone()
	c.mu.Unlock()

	tokenRefreshTotal.WithLabelValues("success").Inc()
	c.persist(ctx, snapshot)
	c.logger.Info().Msg("access token refreshed")
	return nil
}

// requestRefresh calls the refresh endpoint. It is sent as an
// unauthenticated request so that a 401 here never triggers another refresh;
// the current bearer token is still attached.
func (c *Client) requestRefresh(ctx context.Context, body interface{}) (*Session, error) {
	resp, err := c.do(ctx, http.MethodPost, "/auth/refresh", body, false)
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		msg := resp.Message()
		if msg == "" {
			msg = "refresh rejected"
		}
		return nil, NewAuthenticationError(msg)
	}

	var env sessionEnvelope
	if err := resp.Decode(&env); err != nil {
		return nil, err
	}
	if env.Data.AccessToken == "" {
		return nil, NewAuthenticationError("no token in refresh response")
	}
	return &env.Data, nil
}

// refreshStale refreshes after a 401 answered a request sent with
// staleToken, unless another caller has already replaced that token.
func (c *Client) refreshStale(ctx context.Context, staleToken string) error {
	if current := c.getAccessToken(); current != "" && current != staleToken {
		return nil
	}
	return c.Refresh(ctx)
}

func (c *Client) refreshIfExpiring(ctx context.Context) error {
	exp, ok := c.TokenExpiresAt()
	if !ok || c.now().Add(c.refreshLeeway).Before(exp) {
		return nil
	}
	c.logger.Debug().Time("expires_at", exp).Msg("access token close to expiry, refreshing")
	return c.Refresh(ctx)
}
