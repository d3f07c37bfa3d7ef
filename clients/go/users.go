package lmsgo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

const (
	defaultPage  = 1
	defaultLimit = 20
)

// UserFilter selects a page of users. Zero values fall back to page 1 and
// 20 users per page; empty strings are not sent.
type UserFilter struct {
	Page     int
	Limit    int
	Search   string
	UserType string
	Status   string
}

func (f *UserFilter) query() url.Values {
	q := url.Values{}
	page, limit := defaultPage, defaultLimit
	if f != nil {
		if f.Page > 0 {
			page = f.Page
		}
		if f.Limit > 0 {
			limit = f.Limit
		}
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	if f == nil {
		return q
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.UserType != "" {
		q.Set("user_type", f.UserType)
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	return q
}

// ChangePasswordRequest represents the change-password payload
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

var createUserRequired = []string{"email", "password"}

func userPath(userID int) string {
	return fmt.Sprintf("/users/%d", userID)
}

// GetUsers lists users with pagination and filtering
func (c *Client) GetUsers(ctx context.Context, filter *UserFilter) (*Response, error) {
	return c.do(ctx, http.MethodGet, "/users?"+filter.query().Encode(), nil, true)
}

// GetUser fetches a user by ID
func (c *Client) GetUser(ctx context.Context, userID int) (*Response, error) {
	return c.do(ctx, http.MethodGet, userPath(userID), nil, true)
}

// CreateUser creates a new user. email and password must be present and
// non-empty; a missing one fails before any request is sent.
func (c *Client) CreateUser(ctx context.Context, data map[string]interface{}) (*Response, error) {
	for _, field := range createUserRequired {
		v, ok := data[field]
		if !ok || v == nil {
			return nil, NewRequiredFieldError(field)
		}
		if s, isString := v.(string); isString && s == "" {
			return nil, NewRequiredFieldError(field)
		}
	}
	return c.do(ctx, http.MethodPost, "/users", data, true)
}

// UpdateUser updates a user
func (c *Client) UpdateUser(ctx context.Context, userID int, data map[string]interface{}) (*Response, error) {
	return c.do(ctx, http.MethodPut, userPath(userID), data, true)
}

// DeleteUser deletes a user
func (c *Client) DeleteUser(ctx context.Context, userID int) (*Response, error) {
	return c.do(ctx, http.MethodDelete, userPath(userID), nil, true)
}

// ChangePassword changes a user's password
func (c *Client) ChangePassword(ctx context.Context, userID int, currentPassword, newPassword string) (*Response, error) {
	return c.do(ctx, http.MethodPost, userPath(userID)+"/change-password", ChangePasswordRequest{
		CurrentPassword: currentPassword,
		NewPassword:     newPassword,
	}, true)
}

// GetUserProfile fetches the detailed profile of a user
func (c *Client) GetUserProfile(ctx context.Context, userID int) (*Response, error) {
	return c.do(ctx, http.MethodGet, userPath(userID)+"/profile", nil, true)
}

// UpdateUserProfile updates the profile of a user
func (c *Client) UpdateUserProfile(ctx context.Context, userID int, data map[string]interface{}) (*Response, error) {
	return c.do(ctx, http.MethodPut, userPath(userID)+"/profile", data, true)
}
