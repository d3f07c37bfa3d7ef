package lmsgo

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewNetworkError("GET /users failed", cause)

	assert.Equal(t, "GET /users failed: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "network", err.Type.String())
	assert.Equal(t, "password is required", NewRequiredFieldError("password").Error())
	assert.Equal(t, "unknown", ErrorType(99).String())
}

func TestPredicates(t *testing.T) {
	apiErr := NewAPIError("forbidden", http.StatusForbidden, nil)
	wrapped := fmt.Errorf("listing users: %w", apiErr)

	assert.True(t, IsAPIError(wrapped))
	assert.False(t, IsNetworkError(wrapped))
	assert.False(t, IsAPIError(errors.New("plain")))
	assert.True(t, IsAuthFailedError(NewAuthFailedError(NewSessionExpiredError(nil))))
	assert.True(t, IsDecodeError(NewDecodeError(200, errors.New("bad"))))
}

func TestStatusCode(t *testing.T) {
	apiErr := NewAPIError("Unauthorized", http.StatusUnauthorized, nil)
	login := &Error{Type: ErrorTypeAuthentication, Message: "login failed", StatusCode: http.StatusUnauthorized, Cause: apiErr}

	assert.Equal(t, http.StatusUnauthorized, StatusCode(apiErr))
	assert.Equal(t, http.StatusUnauthorized, StatusCode(login))
	assert.Equal(t, http.StatusTooManyRequests, StatusCode(fmt.Errorf("x: %w", NewAPIError("slow down", http.StatusTooManyRequests, nil))))
	assert.Equal(t, 0, StatusCode(NewNetworkError("down", nil)))
	assert.Equal(t, 0, StatusCode(nil))
}

func TestFieldErrors(t *testing.T) {
	err := NewAPIError("validation failed", http.StatusUnprocessableEntity, map[string]interface{}{
		"errors": map[string]interface{}{
			"email":    []interface{}{"email is required", "email is not valid"},
			"password": "too short",
		},
	})

	assert.Equal(t, map[string][]string{
		"email":    {"email is required", "email is not valid"},
		"password": {"too short"},
	}, err.FieldErrors())

	assert.Nil(t, NewAPIError("x", 500, "oops").FieldErrors())
	assert.Nil(t, NewAPIError("x", 500, map[string]interface{}{}).FieldErrors())
}

func TestAPIErrorFromResponse(t *testing.T) {
	withMessage := newAPIErrorFromResponse(&Response{StatusCode: 404, Body: map[string]interface{}{"message": "user not found"}})
	assert.Equal(t, "user not found", withMessage.Message)

	bare := newAPIErrorFromResponse(&Response{StatusCode: 502})
	assert.Equal(t, "HTTP 502: Bad Gateway", bare.Message)
	assert.Nil(t, bare.Body)
}
