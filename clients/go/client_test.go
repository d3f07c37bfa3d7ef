package lmsgo

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://lms.test/api/v1"

func newTestClient(t *testing.T, options ...ClientOption) (*Client, *MockTransport) {
	t.Helper()
	mock := NewMockTransport(testBaseURL)
	options = append([]ClientOption{WithTransport(mock)}, options...)
	return NewClient(testBaseURL, options...), mock
}

func loginResponse(token, refreshToken string) map[string]interface{} {
	return map[string]interface{}{
		"success": true,
		"message": "login successful",
		"data": map[string]interface{}{
			"token":         token,
			"refresh_token": refreshToken,
			"token_type":    "Bearer",
			"expires_in":    900,
			"user":          map[string]interface{}{"id": 1, "email": "admin@sci-bono.test"},
		},
	}
}

func refreshResponse(token, refreshToken string) map[string]interface{} {
	return map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"token":         token,
			"refresh_token": refreshToken,
		},
	}
}

var okUser = map[string]interface{}{"success": true, "data": map[string]interface{}{"id": 1}}

// errorOf returns the outermost *Error of err.
func errorOf(t *testing.T, err error) *Error {
	t.Helper()
	var lErr *Error
	require.True(t, errors.As(err, &lErr), "expected *Error, got %T: %v", err, err)
	return lErr
}

func TestNewClient(t *testing.T) {
	client := NewClient(testBaseURL + "/")
	assert.Equal(t, testBaseURL, client.GetBaseURL())
	assert.Equal(t, DefaultTimeout, client.timeout)
	assert.Equal(t, DefaultUserAgent, client.userAgent)
	assert.IsType(t, &RestyTransport{}, client.transport)
	assert.False(t, client.IsAuthenticated())
	assert.Nil(t, client.Session())
}

func TestLoginAttachesBearerToken(t *testing.T) {
	client, mock := newTestClient(t)
	mock.SetMockResponse("POST", "/auth/login", http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    map[string]interface{}{"token": "T1"},
	})
	mock.SetMockResponse("GET", "/users/1", http.StatusOK, okUser)

	session, err := client.Login(context.Background(), "admin@sci-bono.test", "secret")
	require.NoError(t, err)
	assert.Equal(t, "T1", session.AccessToken)
	assert.True(t, client.IsAuthenticated())

	_, err = client.GetUser(context.Background(), 1)
	require.NoError(t, err)

	logins := mock.RequestsTo("POST", "/auth/login")
	require.Len(t, logins, 1)
	assert.Empty(t, logins[0].Header.Get("Authorization"))
	assert.Equal(t, map[string]interface{}{
		"identifier": "admin@sci-bono.test",
		"password":   "secret",
	}, logins[0].BodyJSON())

	gets := mock.RequestsTo("GET", "/users/1")
	require.Len(t, gets, 1)
	assert.Equal(t, "Bearer T1", gets[0].Header.Get("Authorization"))
	assert.Equal(t, "application/json", gets[0].Header.Get("Content-Type"))
	assert.Equal(t, DefaultUserAgent, gets[0].Header.Get("User-Agent"))
	assert.NotEmpty(t, gets[0].Header.Get("X-Request-ID"))
	assert.Nil(t, gets[0].Body)
}

func TestLoginValidation(t *testing.T) {
	client, mock := newTestClient(t)

	_, err := client.Login(context.Background(), "", "secret")
	require.True(t, IsValidationError(err))
	assert.Equal(t, "identifier", errorOf(t, err).Field)

	_, err = client.Login(context.Background(), "admin", "")
	require.True(t, IsValidationError(err))
	assert.Equal(t, "password", errorOf(t, err).Field)

	assert.Empty(t, mock.GetRequestHistory())
}

func TestLoginRejected(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       interface{}
		assertion  func(t *testing.T, err error)
		wantStatus int
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   map[string]interface{}{"success": false, "message": "invalid credentials"},
			assertion: func(t *testing.T, err error) {
				assert.True(t, IsAuthenticationError(err))
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "success false",
			status: http.StatusOK,
			body:   map[string]interface{}{"success": false, "message": "account locked"},
			assertion: func(t *testing.T, err error) {
				assert.True(t, IsAuthenticationError(err))
				assert.Contains(t, err.Error(), "account locked")
			},
		},
		{
			name:   "missing token",
			status: http.StatusOK,
			body:   map[string]interface{}{"success": true, "data": map[string]interface{}{}},
			assertion: func(t *testing.T, err error) {
				assert.True(t, IsAuthenticationError(err))
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   map[string]interface{}{"success": false, "message": "boom"},
			assertion: func(t *testing.T, err error) {
				assert.True(t, IsAPIError(err))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, mock := newTestClient(t)
			mock.SetMockResponse("POST", "/auth/login", tt.status, tt.body)

			_, err := client.Login(context.Background(), "admin", "wrong")
			require.Error(t, err)
			tt.assertion(t, err)
			assert.Equal(t, tt.wantStatus, StatusCode(err))
			assert.False(t, client.IsAuthenticated())
		})
	}
}

func TestRefreshAndRetryOn401(t *testing.T) {
	client, mock := newTestClient(t, WithSession(&Session{AccessToken: "T1", RefreshToken: "R1"}))
	mock.QueueMockResponse("GET", "/users/1", http.StatusUnauthorized, map[string]interface{}{"message": "token expired"})
	mock.QueueMockResponse("GET", "/users/1", http.StatusOK, okUser)
	mock.SetMockResponse("POST", "/auth/refresh", http.StatusOK, refreshResponse("T2", "R2"))

	resp, err := client.GetUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	gets := mock.RequestsTo("GET", "/users/1")
	require.Len(t, gets, 2)
	assert.Equal(t, "Bearer T1", gets[0].Header.Get("Authorization"))
	assert.Equal(t, "Bearer T2", gets[1].Header.Get("Authorization"))
	assert.Equal(t, gets[0].Header.Get("X-Request-ID"), gets[1].Header.Get("X-Request-ID"))

	refreshes := mock.RequestsTo("POST", "/auth/refresh")
	require.Len(t, refreshes, 1)
	assert.Equal(t, "Bearer T1", refreshes[0].Header.Get("Authorization"))
	assert.Equal(t, map[string]interface{}{"refresh_token": "R1"}, refreshes[0].BodyJSON())

	session := client.Session()
	assert.Equal(t, "T2", session.AccessToken)
	assert.Equal(t, "R2", session.RefreshToken)
}

func TestSecond401SurfacesAPIError(t *testing.T) {
	client, mock := newTestClient(t, WithSession(&Session{AccessToken: "T1"}))
	mock.SetMockResponse("GET", "/users/1", http.StatusUnauthorized, map[string]interface{}{"message": "Unauthorized"})
	mock.SetMockResponse("POST", "/auth/refresh", http.StatusOK, refreshResponse("T2", ""))

	_, err := client.GetUser(context.Background(), 1)
	require.Error(t, err)
	lErr := errorOf(t, err)
	assert.Equal(t, ErrorTypeAPI, lErr.Type)
	assert.Equal(t, http.StatusUnauthorized, lErr.StatusCode)
	assert.Equal(t, "Unauthorized", lErr.Message)

	assert.Len(t, mock.RequestsTo("GET", "/users/1"), 2)
	assert.Len(t, mock.RequestsTo("POST", "/auth/refresh"), 1)
	// The refresh itself succeeded, so the session is kept
	assert.Equal(t, "T2", client.Session().AccessToken)
}

func TestFailedRefreshClearsSession(t *testing.T) {
	tests := []struct {
		name  string
		setup func(mock *MockTransport)
	}{
		{"refresh rejected", func(mock *MockTransport) {
			mock.SetMockResponse("POST", "/auth/refresh", http.StatusUnauthorized, map[string]interface{}{"message": "session expired"})
		}},
		{"success false", func(mock *MockTransport) {
			mock.SetMockResponse("POST", "/auth/refresh", http.StatusOK, map[string]interface{}{"success": false})
		}},
		{"transport failure", func(mock *MockTransport) {
			mock.SetMockError("POST", "/auth/refresh", errors.New("connection reset"))
		}},
		{"invalid json", func(mock *MockTransport) {
			mock.SetMockRawResponse("POST", "/auth/refresh", http.StatusOK, []byte("<html>"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewFileSessionStore(filepath.Join(t.TempDir(), "session.json"))
			require.NoError(t, store.Save(context.Background(), &Session{AccessToken: "T1", RefreshToken: "R1"}))

			client, mock := newTestClient(t, WithSessionStore(store))
			require.NoError(t, client.Initialize(context.Background()))
			mock.SetMockResponse("GET", "/users", http.StatusUnauthorized, map[string]interface{}{"message": "Unauthorized"})
			mock.SetMockResponse("POST", "/auth/logout", http.StatusOK, map[string]interface{}{"success": true})
			tt.setup(mock)

			_, err := client.GetUsers(context.Background(), nil)
			require.Error(t, err)
			assert.True(t, IsAuthFailedError(err))
			assert.True(t, IsSessionExpiredError(errors.Unwrap(err)))

			assert.False(t, client.IsAuthenticated())
			assert.Nil(t, client.Session())
			stored, err := store.Load(context.Background())
			require.NoError(t, err)
			assert.Nil(t, stored)

			// No retry after a failed refresh
			assert.Len(t, mock.RequestsTo("GET", "/users"), 1)
		})
	}
}

func TestRefreshWithoutSession(t *testing.T) {
	client, mock := newTestClient(t)

	err := client.Refresh(context.Background())
	assert.True(t, IsStateError(err))
	assert.Empty(t, mock.GetRequestHistory())
}

func TestRequestWithoutTokenIsSent(t *testing.T) {
	client, mock := newTestClient(t)
	mock.SetMockResponse("GET", "/users/1", http.StatusUnauthorized, map[string]interface{}{"message": "Unauthenticated"})

	_, err := client.GetUser(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, IsAPIError(err))
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))

	gets := mock.RequestsTo("GET", "/users/1")
	require.Len(t, gets, 1)
	assert.Empty(t, gets[0].Header.Get("Authorization"))
	assert.Empty(t, mock.RequestsTo("POST", "/auth/refresh"))
}

func TestForbiddenSurfacesAPIError(t *testing.T) {
	client, mock := newTestClient(t, WithSession(&Session{AccessToken: "T1"}))
	mock.SetMockResponse("DELETE", "/users/7", http.StatusForbidden, map[string]interface{}{"message": "forbidden"})

	_, err := client.DeleteUser(context.Background(), 7)
	require.Error(t, err)
	lErr := errorOf(t, err)
	assert.Equal(t, ErrorTypeAPI, lErr.Type)
	assert.Equal(t, http.StatusForbidden, lErr.StatusCode)
	assert.Equal(t, map[string]interface{}{"message": "forbidden"}, lErr.Body)
	assert.Empty(t, mock.RequestsTo("POST", "/auth/refresh"))
}

func TestTransportAndDecodeErrors(t *testing.T) {
	client, mock := newTestClient(t, WithSession(&Session{AccessToken: "T1"}))
	mock.SetMockError("GET", "/users/1", errors.New("dial tcp: connection refused"))
	mock.SetMockRawResponse("GET", "/users/2", http.StatusOK, []byte("not json"))
	mock.SetMockRawResponse("DELETE", "/users/3", http.StatusNoContent, nil)

	_, err := client.GetUser(context.Background(), 1)
	assert.True(t, IsNetworkError(err))

	_, err = client.GetUser(context.Background(), 2)
	assert.True(t, IsDecodeError(err))
	assert.Equal(t, http.StatusOK, errorOf(t, err).StatusCode)

	resp, err := client.DeleteUser(context.Background(), 3)
	require.NoError(t, err)
	assert.Nil(t, resp.Body)
}

func TestLogoutClearsSessionOnTransportError(t *testing.T) {
	store := NewFileSessionStore(filepath.Join(t.TempDir(), "session.json"))
	client, mock := newTestClient(t, WithSessionStore(store))
	mock.SetMockResponse("POST", "/auth/login", http.StatusOK, loginResponse("T1", "R1"))
	mock.SetMockError("POST", "/auth/logout", errors.New("network unreachable"))

	_, err := client.Login(context.Background(), "admin", "secret")
	require.NoError(t, err)
	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stored)

	require.NoError(t, client.Logout(context.Background()))
	assert.False(t, client.IsAuthenticated())
	assert.Nil(t, client.Session())

	stored, err = store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, stored)

	logouts := mock.RequestsTo("POST", "/auth/logout")
	require.Len(t, logouts, 1)
	assert.Equal(t, "Bearer T1", logouts[0].Header.Get("Authorization"))
}

func TestLogoutWithoutSessionSendsNothing(t *testing.T) {
	client, mock := newTestClient(t)
	require.NoError(t, client.Logout(context.Background()))
	assert.Empty(t, mock.GetRequestHistory())
}

func TestInitializeRestoresSession(t *testing.T) {
	store := NewFileSessionStore(filepath.Join(t.TempDir(), "nested", "session.json"))
	first, mock := newTestClient(t, WithSessionStore(store))
	mock.SetMockResponse("POST", "/auth/login", http.StatusOK, loginResponse("T1", "R1"))
	_, err := first.Login(context.Background(), "admin", "secret")
	require.NoError(t, err)

	second, mock2 := newTestClient(t, WithSessionStore(store))
	require.NoError(t, second.Initialize(context.Background()))
	assert.True(t, second.IsAuthenticated())
	session := second.Session()
	assert.Equal(t, "R1", session.RefreshToken)
	assert.EqualValues(t, 1, session.User["id"])

	mock2.SetMockResponse("GET", "/users/1", http.StatusOK, okUser)
	_, err = second.GetUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Bearer T1", mock2.RequestsTo("GET", "/users/1")[0].Header.Get("Authorization"))
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	const callers = 8

	var (
		refreshes atomic.Int32
		got401    sync.WaitGroup
	)
	got401.Add(callers)

	transport := transportFunc(func(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
		switch req.URL {
		case testBaseURL + "/auth/refresh":
			refreshes.Add(1)
			waitTimeout(&got401, 2*time.Second)
			time.Sleep(50 * time.Millisecond)
			return jsonResponse(http.StatusOK, `{"success":true,"data":{"token":"T2"}}`), nil
		default:
			if req.Header.Get("Authorization") != "Bearer T2" {
				got401.Done()
				return jsonResponse(http.StatusUnauthorized, `{"message":"expired"}`), nil
			}
			return jsonResponse(http.StatusOK, `{"success":true}`), nil
		}
	})

	client := NewClient(testBaseURL, WithTransport(transport), WithSession(&Session{AccessToken: "T1"}))

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.GetUsers(context.Background(), nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, refreshes.Load())
	assert.Equal(t, "T2", client.Session().AccessToken)
}

func TestStaleTokenSkipsRefresh(t *testing.T) {
	client, mock := newTestClient(t, WithSession(&Session{AccessToken: "T2"}))

	require.NoError(t, client.refreshStale(context.Background(), "T1"))
	assert.Empty(t, mock.GetRequestHistory())
}

func TestProactiveRefresh(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	token := signedToken(t, now.Add(30*time.Second))

	client, mock := newTestClient(t,
		WithSession(&Session{AccessToken: token}),
		WithProactiveRefresh(time.Minute),
	)
	client.now = func() time.Time { return now }
	mock.SetMockResponse("POST", "/auth/refresh", http.StatusOK, refreshResponse(signedToken(t, now.Add(15*time.Minute)), ""))
	mock.SetMockResponse("GET", "/users/1", http.StatusOK, okUser)

	exp, ok := client.TokenExpiresAt()
	require.True(t, ok)
	assert.True(t, exp.Equal(now.Add(30*time.Second)))

	_, err := client.GetUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, mock.RequestsTo("POST", "/auth/refresh"), 1)

	// The fresh token is far from expiry
	_, err = client.GetUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, mock.RequestsTo("POST", "/auth/refresh"), 1)
}

func TestCanceledContext(t *testing.T) {
	client, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetUser(ctx, 1)
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCanceledContextDuringRefreshKeepsSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var refreshes int32
	transport := transportFunc(func(rctx context.Context, req *TransportRequest) (*TransportResponse, error) {
		if req.URL == testBaseURL+"/auth/refresh" {
			atomic.AddInt32(&refreshes, 1)
			cancel()
			return jsonResponse(http.StatusOK, `{"success":true,"data":{"token":"T2","refresh_token":"R2"}}`), nil
		}
		if err := rctx.Err(); err != nil {
			return nil, err
		}
		return jsonResponse(http.StatusUnauthorized, `{"success":false,"message":"token expired"}`), nil
	})
	client := NewClient(testBaseURL,
		WithTransport(transport),
		WithSession(&Session{AccessToken: "T1", RefreshToken: "R1"}),
	)

	_, err := client.GetUser(ctx, 1)
	require.Error(t, err)
	assert.False(t, IsAuthFailedError(err))
	assert.True(t, IsNetworkError(err))
	assert.ErrorIs(t, err, context.Canceled)

	require.Eventually(t, func() bool {
		s := client.Session()
		return s != nil && s.AccessToken == "T2" && s.RefreshToken == "R2"
	}, time.Second, 10*time.Millisecond)
	assert.True(t, client.IsAuthenticated())
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshes))
}

func TestCallerDeadlineDoesNotFailSharedRefresh(t *testing.T) {
	release := make(chan struct{})
	transport := transportFunc(func(rctx context.Context, req *TransportRequest) (*TransportResponse, error) {
		if req.URL == testBaseURL+"/auth/refresh" {
			<-release
			return jsonResponse(http.StatusOK, `{"success":true,"data":{"token":"T2"}}`), nil
		}
		if req.Header.Get("Authorization") == "Bearer T2" {
			return jsonResponse(http.StatusOK, `{"success":true,"data":{"id":1}}`), nil
		}
		return jsonResponse(http.StatusUnauthorized, `{"success":false}`), nil
	})
	client := NewClient(testBaseURL,
		WithTransport(transport),
		WithSession(&Session{AccessToken: "T1", RefreshToken: "R1"}),
	)

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.GetUser(short, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsAuthFailedError(err))

	done := make(chan error, 1)
	go func() {
		_, err := client.GetUser(context.Background(), 1)
		done <- err
	}()
	close(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete after refresh")
	}
	assert.Equal(t, "T2", client.Session().AccessToken)
}

type transportFunc func(ctx context.Context, req *TransportRequest) (*TransportResponse, error)

func (f transportFunc) Send(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
	return f(ctx, req)
}

func jsonResponse(status int, body string) *TransportResponse {
	return &TransportResponse{StatusCode: status, Body: []byte(body)}
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
	}
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}
