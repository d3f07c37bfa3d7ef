package lmsgo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// MockRequest represents a recorded HTTP request for testing
type MockRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// BodyJSON decodes the recorded request body into a generic value.
func (r MockRequest) BodyJSON() map[string]interface{} {
	var out map[string]interface{}
	_ = json.Unmarshal(r.Body, &out)
	return out
}

// MockResponse represents a configured mock response
type MockResponse struct {
	StatusCode int
	Body       interface{}
	// RawBody, when set, is returned verbatim instead of encoding Body.
	RawBody []byte
	Error   error
}

// MockTransport implements Transport for tests. Responses are configured
// per method and path; queued responses are served in order and the last
// one keeps being served.
type MockTransport struct {
	baseURL        string
	responses      map[string][]*MockResponse
	requestHistory []MockRequest
	mu             sync.Mutex
}

// NewMockTransport creates a mock transport for a client built with baseURL.
func NewMockTransport(baseURL string) *MockTransport {
	return &MockTransport{
		baseURL:        strings.TrimRight(baseURL, "/"),
		responses:      make(map[string][]*MockResponse),
		requestHistory: make([]MockRequest, 0),
	}
}

func mockKey(method, path string) string {
	return method + " " + path
}

// SetMockResponse configures the only response for method and path
func (m *MockTransport) SetMockResponse(method, path string, statusCode int, body interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.responses[mockKey(method, path)] = []*MockResponse{{StatusCode: statusCode, Body: body}}
}

// QueueMockResponse appends a response for method and path
func (m *MockTransport) QueueMockResponse(method, path string, statusCode int, body interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := mockKey(method, path)
	m.responses[key] = append(m.responses[key], &MockResponse{StatusCode: statusCode, Body: body})
}

// SetMockRawResponse configures an unencoded response body for method and path
func (m *MockTransport) SetMockRawResponse(method, path string, statusCode int, raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.responses[mockKey(method, path)] = []*MockResponse{{StatusCode: statusCode, RawBody: raw}}
}

// SetMockError configures a transport failure for method and path
func (m *MockTransport) SetMockError(method, path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.responses[mockKey(method, path)] = []*MockResponse{{Error: err}}
}

// GetRequestHistory returns all recorded requests for verification
func (m *MockTransport) GetRequestHistory() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Return a copy to prevent external modification
	history := make([]MockRequest, len(m.requestHistory))
	copy(history, m.requestHistory)
	return history
}

// RequestsTo returns the recorded requests for method and path
func (m *MockTransport) RequestsTo(method, path string) []MockRequest {
	var out []MockRequest
	for _, r := range m.GetRequestHistory() {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// ClearRequestHistory clears the recorded request history
func (m *MockTransport) ClearRequestHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requestHistory = make([]MockRequest, 0)
}

// Send implements Transport.
func (m *MockTransport) Send(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := strings.TrimPrefix(req.URL, m.baseURL)
	query := ""
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path, query = path[:i], path[i+1:]
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requestHistory = append(m.requestHistory, MockRequest{
		Method: req.Method,
		Path:   path,
		Query:  query,
		Header: req.Header.Clone(),
		Body:   append([]byte(nil), req.Body...),
	})

	key := mockKey(req.Method, path)
	queue := m.responses[key]
	if len(queue) == 0 {
		body, _ := json.Marshal(map[string]interface{}{
			"success": false,
			"message": fmt.Sprintf("no mock response for %s", key),
		})
		return &TransportResponse{StatusCode: http.StatusNotFound, Body: body}, nil
	}

	resp := queue[0]
	if len(queue) > 1 {
		m.responses[key] = queue[1:]
	}

	if resp.Error != nil {
		return nil, resp.Error
	}
	if resp.RawBody != nil {
		return &TransportResponse{StatusCode: resp.StatusCode, Body: resp.RawBody}, nil
	}
	var body []byte
	if resp.Body != nil {
		b, err := json.Marshal(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode mock response: %w", err)
		}
		body = b
	}
	return &TransportResponse{StatusCode: resp.StatusCode, Body: body}, nil
}
