package lmsgo

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// TransportRequest is a fully built HTTP exchange handed to a Transport.
type TransportRequest struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte // nil when the request carries no body
	Timeout time.Duration
}

// TransportResponse is the raw result of a Transport exchange.
type TransportResponse struct {
	StatusCode int
	Body       []byte
}

// Transport sends a single HTTP request. Implementations return an error
// only when no response was received; HTTP error statuses are returned as
// responses.
type Transport interface {
	Send(ctx context.Context, req *TransportRequest) (*TransportResponse, error)
}

// RestyTransport is the default Transport, backed by a resty client.
type RestyTransport struct {
	client *resty.Client
}

// NewRestyTransport wraps client. A nil client gets a fresh resty client.
// Retries are disabled: the only retry the SDK performs is the single
// resend after a token refresh.
func NewRestyTransport(client *resty.Client) *RestyTransport {
	if client == nil {
		client = resty.New()
	}
	client.SetRetryCount(0)
	return &RestyTransport{client: client}
}

// Send implements Transport.
func (t *RestyTransport) Send(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	r := t.client.R().SetContext(ctx)
	for key, values := range req.Header {
		for _, v := range values {
			r.Header.Add(key, v)
		}
	}
	if req.Body != nil {
		r.SetBody(req.Body)
	}

	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		return nil, err
	}
	return &TransportResponse{
		StatusCode: resp.StatusCode(),
		Body:       resp.Body(),
	}, nil
}

// Response is a parsed API response.
type Response struct {
	StatusCode int
	// Body is the decoded JSON document: map[string]interface{},
	// []interface{}, a scalar, or nil for an empty body.
	Body interface{}
	raw  []byte
}

func parseResponse(tr *TransportResponse) (*Response, error) {
	resp := &Response{StatusCode: tr.StatusCode, raw: tr.Body}
	if len(tr.Body) == 0 {
		return resp, nil
	}
	if err := json.Unmarshal(tr.Body, &resp.Body); err != nil {
		return nil, NewDecodeError(tr.StatusCode, err)
	}
	return resp, nil
}

// Decode unmarshals the raw response body into v.
func (r *Response) Decode(v interface{}) error {
	if len(r.raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.raw, v); err != nil {
		return NewDecodeError(r.StatusCode, err)
	}
	return nil
}

// Raw returns the undecoded body.
func (r *Response) Raw() []byte {
	return r.raw
}

func (r *Response) object() map[string]interface{} {
	m, _ := r.Body.(map[string]interface{})
	return m
}

// Success reports the envelope's "success" flag.
func (r *Response) Success() bool {
	ok, _ := r.object()["success"].(bool)
	return ok
}

// Message returns the envelope's "message", if any.
func (r *Response) Message() string {
	msg, _ := r.object()["message"].(string)
	return msg
}

// Data returns the envelope's "data" member, if any.
func (r *Response) Data() interface{} {
	return r.object()["data"]
}
