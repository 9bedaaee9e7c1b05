package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// RequestIDHeader carries a fresh id per HTTP call, so that a request can be followed
// through proxies and server logs even though every JSON-RPC id on the wire is 0.
const RequestIDHeader = "X-Request-Id"

// StatusError is returned when the server answers with a non-2xx status and a body that is
// not a JSON-RPC document.
type StatusError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if len(body) > 128 {
		body = body[:128] + "..."
	}
	if body == "" {
		return fmt.Sprintf("http status %s", e.Status)
	}
	return fmt.Sprintf("http status %s: %s", e.Status, body)
}

// HTTP posts each request document to the endpoint URL.  It implements both conventions
// and is safe for concurrent use.
type HTTP struct {
	Client *http.Client // nil means http.DefaultClient
	Header http.Header  // extra headers added to every request
}

// NewHTTP returns an HTTP transport using client.
func NewHTTP(client *http.Client) *HTTP {
	return &HTTP{Client: client}
}

func (t *HTTP) Send(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	for k, vs := range t.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http send: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 && !looksLikeObject(data) {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: data}
	}
	// Servers commonly pair an error document with a 4xx/5xx status; the document wins.
	return data, nil
}

func (t *HTTP) SendBlocking(endpoint string, body []byte) ([]byte, error) {
	return t.Send(context.Background(), endpoint, body)
}

func looksLikeObject(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) > 0 && data[0] == '{'
}
