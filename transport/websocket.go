package transport

import (
	"context"
	"fmt"
	"sync"

	"nhooyr.io/websocket"
)

// WebSocket sends each request document as a text message and reads the next text message
// as its response.  Every generated request carries id 0, so responses can only be matched
// by order: the transport keeps a single request in flight and serializes callers.
//
// The connection is dialed on first use and redialed when the endpoint changes or after
// a failed exchange.
type WebSocket struct {
	DialOptions *websocket.DialOptions
	ReadLimit   int64 // 0 keeps the library default

	mu       sync.Mutex
	conn     *websocket.Conn
	endpoint string
	closed   bool
}

func NewWebSocket(opts *websocket.DialOptions) *WebSocket {
	return &WebSocket{DialOptions: opts}
}

func (t *WebSocket) Send(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}

	conn, err := t.connect(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if err := conn.Write(ctx, websocket.MessageText, body); err != nil {
		t.drop()
		return nil, fmt.Errorf("websocket write: %w", err)
	}
	for {
		mt, data, err := conn.Read(ctx)
		if err != nil {
			t.drop()
			return nil, fmt.Errorf("websocket read: %w", err)
		}
		if mt == websocket.MessageText {
			return data, nil
		}
	}
}

func (t *WebSocket) SendBlocking(endpoint string, body []byte) ([]byte, error) {
	return t.Send(context.Background(), endpoint, body)
}

// Close closes the connection.  Calls made afterwards fail with ErrClosed.
func (t *WebSocket) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close(websocket.StatusNormalClosure, "")
	t.conn = nil
	return err
}

func (t *WebSocket) connect(ctx context.Context, endpoint string) (*websocket.Conn, error) {
	if t.conn != nil && t.endpoint == endpoint {
		return t.conn, nil
	}
	t.drop()
	conn, _, err := websocket.Dial(ctx, endpoint, t.DialOptions)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", endpoint, err)
	}
	if t.ReadLimit != 0 {
		conn.SetReadLimit(t.ReadLimit)
	}
	t.conn, t.endpoint = conn, endpoint
	return conn, nil
}

func (t *WebSocket) drop() {
	if t.conn != nil {
		_ = t.conn.CloseNow()
		t.conn = nil
	}
}
