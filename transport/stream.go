package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"mini-jsonrpc/protocol"
)

// Stream carries JSON-RPC documents over a single net.Conn using the framed protocol, and
// lets many calls share that connection.
//
// Each request gets its own frame sequence number, and a background goroutine (recvLoop)
// reads response frames and routes them to the waiting caller by that number.  The JSON-RPC
// id inside the body is left untouched, which is what allows every request to use id 0.
//
//	goroutine-1 ──Send(seq=1)──┐
//	goroutine-2 ──Send(seq=2)──┼──→ single conn ──→ server
//	goroutine-3 ──Send(seq=3)──┘
//
//	recvLoop:  ←── response(seq=2) → pending[2] → goroutine-2 wakes up
//
// The endpoint argument of Send is ignored: the peer is fixed by the connection.
type Stream struct {
	conn      net.Conn
	codecType byte
	seq       uint32     // protected by sending
	pending   sync.Map   // map[uint32]chan streamResult
	sending   sync.Mutex // frames from concurrent callers must not interleave

	closeOnce sync.Once
	done      chan struct{}
	err       error // set before done is closed
}

type streamResult struct {
	body []byte
	err  error
}

// StreamOption configures a Stream.
type StreamOption func(*streamConfig)

type streamConfig struct {
	heartbeat time.Duration
	codecType byte
}

// WithHeartbeat sets the heartbeat interval.  Zero disables heartbeats.
func WithHeartbeat(interval time.Duration) StreamOption {
	return func(c *streamConfig) { c.heartbeat = interval }
}

// WithStrictCodec asks the server to decode request params strictly.
func WithStrictCodec() StreamOption {
	return func(c *streamConfig) { c.codecType = protocol.CodecTypeStrictJSON }
}

// NewStream wraps conn and starts the receive loop and, unless disabled, the heartbeat loop.
func NewStream(conn net.Conn, opts ...StreamOption) *Stream {
	cfg := streamConfig{heartbeat: 30 * time.Second, codecType: protocol.CodecTypeJSON}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Stream{
		conn:      conn,
		codecType: cfg.codecType,
		done:      make(chan struct{}),
	}
	go s.recvLoop()
	if cfg.heartbeat > 0 {
		go s.heartbeatLoop(cfg.heartbeat)
	}
	return s
}

// DialStream connects to addr over TCP and returns a Stream on that connection.
func DialStream(ctx context.Context, addr string, opts ...StreamOption) (*Stream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewStream(conn, opts...), nil
}

func (s *Stream) Send(ctx context.Context, _ string, body []byte) ([]byte, error) {
	seq, ch, err := s.write(body)
	if err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.body, r.err
	case <-ctx.Done():
		s.pending.Delete(seq)
		return nil, ctx.Err()
	}
}

func (s *Stream) SendBlocking(endpoint string, body []byte) ([]byte, error) {
	return s.Send(context.Background(), endpoint, body)
}

// write frames body and registers the channel its response will be delivered on.
func (s *Stream) write(body []byte) (uint32, <-chan streamResult, error) {
	s.sending.Lock()
	defer s.sending.Unlock()

	select {
	case <-s.done:
		return 0, nil, s.err
	default:
	}

	s.seq++
	seq := s.seq
	header := protocol.Header{
		CodecType: s.codecType,
		Type:      protocol.FrameRequest,
		Seq:       seq,
	}

	// Register before writing, or a fast response could reach recvLoop first.
	ch := make(chan streamResult, 1)
	s.pending.Store(seq, ch)

	if err := protocol.WriteFrame(s.conn, &header, body); err != nil {
		s.pending.Delete(seq)
		return 0, nil, fmt.Errorf("write frame: %w", err)
	}
	return seq, ch, nil
}

// recvLoop is the only reader of the connection; frame boundaries can only be parsed by
// reading sequentially.
func (s *Stream) recvLoop() {
	for {
		header, body, err := protocol.ReadFrame(s.conn)
		if err != nil {
			s.fail(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		if header.Type != protocol.FrameResponse {
			continue
		}
		if ch, ok := s.pending.LoadAndDelete(header.Seq); ok {
			ch.(chan streamResult) <- streamResult{body: body}
		}
	}
}

// fail records err, wakes every pending caller with it and closes the connection.
func (s *Stream) fail(err error) {
	s.closeOnce.Do(func() {
		// Closing first unblocks a writer stuck on the connection while holding sending.
		_ = s.conn.Close()

		s.sending.Lock()
		s.err = err
		close(s.done)
		s.sending.Unlock()

		s.pending.Range(func(key, _ any) bool {
			if ch, ok := s.pending.LoadAndDelete(key); ok {
				ch.(chan streamResult) <- streamResult{err: err}
			}
			return true
		})
	})
}

func (s *Stream) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}
		header := &protocol.Header{CodecType: s.codecType, Type: protocol.FrameHeartbeat}
		s.sending.Lock()
		err := protocol.WriteFrame(s.conn, header, nil)
		s.sending.Unlock()
		if err != nil {
			return
		}
	}
}

// Close closes the connection.  Pending and later calls fail with ErrClosed.
func (s *Stream) Close() error {
	s.fail(ErrClosed)
	return nil
}

// Conn returns the underlying connection.
func (s *Stream) Conn() net.Conn {
	return s.conn
}
