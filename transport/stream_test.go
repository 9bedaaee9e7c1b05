package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-jsonrpc/protocol"
)

// echoPeer answers every request frame on conn with its own body, each on its own
// goroutine so that responses can overtake each other.  Heartbeats are reported on beats.
func echoPeer(t *testing.T, conn net.Conn, beats chan<- protocol.Header) {
	t.Helper()
	var writeMu sync.Mutex
	go func() {
		for {
			header, body, err := protocol.ReadFrame(conn)
			if err != nil {
				return
			}
			switch header.Type {
			case protocol.FrameHeartbeat:
				if beats != nil {
					select {
					case beats <- *header:
					default:
					}
				}
			case protocol.FrameRequest:
				go func() {
					writeMu.Lock()
					defer writeMu.Unlock()
					reply := protocol.Header{CodecType: header.CodecType, Type: protocol.FrameResponse, Seq: header.Seq}
					_ = protocol.WriteFrame(conn, &reply, body)
				}()
			}
		}
	}()
}

func TestStreamSerial(t *testing.T) {
	client, peer := net.Pipe()
	echoPeer(t, peer, nil)
	st := NewStream(client, WithHeartbeat(0))
	defer st.Close()

	for i := 0; i < 3; i++ {
		body := fmt.Sprintf(`{"n":%d}`, i)
		got, err := st.Send(context.Background(), "ignored", []byte(body))
		require.NoError(t, err)
		assert.Equal(t, body, string(got))
	}
}

// Many calls share one connection and each gets its own response back.
func TestStreamConcurrent(t *testing.T) {
	client, peer := net.Pipe()
	echoPeer(t, peer, nil)
	st := NewStream(client, WithHeartbeat(0))
	defer st.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"n":%d}`, n)
			got, err := st.SendBlocking("", []byte(body))
			if assert.NoError(t, err) {
				assert.Equal(t, body, string(got))
			}
		}(i)
	}
	wg.Wait()
}

func TestStreamOutOfOrderResponses(t *testing.T) {
	client, peer := net.Pipe()
	st := NewStream(client, WithHeartbeat(0))
	defer st.Close()

	// The peer collects two requests and answers the second one first.
	go func() {
		var headers []*protocol.Header
		var bodies [][]byte
		for len(headers) < 2 {
			h, b, err := protocol.ReadFrame(peer)
			if err != nil {
				return
			}
			headers, bodies = append(headers, h), append(bodies, b)
		}
		for i := 1; i >= 0; i-- {
			reply := protocol.Header{Type: protocol.FrameResponse, Seq: headers[i].Seq}
			_ = protocol.WriteFrame(peer, &reply, bodies[i])
		}
	}()

	results := make(chan string, 2)
	for _, body := range []string{`"first"`, `"second"`} {
		go func() {
			got, err := st.Send(context.Background(), "", []byte(body))
			if assert.NoError(t, err) {
				assert.Equal(t, body, string(got))
			}
			results <- string(got)
		}()
	}
	assert.ElementsMatch(t, []string{`"first"`, `"second"`}, []string{<-results, <-results})
}

func TestStreamStrictCodecHeader(t *testing.T) {
	client, peer := net.Pipe()
	st := NewStream(client, WithHeartbeat(0), WithStrictCodec())
	defer st.Close()

	seen := make(chan byte, 1)
	go func() {
		h, b, err := protocol.ReadFrame(peer)
		if err != nil {
			return
		}
		seen <- h.CodecType
		reply := protocol.Header{CodecType: h.CodecType, Type: protocol.FrameResponse, Seq: h.Seq}
		_ = protocol.WriteFrame(peer, &reply, b)
	}()

	_, err := st.Send(context.Background(), "", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, protocol.CodecTypeStrictJSON, <-seen)
}

func TestStreamHeartbeat(t *testing.T) {
	client, peer := net.Pipe()
	beats := make(chan protocol.Header, 1)
	echoPeer(t, peer, beats)
	st := NewStream(client, WithHeartbeat(10*time.Millisecond))
	defer st.Close()

	select {
	case h := <-beats:
		assert.Equal(t, protocol.FrameHeartbeat, h.Type)
	case <-time.After(time.Second):
		t.Fatal("no heartbeat")
	}
}

func TestStreamContextCancel(t *testing.T) {
	client, peer := net.Pipe()
	st := NewStream(client, WithHeartbeat(0))
	defer st.Close()

	// The peer reads but never answers.
	go func() {
		for {
			if _, _, err := protocol.ReadFrame(peer); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := st.Send(ctx, "", []byte(`{}`))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStreamPeerClosed(t *testing.T) {
	client, peer := net.Pipe()
	st := NewStream(client, WithHeartbeat(0))
	defer st.Close()

	go func() {
		_, _, _ = protocol.ReadFrame(peer)
		_ = peer.Close()
	}()

	_, err := st.Send(context.Background(), "", []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClosed)

	// Later calls fail straight away.
	_, err = st.Send(context.Background(), "", []byte(`{}`))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStreamClose(t *testing.T) {
	client, _ := net.Pipe()
	st := NewStream(client, WithHeartbeat(0))
	require.NoError(t, st.Close())
	require.NoError(t, st.Close())

	_, err := st.Send(context.Background(), "", []byte(`{}`))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDialStream(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		echoPeer(t, conn, nil)
	}()

	st, err := DialStream(context.Background(), l.Addr().String(), WithHeartbeat(0))
	require.NoError(t, err)
	defer st.Close()

	got, err := st.Send(context.Background(), "", []byte(`{"id":0}`))
	require.NoError(t, err)
	assert.Equal(t, `{"id":0}`, string(got))
}
