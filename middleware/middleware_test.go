package middleware

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-jsonrpc/transport"
)

// echoHandler returns the request document unchanged.
func echoHandler(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	return body, nil
}

// slowHandler takes 200ms and ignores its context.
func slowHandler(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	time.Sleep(200 * time.Millisecond)
	return body, nil
}

var errBroken = errors.New("connection refused")

func failingHandler(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	return nil, errBroken
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	resp, err := Logging(&logger)(echoHandler)(context.Background(), "http://svc/rpc", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(resp))
	assert.Contains(t, buf.String(), `"endpoint":"http://svc/rpc"`)
	assert.Contains(t, buf.String(), `"response_bytes":2`)

	buf.Reset()
	_, err = Logging(&logger)(failingHandler)(context.Background(), "http://svc/rpc", []byte(`{}`))
	assert.ErrorIs(t, err, errBroken)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `connection refused`)
}

func TestLoggingUsesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ctx := logger.WithContext(context.Background())

	_, err := Logging(nil)(failingHandler)(ctx, "tcp://svc", nil)
	assert.Error(t, err)
	assert.Contains(t, buf.String(), `"endpoint":"tcp://svc"`)
}

func TestTimeoutPass(t *testing.T) {
	handler := Timeout(500 * time.Millisecond)(echoHandler)

	resp, err := handler(context.Background(), "", []byte(`ok`))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp))
}

func TestTimeoutExceeded(t *testing.T) {
	handler := Timeout(50 * time.Millisecond)(slowHandler)

	start := time.Now()
	_, err := handler(context.Background(), "", []byte(`ok`))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 180*time.Millisecond)
}

func TestTimeoutParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Timeout(time.Second)(slowHandler)(ctx, "", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2: the first two pass, the third is rejected.
	handler := RateLimit(1, 2)(echoHandler)

	for i := 0; i < 2; i++ {
		_, err := handler(context.Background(), "", []byte(`ok`))
		require.NoError(t, err, "request %d", i)
	}
	_, err := handler(context.Background(), "", []byte(`ok`))
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
				order = append(order, name+".before")
				resp, err := next(ctx, endpoint, body)
				order = append(order, name+".after")
				return resp, err
			}
		}
	}

	_, err := Chain(mark("A"), mark("B"))(echoHandler)(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A.before", "B.before", "B.after", "A.after"}, order)
}

func TestWrapTransport(t *testing.T) {
	var seen string
	inner := transport.Func(func(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
		seen = endpoint
		return []byte(`{"id":0,"result":1}`), nil
	})

	wrapped := Wrap(inner, Timeout(time.Second), RateLimit(0.001, 1))
	resp, err := wrapped.Send(context.Background(), "http://svc", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "http://svc", seen)
	assert.Equal(t, `{"id":0,"result":1}`, string(resp))

	_, err = wrapped.Send(context.Background(), "http://svc", []byte(`{}`))
	assert.ErrorIs(t, err, ErrRateLimited)
}
