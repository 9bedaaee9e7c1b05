package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuspend(t *testing.T) {
	blocking := BlockingFunc(func(endpoint string, body []byte) ([]byte, error) {
		return append([]byte(endpoint+":"), body...), nil
	})
	got, err := Suspend(blocking).Send(context.Background(), "e", []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, "e:b", string(got))
}

func TestSuspendHonorsContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	slow := BlockingFunc(func(string, []byte) ([]byte, error) {
		<-release
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := Suspend(slow).Send(ctx, "", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBlock(t *testing.T) {
	var gotCtx context.Context
	suspending := Func(func(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
		gotCtx = ctx
		return body, nil
	})
	got, err := Block(suspending).SendBlocking("e", []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(got))
	assert.NotNil(t, gotCtx)
}
