package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPPost(t *testing.T) {
	var gotHeader http.Header
	var gotBody, gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotHeader = r.Header.Clone()
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":0,"result":19}`))
	}))
	defer ts.Close()

	tr := NewHTTP(ts.Client())
	tr.Header = http.Header{"Authorization": {"Bearer token"}}
	got, err := tr.Send(context.Background(), ts.URL+"/rpc", []byte(`{"id":0}`))
	require.NoError(t, err)

	assert.Equal(t, `{"jsonrpc":"2.0","id":0,"result":19}`, string(got))
	assert.Equal(t, `{"id":0}`, gotBody)
	assert.Equal(t, "/rpc", gotPath)
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, "Bearer token", gotHeader.Get("Authorization"))
	assert.NotEmpty(t, gotHeader.Get(RequestIDHeader))
}

func TestHTTPErrorDocumentWithErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":0,"error":{"code":-32603,"message":"boom"}}`))
	}))
	defer ts.Close()

	got, err := NewHTTP(nil).SendBlocking(ts.URL, []byte(`{}`))
	require.NoError(t, err)
	assert.Contains(t, string(got), `"boom"`)
}

func TestHTTPStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, strings.Repeat("bad gateway ", 20), http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := NewHTTP(nil).Send(context.Background(), ts.URL, []byte(`{}`))
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Contains(t, err.Error(), "502")
	assert.Less(t, len(err.Error()), 200)
}

func TestHTTPContextCancel(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewHTTP(ts.Client()).Send(ctx, ts.URL, []byte(`{}`))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPBadEndpoint(t *testing.T) {
	_, err := NewHTTP(nil).Send(context.Background(), "://nowhere", []byte(`{}`))
	assert.Error(t, err)
}
