// Package transport defines how a serialized JSON-RPC request reaches a peer, and ships the
// concrete transports: HTTP, WebSocket and a multiplexed framed stream.
//
// A transport moves bytes only.  It receives the request document and returns the response
// document untouched; decoding happens in the client, so every decode failure is reported
// as a codec error and every transport failure as a client error.
//
// There are two calling conventions and a transport may implement either or both:
//
//	Transport          Send(ctx, endpoint, body)      suspends on ctx
//	BlockingTransport  SendBlocking(endpoint, body)   blocks the calling goroutine
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by transports that were closed before or during a call.
var ErrClosed = errors.New("transport closed")

// Transport sends a request document to endpoint and returns the response document.
type Transport interface {
	Send(ctx context.Context, endpoint string, body []byte) ([]byte, error)
}

// BlockingTransport is the blocking form of Transport.
type BlockingTransport interface {
	SendBlocking(endpoint string, body []byte) ([]byte, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, endpoint string, body []byte) ([]byte, error)

func (f Func) Send(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	return f(ctx, endpoint, body)
}

// BlockingFunc adapts a function to BlockingTransport.
type BlockingFunc func(endpoint string, body []byte) ([]byte, error)

func (f BlockingFunc) SendBlocking(endpoint string, body []byte) ([]byte, error) {
	return f(endpoint, body)
}

// Suspend lifts a blocking transport into the suspending convention.  The blocking call
// runs on its own goroutine so a cancelled ctx returns immediately; the abandoned call is
// left to finish on its own.
func Suspend(t BlockingTransport) Transport {
	return Func(func(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
		type result struct {
			data []byte
			err  error
		}
		done := make(chan result, 1)
		go func() {
			data, err := t.SendBlocking(endpoint, body)
			done <- result{data, err}
		}()
		select {
		case r := <-done:
			return r.data, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

// Block turns a suspending transport into a blocking one using a background context.
func Block(t Transport) BlockingTransport {
	return BlockingFunc(func(endpoint string, body []byte) ([]byte, error) {
		return t.Send(context.Background(), endpoint, body)
	})
}
