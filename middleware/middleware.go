// Package middleware wraps the exchange of a request document for a response document.
//
// The same HandlerFunc shape serves both ends: a client wraps a transport's Send, and the
// server wraps its dispatcher, so logging, timeouts and rate limiting are written once.
package middleware

import (
	"context"

	"mini-jsonrpc/transport"
)

// HandlerFunc exchanges a request document for a response document.
type HandlerFunc func(ctx context.Context, endpoint string, body []byte) ([]byte, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares into one.  Chain(A, B, C)(h) is A(B(C(h))): A sees the call
// first and the result last.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Wrap returns a transport whose Send runs through the middlewares before reaching t.
func Wrap(t transport.Transport, middlewares ...Middleware) transport.Transport {
	return transport.Func(Chain(middlewares...)(t.Send))
}
