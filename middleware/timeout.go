package middleware

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when an exchange does not finish in time.
var ErrTimeout = errors.New("request timed out")

// Timeout bounds an exchange.  The deadline is also set on the context, but the wrapped
// handler does not have to honor it: Timeout returns ErrTimeout regardless and leaves the
// handler to finish in the background.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type result struct {
				data []byte
				err  error
			}
			done := make(chan result, 1)
			go func() {
				data, err := next(ctx, endpoint, body)
				done <- result{data, err}
			}()

			select {
			case r := <-done:
				return r.data, r.err
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return nil, ErrTimeout
				}
				return nil, ctx.Err()
			}
		}
	}
}
