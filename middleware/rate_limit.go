package middleware

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when the token bucket is empty.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimit rejects exchanges beyond r per second, allowing bursts of up to burst.  It does
// not wait for a token: a rejected exchange fails at once with ErrRateLimited.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
			if !limiter.Allow() {
				return nil, ErrRateLimited
			}
			return next(ctx, endpoint, body)
		}
	}
}
