package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Logging logs every exchange at debug level, and failures at warn level.  A nil logger
// means the logger carried by the call's context.
func Logging(logger *zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
			log := logger
			if log == nil {
				log = zerolog.Ctx(ctx)
			}
			start := time.Now()
			resp, err := next(ctx, endpoint, body)
			duration := time.Since(start)
			if err != nil {
				log.Warn().Err(err).
					Str(`endpoint`, endpoint).
					Int(`request_bytes`, len(body)).
					Dur(`duration`, duration).
					Msg(`JSON-RPC exchange failed`)
				return resp, err
			}
			log.Debug().
				Str(`endpoint`, endpoint).
				Int(`request_bytes`, len(body)).
				Int(`response_bytes`, len(resp)).
				Dur(`duration`, duration).
				Msg(`JSON-RPC exchange`)
			return resp, nil
		}
	}
}
