package middleware

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"github.com/bgrzesik/programatorus-server/internal/message"
)

// ErrRateLimited is returned when a request is rejected by
// RateLimitMiddleware because the token bucket is empty.
var ErrRateLimited = errors.New("middleware: rate limit exceeded")

// RateLimitMiddleware admits requests through a token bucket shared
// across every call through the returned Middleware: r is the refill
// rate in tokens per second, burst is the bucket size. The limiter is
// built once, outside the returned HandlerFunc, so the bucket persists
// across requests instead of resetting on every call.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) (message.Payload, error) {
			if !limiter.Allow() {
				return nil, ErrRateLimited
			}
			return next(ctx, req)
		}
	}
}
