package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/bgrzesik/programatorus-server/internal/message"
)

// ErrTimeout is returned when a handler doesn't complete within the
// TimeoutMiddleware's budget. The handler goroutine itself is not
// canceled -- it keeps running in the background unless it observes
// ctx.Done() on its own -- this middleware only controls how long the
// caller waits for it.
var ErrTimeout = errors.New("middleware: request timed out")

// TimeoutMiddleware bounds how long next is given to answer a single
// request.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) (message.Payload, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type result struct {
				payload message.Payload
				err     error
			}
			done := make(chan result, 1)
			go func() {
				payload, err := next(ctx, req)
				done <- result{payload, err}
			}()

			select {
			case r := <-done:
				return r.payload, r.err
			case <-ctx.Done():
				return nil, ErrTimeout
			}
		}
	}
}
