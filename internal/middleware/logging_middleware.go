package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bgrzesik/programatorus-server/internal/message"
)

// LoggingMiddleware logs the request tag, duration, and any error for
// every envelope that reaches the router.
func LoggingMiddleware(log *zap.Logger) Middleware {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("router")

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) (message.Payload, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			fields := []zap.Field{
				zap.String("tag", req.Payload.Tag()),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				log.Warn("request failed", append(fields, zap.Error(err))...)
			} else {
				log.Debug("request handled", fields...)
			}
			return resp, err
		}
	}
}
