// Package middleware implements the onion-model handler chain that
// wraps a request router's business logic with cross-cutting concerns
// (logging, timeout, rate limiting) without the handler itself
// knowing they exist.
//
// Onion model execution order:
//
//	Chain(A, B, C)(handler)  ->  A(B(C(handler)))
//
//	Request:   A.before -> B.before -> C.before -> handler
//	Response:  handler -> C.after -> B.after -> A.after
package middleware

import (
	"context"

	"github.com/bgrzesik/programatorus-server/internal/message"
)

// HandlerFunc answers one request envelope with a payload or an
// error. Both the router's business dispatch and every
// middleware-wrapped handler share this signature.
type HandlerFunc func(ctx context.Context, req *message.Envelope) (message.Payload, error)

// Middleware wraps a HandlerFunc with additional behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one, with the first argument as the
// outermost layer: Chain(A, B, C)(handler) == A(B(C(handler))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
