// Package router dispatches inbound request envelopes to the
// Responder registered for their payload tag, running each dispatch
// through a middleware chain before it ever reaches business logic.
//
// It is the Go side of the original gateway's RequestRouter: there, a
// responder was looked up by protobuf oneof field name and driven
// through a handle()/Future chain; here a responder is looked up by
// Envelope.Payload.Tag() and driven through a blocking HandlerFunc,
// since Go's goroutines make a Future indirection unnecessary.
package router

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bgrzesik/programatorus-server/internal/message"
	"github.com/bgrzesik/programatorus-server/internal/middleware"
)

// Responder answers every request carrying a particular payload tag.
// The three-step shape mirrors the original application handler
// contract (unpack_request/on_request/prepare_response): UnpackRequest
// converts the envelope's already-decoded Payload into the handler's
// own request type, OnRequest does the work, and PrepareResponse
// wraps the result back into a Payload for the reply envelope.
type Responder interface {
	// RequestTag is the Payload.Tag() this Responder handles.
	RequestTag() string
	// UnpackRequest converts a decoded request Payload into the
	// concrete request value OnRequest expects.
	UnpackRequest(req message.Payload) (any, error)
	// OnRequest processes one request and returns a response value,
	// or an error to be reported back to the caller as a control
	// Error envelope.
	OnRequest(ctx context.Context, req any) (any, error)
	// PrepareResponse wraps OnRequest's result into a response
	// Payload.
	PrepareResponse(resp any) message.Payload
}

// Router holds one Responder per request tag and runs dispatch
// through an optional middleware chain.
type Router struct {
	responders map[string]Responder
	handler    middleware.HandlerFunc
	log        *zap.Logger
}

// New builds a Router. Middlewares are applied in the order given,
// outermost first, matching middleware.Chain.
func New(log *zap.Logger, mws ...middleware.Middleware) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{responders: make(map[string]Responder), log: log.Named("router")}
	r.handler = middleware.Chain(mws...)(r.dispatch)
	return r
}

// Register adds a Responder for its RequestTag. A later call for the
// same tag replaces the earlier one.
func (r *Router) Register(resp Responder) {
	r.responders[resp.RequestTag()] = resp
}

// Route answers one request envelope, running it through the
// middleware chain and then the registered Responder. The caller
// (Session.Client.OnRequest) is expected to send the result back with
// Session.Respond if env.IsRequest(), and to ignore it for one-way
// notifications.
func (r *Router) Route(ctx context.Context, env *message.Envelope) (message.Payload, error) {
	return r.handler(ctx, env)
}

func (r *Router) dispatch(ctx context.Context, env *message.Envelope) (message.Payload, error) {
	tag := env.Payload.Tag()
	resp, ok := r.responders[tag]
	if !ok {
		r.log.Error("no responder registered for tag", zap.String("tag", tag))
		return nil, fmt.Errorf("router: no responder for tag %q", tag)
	}

	req, err := resp.UnpackRequest(env.Payload)
	if err != nil {
		return nil, err
	}
	out, err := resp.OnRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.PrepareResponse(out), nil
}
