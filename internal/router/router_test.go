package router

import (
	"context"
	"testing"

	"github.com/bgrzesik/programatorus-server/internal/message"
	"github.com/bgrzesik/programatorus-server/internal/middleware"
)

type boardsResponder struct{}

func (boardsResponder) RequestTag() string { return message.TagGetBoards }

func (boardsResponder) UnpackRequest(req message.Payload) (any, error) { return req, nil }

func (boardsResponder) OnRequest(ctx context.Context, req any) (any, error) {
	return &message.BoardsData{Boards: []message.Board{{ID: "b1", DisplayName: "Board One"}}}, nil
}

func (boardsResponder) PrepareResponse(resp any) message.Payload {
	return resp.(*message.BoardsData)
}

func requestEnvelope(payload message.Payload) *message.Envelope {
	id := uint64(1)
	return &message.Envelope{SessionID: 1, RequestID: &id, Payload: payload}
}

func TestRouteDispatchesToRegisteredResponder(t *testing.T) {
	r := New(nil)
	r.Register(boardsResponder{})

	resp, err := r.Route(context.Background(), requestEnvelope(&message.GetBoards{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, ok := resp.(*message.BoardsData)
	if !ok {
		t.Fatalf("unexpected response type %T", resp)
	}
	if len(data.Boards) != 1 || data.Boards[0].ID != "b1" {
		t.Fatalf("unexpected response payload: %+v", data)
	}
}

func TestRouteReportsMissingResponder(t *testing.T) {
	r := New(nil)

	_, err := r.Route(context.Background(), requestEnvelope(&message.GetFirmware{BoardID: "b1"}))
	if err == nil {
		t.Fatal("expected an error for an unregistered tag")
	}
}

func TestRouteRunsThroughMiddlewareChain(t *testing.T) {
	var sawTag string
	recording := func(next middleware.HandlerFunc) middleware.HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) (message.Payload, error) {
			sawTag = req.Payload.Tag()
			return next(ctx, req)
		}
	}

	r := New(nil, recording)
	r.Register(boardsResponder{})

	if _, err := r.Route(context.Background(), requestEnvelope(&message.GetBoards{})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sawTag != message.TagGetBoards {
		t.Fatalf("middleware did not see the request: got %q", sawTag)
	}
}

func TestRegisterReplacesExistingResponderForSameTag(t *testing.T) {
	r := New(nil)
	r.Register(boardsResponder{})

	replaced := false
	r.Register(responderFunc{
		tag: message.TagGetBoards,
		fn: func(ctx context.Context, req any) (any, error) {
			replaced = true
			return &message.BoardsData{}, nil
		},
	})

	if _, err := r.Route(context.Background(), requestEnvelope(&message.GetBoards{})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !replaced {
		t.Fatal("expected the second registration to replace the first")
	}
}

type responderFunc struct {
	tag string
	fn  func(ctx context.Context, req any) (any, error)
}

func (r responderFunc) RequestTag() string                       { return r.tag }
func (r responderFunc) UnpackRequest(req message.Payload) (any, error) { return req, nil }
func (r responderFunc) OnRequest(ctx context.Context, req any) (any, error) {
	return r.fn(ctx, req)
}
func (r responderFunc) PrepareResponse(resp any) message.Payload { return resp.(message.Payload) }
