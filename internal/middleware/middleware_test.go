package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/bgrzesik/programatorus-server/internal/message"
)

func echoHandler(ctx context.Context, req *message.Envelope) (message.Payload, error) {
	return &message.Ok{}, nil
}

func slowHandler(ctx context.Context, req *message.Envelope) (message.Payload, error) {
	time.Sleep(200 * time.Millisecond)
	return &message.Ok{}, nil
}

func envelopeFor(payload message.Payload) *message.Envelope {
	reqID := uint64(1)
	return &message.Envelope{SessionID: 1, RequestID: &reqID, Payload: payload}
}

func TestLogging(t *testing.T) {
	handler := LoggingMiddleware(nil)(echoHandler)

	resp, err := handler(context.Background(), envelopeFor(&message.GetBoards{}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.Tag() != message.TagOk {
		t.Fatalf("expected Ok payload, got %T", resp)
	}
}

func TestTimeoutPass(t *testing.T) {
	handler := TimeoutMiddleware(500 * time.Millisecond)(echoHandler)

	_, err := handler(context.Background(), envelopeFor(&message.GetBoards{}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	handler := TimeoutMiddleware(50 * time.Millisecond)(slowHandler)

	_, err := handler(context.Background(), envelopeFor(&message.GetBoards{}))
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestRateLimit(t *testing.T) {
	// rate=1/s, burst=2: the first two calls pass immediately, the
	// third is rejected before it ever reaches next.
	handler := RateLimitMiddleware(1, 2)(echoHandler)
	env := envelopeFor(&message.GetBoards{})

	for i := 0; i < 2; i++ {
		if _, err := handler(context.Background(), env); err != nil {
			t.Fatalf("request %d should pass, got error: %v", i, err)
		}
	}

	if _, err := handler(context.Background(), env); err != ErrRateLimited {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestChain(t *testing.T) {
	chained := Chain(LoggingMiddleware(nil), TimeoutMiddleware(500*time.Millisecond))
	handler := chained(echoHandler)

	resp, err := handler(context.Background(), envelopeFor(&message.GetBoards{}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.Tag() != message.TagOk {
		t.Fatalf("expected Ok payload, got %T", resp)
	}
}

func TestChainShortCircuitsOnRateLimit(t *testing.T) {
	// Rate limit sits before logging in the chain and must prevent
	// next (and thus Logging's "after" bookkeeping on a real call)
	// from ever running once the bucket is empty.
	chained := Chain(RateLimitMiddleware(1, 1), LoggingMiddleware(nil))
	handler := chained(echoHandler)
	env := envelopeFor(&message.GetBoards{})

	if _, err := handler(context.Background(), env); err != nil {
		t.Fatalf("first call should pass, got %v", err)
	}
	if _, err := handler(context.Background(), env); err != ErrRateLimited {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}
