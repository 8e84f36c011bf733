package messenger

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/bgrzesik/programatorus-server/internal/codec"
	"github.com/bgrzesik/programatorus-server/internal/frame"
	"github.com/bgrzesik/programatorus-server/internal/message"
	"github.com/bgrzesik/programatorus-server/internal/transport"
)

type oneShotDialer struct {
	conn net.Conn
	used bool
}

func (d *oneShotDialer) Dial(ctx context.Context) (net.Conn, error) {
	if d.used {
		return nil, net.ErrClosed
	}
	d.used = true
	return d.conn, nil
}

func (d *oneShotDialer) SupportsReconnecting() bool { return false }

type recordingClient struct {
	mu       sync.Mutex
	envs     []*message.Envelope
	states   []transport.State
	gotState chan transport.State
	gotEnv   chan *message.Envelope
}

func newRecordingClient() *recordingClient {
	return &recordingClient{
		gotState: make(chan transport.State, 16),
		gotEnv:   make(chan *message.Envelope, 16),
	}
}

func (c *recordingClient) OnEnvelopeReceived(env *message.Envelope) {
	c.mu.Lock()
	c.envs = append(c.envs, env)
	c.mu.Unlock()
	c.gotEnv <- env
}

func (c *recordingClient) OnStateChanged(s transport.State) {
	c.mu.Lock()
	c.states = append(c.states, s)
	c.mu.Unlock()
	c.gotState <- s
}

func (c *recordingClient) OnError(err error) {}

func (c *recordingClient) waitForState(t *testing.T, want transport.State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-c.gotState:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", want)
		}
	}
}

func (c *recordingClient) waitForEnvelope(t *testing.T) *message.Envelope {
	t.Helper()
	select {
	case env := <-c.gotEnv:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return nil
	}
}

func TestMessengerEncodesAndDecodesEnvelopes(t *testing.T) {
	clientConn, peerConn := net.Pipe()
	dialer := &oneShotDialer{conn: clientConn}
	client := newRecordingClient()

	m := New("test", dialer, codec.Get(codec.TypeJSON), client, nil)
	defer m.Close()

	m.Connect()
	client.waitForState(t, transport.Connected)

	reqID := uint64(5)
	out := &message.Envelope{SessionID: 1, RequestID: &reqID, Payload: &message.GetBoards{}}

	// Peer decodes what the messenger wrote. The reader must be running
	// before Send is waited on: a net.Pipe write only completes once
	// the other end reads it.
	peerDone := make(chan *message.Envelope, 1)
	go func() {
		dec := frame.NewDecoder(func() int {
			b := make([]byte, 1)
			n, err := peerConn.Read(b)
			if n == 0 || err != nil {
				return -1
			}
			return int(b[0])
		})
		data, ok := dec.ReadFrame()
		if !ok {
			peerDone <- nil
			return
		}
		env, err := codec.Get(codec.TypeJSON).Decode(data)
		if err != nil {
			peerDone <- nil
			return
		}
		peerDone <- env
	}()

	if err := m.Send(out).Wait(context.Background()); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case env := <-peerDone:
		if env == nil || env.Payload.Tag() != message.TagGetBoards {
			t.Fatalf("peer decoded unexpected envelope: %+v", env)
		}
		if env.RequestID == nil || *env.RequestID != reqID {
			t.Fatalf("request id not preserved: %+v", env.RequestID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for peer to decode")
	}

	// Peer sends a framed, encoded envelope back; messenger should
	// decode it and hand it to the client.
	respID := uint64(5)
	inbound := &message.Envelope{SessionID: 1, ResponseID: &respID, Payload: &message.BoardsData{
		Boards: []message.Board{{ID: "b1", DisplayName: "Board 1"}},
	}}
	inboundBytes, err := codec.Get(codec.TypeJSON).Encode(inbound)
	if err != nil {
		t.Fatalf("encode inbound: %v", err)
	}
	go peerConn.Write(frame.Encode(inboundBytes))

	got := client.waitForEnvelope(t)
	if got.Payload.Tag() != message.TagBoardsData {
		t.Fatalf("unexpected payload tag: %s", got.Payload.Tag())
	}
	if got.ResponseID == nil || *got.ResponseID != respID {
		t.Fatalf("response id not preserved: %+v", got.ResponseID)
	}
}

func TestMessengerDropsUndecodableFrameWithoutTearingDown(t *testing.T) {
	clientConn, peerConn := net.Pipe()
	dialer := &oneShotDialer{conn: clientConn}
	client := newRecordingClient()

	m := New("test", dialer, codec.Get(codec.TypeJSON), client, nil)
	defer m.Close()

	m.Connect()
	client.waitForState(t, transport.Connected)

	go peerConn.Write(frame.Encode([]byte("not valid json")))

	// A good envelope sent right after should still arrive: the bad
	// frame must not have torn down the connection.
	respID := uint64(1)
	good := &message.Envelope{SessionID: 1, ResponseID: &respID, Payload: &message.Ok{}}
	goodBytes, _ := codec.Get(codec.TypeJSON).Encode(good)
	go peerConn.Write(frame.Encode(goodBytes))

	got := client.waitForEnvelope(t)
	if got.Payload.Tag() != message.TagOk {
		t.Fatalf("expected the well-formed envelope to still arrive, got %v", got)
	}
}
