package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/bgrzesik/programatorus-server/internal/codec"
	"github.com/bgrzesik/programatorus-server/internal/message"
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
	readyCh chan uint64
	lostCh  chan error
	reqCh   chan *message.Envelope
}

func newRecordingClient() *recordingClient {
	return &recordingClient{
		readyCh: make(chan uint64, 8),
		lostCh:  make(chan error, 8),
		reqCh:   make(chan *message.Envelope, 8),
	}
}

func (c *recordingClient) OnRequest(env *message.Envelope) { c.reqCh <- env }
func (c *recordingClient) OnSessionReady(id uint64)        { c.readyCh <- id }
func (c *recordingClient) OnSessionLost(err error)         { c.lostCh <- err }

func waitFor[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func newConnectedPair(t *testing.T) (*Session, *recordingClient, *Session, *recordingClient) {
	t.Helper()
	serverConn, clientConn := net.Pipe()

	serverClient := newRecordingClient()
	clientClient := newRecordingClient()

	server := New("server", &oneShotDialer{conn: serverConn}, codec.Get(codec.TypeJSON), RoleServer, serverClient, nil)
	client := New("client", &oneShotDialer{conn: clientConn}, codec.Get(codec.TypeJSON), RoleClient, clientClient, nil)

	server.heartbeatInterval = 50 * time.Millisecond
	server.sessionTimeout = 500 * time.Millisecond
	client.heartbeatInterval = 50 * time.Millisecond
	client.sessionTimeout = 500 * time.Millisecond

	server.Connect()
	client.Connect()

	serverID := waitFor(t, serverClient.readyCh, "server session ready")
	clientID := waitFor(t, clientClient.readyCh, "client session ready")
	if serverID != clientID {
		t.Fatalf("client did not adopt the server's session id: got %d want %d", clientID, serverID)
	}

	return server, serverClient, client, clientClient
}

func TestSessionIDAdoption(t *testing.T) {
	server, _, client, _ := newConnectedPair(t)
	defer server.Close()
	defer client.Close()

	if server.sessionID == 0 || client.sessionID != server.sessionID {
		t.Fatalf("session ids not aligned: server=%d client=%d", server.sessionID, client.sessionID)
	}
}

func TestRequestResponseRoundTrip(t *testing.T) {
	server, serverClient, client, _ := newConnectedPair(t)
	defer server.Close()
	defer client.Close()

	go func() {
		env := waitFor(t, serverClient.reqCh, "server to receive request")
		if env.Payload.Tag() != message.TagGetBoards {
			t.Errorf("unexpected request payload: %s", env.Payload.Tag())
			return
		}
		server.Respond(*env.RequestID, &message.BoardsData{
			Boards: []message.Board{{ID: "b1", DisplayName: "Board One"}},
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Request(ctx, &message.GetBoards{})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	data, ok := resp.(*message.BoardsData)
	if !ok {
		t.Fatalf("unexpected response type %T", resp)
	}
	if len(data.Boards) != 1 || data.Boards[0].ID != "b1" {
		t.Fatalf("unexpected response payload: %+v", data)
	}
}

func TestRequestErrorResponse(t *testing.T) {
	server, serverClient, client, _ := newConnectedPair(t)
	defer server.Close()
	defer client.Close()

	go func() {
		env := waitFor(t, serverClient.reqCh, "server to receive request")
		server.Respond(*env.RequestID, &message.Error{Code: "not_found", Message: "no such board"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := client.Request(ctx, &message.GetBoards{})
	if err == nil {
		t.Fatal("expected an error response to surface as an error")
	}
}

func TestRequestContextCancellation(t *testing.T) {
	server, _, client, _ := newConnectedPair(t)
	defer server.Close()
	defer client.Close()

	// Server never responds; the request must still return once ctx
	// is canceled, not hang forever.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := client.Request(ctx, &message.GetFirmware{BoardID: "b1"})
	if err == nil {
		t.Fatal("expected context deadline to surface as an error")
	}
}

func TestSessionLostOnDisconnect(t *testing.T) {
	server, serverClient, client, clientClient := newConnectedPair(t)
	defer server.Close()
	defer client.Close()

	server.messenger.Disconnect()
	waitFor(t, serverClient.lostCh, "server session lost notification")

	client.messenger.Disconnect()
	waitFor(t, clientClient.lostCh, "client session lost notification")
}
