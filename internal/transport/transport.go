package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bgrzesik/programatorus-server/internal/actor"
	"github.com/bgrzesik/programatorus-server/internal/frame"
)

const (
	// MaxErrorCount is how many consecutive failed (re)connect attempts
	// a Transport tolerates before giving up and settling into Error
	// permanently.
	MaxErrorCount = 4

	// ReconnectTimeout is the delay before each retry attempt.
	ReconnectTimeout = 2 * time.Second
)

// Client receives callbacks from a Transport. All three methods are
// invoked on the Transport's own actor goroutine -- a Client never
// needs its own locking to handle them.
type Client interface {
	OnPacketReceived(data []byte)
	OnStateChanged(state State)
	OnError(err error)
}

// ErrClosed is the terminal error delivered to any packet still
// queued when Close shuts the transport down for good.
var ErrClosed = errors.New("transport: closed")

// OutgoingPacket is returned by Send; it settles once the packet has
// been written to the wire or the transport has given up retrying it,
// grounded on the original's Transport.OutgoingPacket/IOutgoingPacket
// pair (transport.py).
type OutgoingPacket struct {
	data []byte

	done chan struct{}
	once sync.Once
	err  error

	// inFlight/marker are only ever touched on the Transport's actor
	// goroutine. inFlight keeps pump() from dispatching a second write
	// for a packet already being written; marker is stamped fresh on
	// every dispatch so a write goroutine orphaned by a reconnect can't
	// settle (or retry) a packet out from under the attempt that
	// superseded it.
	inFlight bool
	marker   uint64
}

func newOutgoingPacket(data []byte) *OutgoingPacket {
	return &OutgoingPacket{data: data, done: make(chan struct{})}
}

// Wait blocks until the packet is delivered or permanently failed, or
// ctx is done first.
func (p *OutgoingPacket) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *OutgoingPacket) settle(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Transport owns one Dialer's worth of connection attempts: it
// connects, frames outgoing writes, decodes incoming frames, and
// retries a dropped connection up to MaxErrorCount times (when the
// Dialer supports it) before giving up.
//
// Every exported method hands its work to the actor's Runner; all
// but State and Close return without waiting for it. State only ever
// changes on the Runner's goroutine, so two calls never race each
// other.
type Transport struct {
	actor.Actor

	dialer Dialer
	client Client
	log    *zap.Logger

	state         State
	conn          net.Conn
	errorCount    int
	beenConnected bool
	closing       bool

	// marker increments on every (re)connect attempt and every
	// Close/Disconnect. A goroutine doing blocking I/O for one
	// generation captures marker at the start and stamps every
	// completion callback with it; the actor goroutine drops any
	// callback whose marker doesn't match the current one, since that
	// means a newer attempt (or a shutdown) has already superseded it.
	marker uint64

	// pending is the FIFO queue of not-yet-confirmed packets, mirroring
	// Transport.pending_packets. Only the head of the queue is ever
	// in flight; pump() advances to the next entry once the head
	// settles successfully.
	pending []*OutgoingPacket
	// attemptSeq hands out the per-packet marker stamped by pump() on
	// every write dispatch (OutgoingPacket.marker / _last_marker).
	attemptSeq uint64

	// reconnectTimeout overrides ReconnectTimeout; zero means use the
	// package default. Exposed only for tests that can't afford to
	// wait out the real timeout.
	reconnectTimeout time.Duration
}

// New creates a Transport bound to dialer, reporting to client.
// Connect must be called to begin dialing.
func New(name string, dialer Dialer, client Client, log *zap.Logger) *Transport {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transport{
		Actor:  actor.NewActor(name, log),
		dialer: dialer,
		client: client,
		log:    log.Named(name),
		state:  Disconnected,
	}
}

func (t *Transport) retryDelay() time.Duration {
	if t.reconnectTimeout > 0 {
		return t.reconnectTimeout
	}
	return ReconnectTimeout
}

// State returns the current connection state. Safe to call from any
// goroutine as a best-effort snapshot: the returned value may already
// be stale by the time the caller observes it.
func (t *Transport) State() State {
	result := make(chan State, 1)
	t.Runner.Submit(func() { result <- t.state })
	return <-result
}

// Connect starts the connect attempt loop. A call while already
// connecting or connected is a no-op; call Disconnect first to force
// a fresh attempt.
func (t *Transport) Connect() {
	t.Runner.Submit(func() {
		if t.closing || t.state == Connecting || t.state == Connected {
			return
		}
		t.beginConnectAttempt()
	})
}

// Send queues data to be framed and written once connected, returning
// an OutgoingPacket whose Wait settles once the write is confirmed or
// the transport gives up retrying it (after MaxErrorCount failures).
// Packets are written strictly in the order they were sent.
func (t *Transport) Send(data []byte) *OutgoingPacket {
	pkt := newOutgoingPacket(data)
	t.Runner.Submit(func() {
		t.pending = append(t.pending, pkt)
		t.pump()
	})
	return pkt
}

// pump writes the head-of-queue packet if nothing is currently in
// flight for it, mirroring pump_pending_packets: one packet in flight
// at a time, FIFO order preserved.
func (t *Transport) pump() {
	if t.state != Connected || t.conn == nil || len(t.pending) == 0 {
		return
	}
	pkt := t.pending[0]
	if pkt.inFlight {
		return
	}
	pkt.inFlight = true
	t.attemptSeq++
	pkt.marker = t.attemptSeq
	connMarker := t.marker
	writeMarker := pkt.marker
	conn := t.conn

	go func() {
		encoded := frame.Encode(pkt.data)
		_, err := conn.Write(encoded)
		t.Runner.Submit(func() { t.onWriteDone(connMarker, writeMarker, pkt, err) })
	}()
}

func (t *Transport) onWriteDone(connMarker, writeMarker uint64, pkt *OutgoingPacket, err error) {
	if connMarker != t.marker || writeMarker != pkt.marker {
		// Superseded by a reconnect (or a retry of this same packet);
		// the write that just finished belongs to a dead generation.
		return
	}

	if err == nil {
		t.pending = t.pending[1:]
		t.errorCount = 0
		pkt.settle(nil)
		t.pump()
		return
	}

	pkt.inFlight = false
	t.handleIOError(err)
	if t.errorCount >= MaxErrorCount {
		t.pending = t.pending[1:]
		pkt.settle(err)
	}
}

// resetPendingInFlight un-marks every queued packet as in flight,
// called whenever marker is bumped: any write already dispatched for
// the generation being superseded is now orphaned, and pump() must be
// free to retry it fresh once a new connection is up.
func (t *Transport) resetPendingInFlight() {
	for _, pkt := range t.pending {
		pkt.inFlight = false
	}
}

func (t *Transport) failAllPending(err error) {
	for _, pkt := range t.pending {
		pkt.settle(err)
	}
	t.pending = nil
}

// Disconnect tears down the current connection without retrying.
func (t *Transport) Disconnect() {
	t.Runner.Submit(func() {
		t.marker++
		t.resetPendingInFlight()
		t.closeConn()
		t.setState(Disconnected)
	})
}

// Close permanently shuts the transport down; no further reconnects
// will be attempted. Any packet still queued settles with ErrClosed.
func (t *Transport) Close() {
	t.Runner.Submit(func() {
		t.closing = true
		t.marker++
		t.resetPendingInFlight()
		t.failAllPending(ErrClosed)
		t.closeConn()
		t.setState(Disconnecting)
	})
	t.Runner.Close()
}

func (t *Transport) setState(s State) {
	if t.state == s {
		return
	}
	t.state = s
	t.client.OnStateChanged(s)
}

func (t *Transport) closeConn() {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
}

// beginConnectAttempt dials on a fresh goroutine (net.Dialer.DialContext
// blocks) and schedules the continuation back onto the actor.
func (t *Transport) beginConnectAttempt() {
	t.marker++
	t.resetPendingInFlight()
	myMarker := t.marker
	t.setState(Connecting)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		conn, err := t.dialer.Dial(ctx)
		t.Runner.Submit(func() { t.onDialDone(myMarker, conn, err) })
	}()
}

func (t *Transport) onDialDone(myMarker uint64, conn net.Conn, err error) {
	if myMarker != t.marker {
		// Superseded by a later attempt or a Close/Disconnect; drop it.
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		t.onConnectFailed(err)
		return
	}

	t.conn = conn
	t.errorCount = 0
	t.beenConnected = true
	t.setState(Connected)
	t.startReadLoop(myMarker, conn)
	t.pump()
}

func (t *Transport) onConnectFailed(err error) {
	t.errorCount++
	t.client.OnError(err)

	if t.errorCount >= MaxErrorCount || !t.dialer.SupportsReconnecting() {
		t.setState(Error)
		return
	}

	t.setState(Disconnected)
	myMarker := t.marker
	t.Runner.Schedule("reconnect", t.retryDelay(), func() {
		if myMarker != t.marker || t.closing {
			return
		}
		t.beginConnectAttempt()
	})
}

func (t *Transport) handleIOError(err error) {
	t.closeConn()
	t.client.OnError(err)

	if t.closing {
		t.setState(Disconnected)
		return
	}

	if !t.beenConnected || !t.dialer.SupportsReconnecting() {
		t.setState(Error)
		return
	}

	t.errorCount++
	if t.errorCount >= MaxErrorCount {
		t.setState(Error)
		return
	}

	t.setState(Disconnected)
	myMarker := t.marker
	t.Runner.Schedule("reconnect", t.retryDelay(), func() {
		if myMarker != t.marker || t.closing {
			return
		}
		t.beginConnectAttempt()
	})
}

// startReadLoop spawns the blocking reader goroutine for this
// connection generation. It decodes frames as bytes arrive and hands
// each one back to the actor; a read error or EOF is reported the
// same way a write error is.
func (t *Transport) startReadLoop(myMarker uint64, conn net.Conn) {
	go func() {
		r := bufio.NewReader(conn)
		dec := frame.NewDecoder(func() int {
			b, err := r.ReadByte()
			if err != nil {
				return -1
			}
			return int(b)
		})

		for {
			data, ok := dec.ReadFrame()
			if !ok {
				if dec.AtEOF() {
					t.Runner.Submit(func() { t.onReadFailed(myMarker, io.EOF) })
					return
				}
				// Malformed slice: keep reading; the next ReadFrame
				// call resyncs on the following boundary.
				continue
			}
			t.Runner.Submit(func() { t.onPacket(myMarker, data) })
		}
	}()
}

func (t *Transport) onPacket(myMarker uint64, data []byte) {
	if myMarker != t.marker {
		return
	}
	t.client.OnPacketReceived(data)
}

func (t *Transport) onReadFailed(myMarker uint64, err error) {
	if myMarker != t.marker {
		return
	}
	t.handleIOError(err)
}
