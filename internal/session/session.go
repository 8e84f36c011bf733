// Package session implements the request/response correlation layer
// on top of messenger: it assigns and adopts session ids, correlates
// an outgoing Request with its eventual Response by request id, and
// keeps the link alive with a single periodic liveness check so a
// silently dead pipe gets noticed and reconnected instead of hanging
// forever.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/bgrzesik/programatorus-server/internal/actor"
	"github.com/bgrzesik/programatorus-server/internal/codec"
	"github.com/bgrzesik/programatorus-server/internal/message"
	"github.com/bgrzesik/programatorus-server/internal/messenger"
	"github.com/bgrzesik/programatorus-server/internal/transport"
)

// Tuning constants for the liveness protocol. A heartbeat goes out
// twice a second so a NAT or proxy in the middle never reclaims the
// socket as idle; a link that hasn't produced a single byte -- not
// even a heartbeat -- in 16 seconds is declared dead and force-
// reconnected, since waiting on a half-open TCP connection can hang
// indefinitely with no error ever surfacing.
const (
	HeartbeatInterval = 500 * time.Millisecond
	SessionTimeout    = 16 * time.Second
)

// Errors a Request can observe.
var (
	ErrNotConnected   = errors.New("session: not connected")
	ErrSessionLost    = errors.New("session: connection lost")
	ErrSessionTimeout = errors.New("session: link went quiet, timed out")
)

// Role decides which side of a session mints the session id. The
// gateway is the server: it assigns a fresh id on every fresh
// connection and pushes it to the peer. A session dialing out to
// external hardware is the client: it waits to be told its id.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// Client receives Session-level callbacks.
type Client interface {
	// OnRequest delivers an inbound envelope that is neither a
	// control message nor a response to one of our own requests: a
	// peer-initiated request (RequestID set) or one-way notification
	// (neither id set). The router lives here.
	OnRequest(env *message.Envelope)
	OnSessionReady(sessionID uint64)
	OnSessionLost(err error)
}

type pendingMessage struct {
	resultCh chan requestResult
	// isHeartbeat marks an entry minted by the link-check loop itself,
	// so its response can clear heartbeatOutstanding without being
	// mistaken for an application request.
	isHeartbeat bool
}

type requestResult struct {
	payload message.Payload
	err     error
}

// Session owns one Messenger and the request-correlation state built
// on top of it.
type Session struct {
	actor.Actor

	messenger *messenger.Messenger
	role      Role
	client    Client
	log       *zap.Logger

	sessionID uint64
	pending   map[uint64]*pendingMessage
	reqSeq    atomic.Uint64

	connected bool

	lastTransfer         time.Time
	heartbeatOutstanding bool

	// heartbeatInterval/sessionTimeout override the package constants
	// when non-zero. Exposed only for tests that can't afford to wait
	// out the real 16-second timeout.
	heartbeatInterval time.Duration
	sessionTimeout    time.Duration
}

// sessionIDSeq mints session ids across every Session in the process;
// 0 is reserved for "unassigned" so the first minted id is 1.
var sessionIDSeq atomic.Uint64

func nextSessionID() uint64 { return sessionIDSeq.Add(1) }

func (s *Session) heartbeatDelay() time.Duration {
	if s.heartbeatInterval > 0 {
		return s.heartbeatInterval
	}
	return HeartbeatInterval
}

func (s *Session) timeoutDelay() time.Duration {
	if s.sessionTimeout > 0 {
		return s.sessionTimeout
	}
	return SessionTimeout
}

// New creates a Session and the Messenger/Transport underneath it.
func New(name string, dialer transport.Dialer, c codec.Codec, role Role, client Client, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{
		role:    role,
		client:  client,
		log:     log.Named("session"),
		pending: make(map[uint64]*pendingMessage),
	}
	s.Actor = actor.NewActor(name, log)
	s.messenger = messenger.New(name, dialer, c, s, log)
	return s
}

// Connect starts the underlying messenger/transport.
func (s *Session) Connect() { s.messenger.Connect() }

// Close tears the session down permanently, including its own actor
// goroutine (separate from the Messenger/Transport's, which Close
// stops first).
func (s *Session) Close() {
	s.messenger.Close()
	s.Runner.Close()
}

// Request sends payload as a new request and blocks until a matching
// response arrives, ctx is canceled, or the session is lost.
func (s *Session) Request(ctx context.Context, payload message.Payload) (message.Payload, error) {
	id := s.reqSeq.Add(1)
	resultCh := make(chan requestResult, 1)

	s.Runner.Submit(func() {
		if !s.connected {
			resultCh <- requestResult{err: ErrNotConnected}
			return
		}
		s.pending[id] = &pendingMessage{resultCh: resultCh}
		env := &message.Envelope{SessionID: s.sessionID, RequestID: &id, Payload: payload}
		out := s.messenger.Send(env)
		go s.watchRequestSend(id, out)
	})

	select {
	case r := <-resultCh:
		return r.payload, r.err
	case <-ctx.Done():
		s.Runner.Submit(func() { delete(s.pending, id) })
		return nil, ctx.Err()
	}
}

// watchRequestSend fails a still-pending request if the underlying
// send never makes it out (e.g. the transport gives up retrying).
// It runs off the actor goroutine since OutgoingMessage.Wait blocks.
func (s *Session) watchRequestSend(id uint64, out *messenger.OutgoingMessage) {
	err := out.Wait(context.Background())
	if err == nil {
		return
	}
	s.Runner.Submit(func() {
		pm, ok := s.pending[id]
		if !ok {
			return
		}
		delete(s.pending, id)
		select {
		case pm.resultCh <- requestResult{err: err}:
		default:
		}
	})
}

// logSendFailure waits for out to settle and logs if it failed. Used
// for sends that don't have a correlation entry to fail.
func (s *Session) logSendFailure(out *messenger.OutgoingMessage, what string, fields ...zap.Field) {
	if err := out.Wait(context.Background()); err != nil {
		s.log.Warn("failed to send "+what, append(fields, zap.Error(err))...)
	}
}

// Respond answers a peer-initiated request previously delivered to
// Client.OnRequest.
func (s *Session) Respond(requestID uint64, payload message.Payload) {
	s.Runner.Submit(func() {
		if !s.connected {
			return
		}
		env := &message.Envelope{SessionID: s.sessionID, ResponseID: &requestID, Payload: payload}
		out := s.messenger.Send(env)
		go s.logSendFailure(out, "response", zap.Uint64("request_id", requestID))
	})
}

// Notify sends a one-way envelope (neither RequestID nor ResponseID
// set), e.g. a debugger output line.
func (s *Session) Notify(payload message.Payload) {
	s.Runner.Submit(func() {
		if !s.connected {
			return
		}
		env := &message.Envelope{SessionID: s.sessionID, Payload: payload}
		out := s.messenger.Send(env)
		go s.logSendFailure(out, "notification")
	})
}

// sendControlRequest fires a session-layer control message (heartbeat,
// set-session-id) as a genuine request, so the peer's control handler
// can answer it with Ok. It must never block the actor goroutine it's
// called from, so it registers the correlation entry and returns.
func (s *Session) sendControlRequest(payload message.Payload, isHeartbeat bool) {
	id := s.reqSeq.Add(1)
	s.pending[id] = &pendingMessage{resultCh: make(chan requestResult, 1), isHeartbeat: isHeartbeat}
	env := &message.Envelope{SessionID: s.sessionID, RequestID: &id, Payload: payload}
	out := s.messenger.Send(env)
	go s.logSendFailure(out, "control request")
}

// OnEnvelopeReceived implements messenger.Client.
func (s *Session) OnEnvelopeReceived(env *message.Envelope) {
	s.Runner.Submit(func() { s.handleEnvelope(env) })
}

func (s *Session) handleEnvelope(env *message.Envelope) {
	if s.sessionID != 0 && env.SessionID != s.sessionID {
		s.log.Warn("dropping envelope for a stale session id",
			zap.Uint64("got", env.SessionID), zap.Uint64("want", s.sessionID))
		return
	}

	s.updateLastTransfer()

	switch env.Payload.Tag() {
	case message.TagHeartbeat:
		if env.IsRequest() {
			s.Respond(*env.RequestID, &message.Ok{})
		}
		return
	case message.TagSetSessionID:
		if s.role == RoleClient {
			s.adoptSessionID(env.Payload.(*message.SetSessionID).SessionID)
		}
		if env.IsRequest() {
			s.Respond(*env.RequestID, &message.Ok{})
		}
		return
	}

	if env.IsResponse() {
		s.handleResponse(env)
		return
	}
	s.client.OnRequest(env)
}

func (s *Session) handleResponse(env *message.Envelope) {
	id := *env.ResponseID
	pm, ok := s.pending[id]
	if !ok {
		return
	}
	delete(s.pending, id)
	if pm.isHeartbeat {
		s.heartbeatOutstanding = false
	}

	if errPayload, ok := env.Payload.(*message.Error); ok {
		pm.resultCh <- requestResult{err: fmt.Errorf("%s: %s", errPayload.Code, errPayload.Message)}
		return
	}
	pm.resultCh <- requestResult{payload: env.Payload}
}

func (s *Session) adoptSessionID(id uint64) {
	s.sessionID = id
	s.client.OnSessionReady(id)
}

// OnStateChanged implements messenger.Client.
func (s *Session) OnStateChanged(state transport.State) {
	s.Runner.Submit(func() { s.handleStateChanged(state) })
}

func (s *Session) handleStateChanged(state transport.State) {
	switch state {
	case transport.Connected:
		s.connected = true
		s.heartbeatOutstanding = false
		if s.role == RoleServer {
			s.sessionID = nextSessionID()
			s.client.OnSessionReady(s.sessionID)
			s.sendSetSessionID()
		}
		s.updateLastTransfer()
	case transport.Disconnected, transport.Error, transport.Disconnecting:
		s.connected = false
		s.Runner.CancelScheduled(linkCheckKey)
		s.failAllPending(ErrSessionLost)
		s.client.OnSessionLost(ErrSessionLost)
	}
}

// sendSetSessionID pushes the freshly minted id to the peer. The
// session never generates set_session_id itself in the other
// direction: this is a server-only, connect-time push, carried over
// the request path so the peer's control handler replies with Ok.
func (s *Session) sendSetSessionID() {
	s.sendControlRequest(&message.SetSessionID{SessionID: s.sessionID}, false)
}

// OnError implements messenger.Client.
func (s *Session) OnError(err error) {
	s.Runner.Submit(func() {
		s.log.Debug("transport error", zap.Error(err))
	})
}

func (s *Session) failAllPending(err error) {
	for id, pm := range s.pending {
		pm.resultCh <- requestResult{err: err}
		delete(s.pending, id)
	}
}

const linkCheckKey = "link_check"

// updateLastTransfer records that a byte (inbound or a successfully
// acknowledged outbound heartbeat) just proved the link alive, and
// re-arms the link-check task to fire after one heartbeat interval.
func (s *Session) updateLastTransfer() {
	s.lastTransfer = time.Now()
	s.Runner.Schedule(linkCheckKey, s.heartbeatDelay(), s.linkCheck)
}

// linkCheck is the single periodic task that both emits heartbeats and
// detects a dead link. It re-arms itself at roughly the remaining time
// until a timeout would fire, so a quiet link gets re-checked right
// when it matters instead of being polled on a fixed fast tick.
func (s *Session) linkCheck() {
	if !s.connected {
		return
	}

	idle := time.Since(s.lastTransfer)
	if idle >= s.timeoutDelay() {
		s.onTimeout()
		return
	}

	if idle >= s.heartbeatDelay() && !s.heartbeatOutstanding {
		s.heartbeatOutstanding = true
		s.sendControlRequest(&message.Heartbeat{}, true)
	}

	next := s.timeoutDelay() - idle
	if next <= 0 {
		next = s.heartbeatDelay()
	}
	s.Runner.Schedule(linkCheckKey, next, s.linkCheck)
}

func (s *Session) onTimeout() {
	s.log.Warn("session timed out, forcing reconnect")
	s.connected = false
	s.failAllPending(ErrSessionTimeout)
	s.client.OnSessionLost(ErrSessionTimeout)
	s.messenger.Disconnect()
	s.messenger.Connect()
}

var _ messenger.Client = (*Session)(nil)
