package transport

import (
	"context"
	"net"

	"go.uber.org/zap"
)

// ErrOneShotExhausted is returned by AcceptedConnDialer.Dial once its
// single connection has already been handed out.
var ErrOneShotExhausted = errDef("transport: one-shot dialer already used")

type errDef string

func (e errDef) Error() string { return string(e) }

// AcceptHandler is invoked once per incoming connection. It typically
// builds a new Transport (via NewAcceptedConnDialer) and a new Session
// on top of it.
type AcceptHandler func(conn net.Conn)

// TCPListener accepts inbound TCP connections, one gateway session
// per accepted socket -- this is the server side of the protocol: a
// peer dials in, gets one Transport/Session pair for the lifetime of
// that one socket, and has to reconnect from scratch (a fresh accept)
// if it drops, since the pipe itself cannot be redialed from the
// gateway's end.
type TCPListener struct {
	addr     string
	log      *zap.Logger
	listener net.Listener
}

// NewTCPListener prepares a listener for addr (e.g. ":7777"). Listen
// must be called before Serve.
func NewTCPListener(addr string, log *zap.Logger) *TCPListener {
	if log == nil {
		log = zap.NewNop()
	}
	return &TCPListener{addr: addr, log: log}
}

// Listen opens the listening socket.
func (l *TCPListener) Listen() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}
	l.listener = ln
	return nil
}

// Addr returns the bound address, valid after Listen succeeds.
func (l *TCPListener) Addr() net.Addr {
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// Serve accepts connections until ctx is canceled or Close is called,
// handing each one to handler on its own goroutine.
func (l *TCPListener) Serve(ctx context.Context, handler AcceptHandler) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				l.log.Warn("accept failed", zap.Error(err))
				return err
			}
		}
		go handler(conn)
	}
}

// Close stops accepting new connections.
func (l *TCPListener) Close() error {
	if l.listener == nil {
		return nil
	}
	return l.listener.Close()
}
