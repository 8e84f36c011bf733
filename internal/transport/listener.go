package transport

import (
	"context"
	"net"
)

// Dialer produces a fresh byte pipe on demand. A Transport calls
// Dial every time it needs to (re)connect; how the pipe is obtained
// -- TCP dial, Bluetooth RFCOMM connect, an in-process pipe for tests
// -- is entirely up to the implementation.
type Dialer interface {
	Dial(ctx context.Context) (net.Conn, error)
	// SupportsReconnecting reports whether this pipe kind can be
	// meaningfully redialed after it drops. A one-shot pipe (e.g. a
	// socket accepted from a listener that will not accept again)
	// returns false, which disables the retry loop entirely.
	SupportsReconnecting() bool
}

// TCPDialer dials a fixed TCP address on every call.
type TCPDialer struct {
	Addr string
}

func NewTCPDialer(addr string) *TCPDialer {
	return &TCPDialer{Addr: addr}
}

func (d *TCPDialer) Dial(ctx context.Context) (net.Conn, error) {
	var dialer net.Dialer
	return dialer.DialContext(ctx, "tcp", d.Addr)
}

func (d *TCPDialer) SupportsReconnecting() bool { return true }

// AcceptedConnDialer wraps a connection that was handed to us by a
// listener's Accept() call. It cannot be redialed: once it drops,
// the peer has to come back and get accepted again as a brand new
// pipe (and brand new Transport).
type AcceptedConnDialer struct {
	conn net.Conn
	used bool
}

func NewAcceptedConnDialer(conn net.Conn) *AcceptedConnDialer {
	return &AcceptedConnDialer{conn: conn}
}

func (d *AcceptedConnDialer) Dial(ctx context.Context) (net.Conn, error) {
	if d.used {
		return nil, ErrOneShotExhausted
	}
	d.used = true
	return d.conn, nil
}

func (d *AcceptedConnDialer) SupportsReconnecting() bool { return false }
