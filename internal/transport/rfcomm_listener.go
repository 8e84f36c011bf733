package transport

import (
	"context"
	"errors"
	"net"
)

// Listener is the contract a concrete transport (TCP, Bluetooth
// RFCOMM, ...) implements to hand accepted connections to the
// gateway. TCPListener is the fully working implementation; a
// Bluetooth RFCOMM listener is the natural second implementation for
// a target board without a network interface, but needs a BlueZ/HCI
// binding this module does not vendor -- RFCOMMListener exists as the
// documented extension point, not a working stack.
type Listener interface {
	Listen() error
	Serve(ctx context.Context, handler AcceptHandler) error
	Addr() net.Addr
	Close() error
}

var _ Listener = (*TCPListener)(nil)

// ErrRFCOMMUnsupported is returned by every RFCOMMListener method: no
// Bluetooth stack is wired into this module.
var ErrRFCOMMUnsupported = errors.New("transport: RFCOMM listener requires a platform Bluetooth binding not vendored in this build")

// RFCOMMListener is a placeholder Listener for a Bluetooth RFCOMM
// channel, matching the shape pairing.py's agent and bt.py's
// BluetoothListener have in the original gateway. Pairing/bonding
// policy is explicitly out of scope (see Non-goals); this stub exists
// so callers can select a transport kind without a type assertion,
// and fails loudly rather than silently falling back to TCP.
type RFCOMMListener struct {
	Channel int
}

func NewRFCOMMListener(channel int) *RFCOMMListener {
	return &RFCOMMListener{Channel: channel}
}

func (l *RFCOMMListener) Listen() error { return ErrRFCOMMUnsupported }

func (l *RFCOMMListener) Serve(ctx context.Context, handler AcceptHandler) error {
	return ErrRFCOMMUnsupported
}

func (l *RFCOMMListener) Addr() net.Addr { return nil }

func (l *RFCOMMListener) Close() error { return nil }

var _ Listener = (*RFCOMMListener)(nil)
