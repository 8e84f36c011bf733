// Package messenger sits between the raw framed Transport and the
// Session layer: it serializes/deserializes Envelopes with a Codec
// and re-exposes the Transport's connection lifecycle one layer up,
// so Session never touches wire bytes.
package messenger

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/bgrzesik/programatorus-server/internal/codec"
	"github.com/bgrzesik/programatorus-server/internal/message"
	"github.com/bgrzesik/programatorus-server/internal/transport"
)

// OutgoingMessage is returned by Send; it settles once the underlying
// transport.OutgoingPacket settles (or immediately, if the envelope
// failed to encode), grounded on the original's
// Messenger.OutgoingMessage (messenger.py).
type OutgoingMessage struct {
	done chan struct{}
	once sync.Once
	err  error

	// marker is stamped once the underlying packet is known and
	// compared in the packet's done callback, mirroring last_marker /
	// on_impl_future_done. Send stamps it once and each OutgoingMessage
	// follows exactly one packet (the transport re-dispatches that same
	// packet across reconnects), so the comparison always matches.
	marker uint64
}

func newOutgoingMessage() *OutgoingMessage {
	return &OutgoingMessage{done: make(chan struct{})}
}

// Wait blocks until the message is delivered or permanently failed,
// or ctx is done first.
func (m *OutgoingMessage) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *OutgoingMessage) settle(err error) {
	m.once.Do(func() {
		m.err = err
		close(m.done)
	})
}

// follow waits on pkt in the background and forwards its result to m,
// discarding the completion if m's marker no longer equals marker
// (set_outgoing_message/on_impl_future_done).
func (m *OutgoingMessage) follow(pkt *transport.OutgoingPacket, marker uint64) {
	go func() {
		err := pkt.Wait(context.Background())
		if m.marker != marker {
			return
		}
		m.settle(err)
	}()
}

// Client receives Envelope-level callbacks from a Messenger, mirroring
// transport.Client one layer up.
type Client interface {
	OnEnvelopeReceived(env *message.Envelope)
	OnStateChanged(state transport.State)
	OnError(err error)
}

// Messenger wraps a Transport, translating framed bytes to and from
// Envelopes with a Codec. It implements transport.Client itself so it
// can sit directly in a Transport's callback slot.
type Messenger struct {
	transport *transport.Transport
	codec     codec.Codec
	client    Client
	log       *zap.Logger
}

// New creates a Messenger and the Transport underneath it in one
// step, since each needs a reference to the other: the Messenger must
// be the Transport's Client, but a Messenger forwarding Connect/Send
// calls needs the Transport to forward them to.
func New(name string, dialer transport.Dialer, c codec.Codec, client Client, log *zap.Logger) *Messenger {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Messenger{codec: c, client: client, log: log.Named("messenger")}
	m.transport = transport.New(name, dialer, m, log)
	return m
}

// Send encodes env with the configured codec and hands the bytes to
// the underlying Transport, returning an OutgoingMessage whose Wait
// settles once the packet is delivered or permanently fails.
func (m *Messenger) Send(env *message.Envelope) *OutgoingMessage {
	out := newOutgoingMessage()

	data, err := m.codec.Encode(env)
	if err != nil {
		m.log.Error("failed to encode envelope", zap.Error(err), zap.String("tag", env.Payload.Tag()))
		out.settle(err)
		return out
	}

	out.marker = 1
	pkt := m.transport.Send(data)
	out.follow(pkt, out.marker)
	return out
}

// Connect/Disconnect/Close simply delegate to the underlying
// Transport; Messenger adds no connection-management state of its
// own.
func (m *Messenger) Connect()    { m.transport.Connect() }
func (m *Messenger) Disconnect() { m.transport.Disconnect() }
func (m *Messenger) Close()      { m.transport.Close() }

// OnPacketReceived implements transport.Client: decode the frame's
// bytes into an Envelope and forward it. A frame that fails to decode
// is logged and dropped rather than torn down -- one corrupt envelope
// on an otherwise healthy link shouldn't force a reconnect.
func (m *Messenger) OnPacketReceived(data []byte) {
	env, err := m.codec.Decode(data)
	if err != nil {
		m.log.Warn("dropping undecodable envelope", zap.Error(err))
		return
	}
	m.client.OnEnvelopeReceived(env)
}

func (m *Messenger) OnStateChanged(state transport.State) {
	m.client.OnStateChanged(state)
}

func (m *Messenger) OnError(err error) {
	m.client.OnError(err)
}

var _ transport.Client = (*Messenger)(nil)
