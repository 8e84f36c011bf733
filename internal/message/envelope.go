// Package message defines Envelope, the tagged-union wire message
// exchanged between the gateway and a peer once the session layer is
// established. An Envelope carries exactly one Payload, and is
// serialized by the codec layer before being handed to the messenger.
package message

// Envelope is the "request/response" wrapper every message travels
// in: SessionID scopes it to a session generation. RequestID is set
// when this envelope opens a new exchange, ResponseID when it answers
// one already in flight, and neither for a one-way notification (see
// Session.Notify). An envelope with neither id is not dropped: the
// session hands it to its Client the same way as a request.
type Envelope struct {
	SessionID  uint64
	RequestID  *uint64
	ResponseID *uint64
	Payload    Payload
}

// IsRequest reports whether this envelope opens a new request.
func (e *Envelope) IsRequest() bool { return e.RequestID != nil }

// IsResponse reports whether this envelope answers a prior request.
func (e *Envelope) IsResponse() bool { return e.ResponseID != nil }

// Payload is implemented by every message body that can ride inside
// an Envelope. Tag identifies the concrete payload type for the codec
// and the router; it is stable wire identity, not a Go type name.
type Payload interface {
	Tag() string
}

// Control payload tags, handled by the session layer itself before
// anything reaches the request router.
const (
	TagHeartbeat    = "control.heartbeat"
	TagOk           = "control.ok"
	TagSetSessionID = "control.set_session_id"
	TagError        = "control.error"
)

// Heartbeat keeps a quiet link from being reclaimed as dead. Either
// side may send one as a request; it carries no data, and the
// receiving session answers it with Ok.
type Heartbeat struct{}

func (Heartbeat) Tag() string { return TagHeartbeat }

// Ok is the generic success response for requests whose result
// carries no data beyond "it worked".
type Ok struct{}

func (Ok) Tag() string { return TagOk }

// SetSessionID is sent by the gateway immediately after a transport
// (re)connects, telling the peer which session ID to quote on every
// envelope for the remainder of that connection.
type SetSessionID struct {
	SessionID uint64
}

func (SetSessionID) Tag() string { return TagSetSessionID }

// Error answers a request that failed. Code is a short machine-
// readable identifier (e.g. "not_found", "busy"); Message is for logs
// and diagnostics, not for programmatic branching.
type Error struct {
	Code    string
	Message string
}

func (Error) Tag() string { return TagError }
