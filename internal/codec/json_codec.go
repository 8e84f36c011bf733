package codec

import (
	"encoding/json"
	"fmt"

	"github.com/bgrzesik/programatorus-server/internal/message"
)

// JSONCodec encodes an Envelope as a JSON object carrying the
// payload's wire tag next to the payload, so a human reading a packet capture can
// tell what a message is without cross-referencing a schema.
type JSONCodec struct{}

type jsonEnvelope struct {
	SessionID  uint64          `json:"session_id"`
	RequestID  *uint64         `json:"request_id,omitempty"`
	ResponseID *uint64         `json:"response_id,omitempty"`
	Tag        string          `json:"tag"`
	Payload    json.RawMessage `json:"payload"`
}

func (c *JSONCodec) Encode(e *message.Envelope) ([]byte, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("codec: encode payload: %w", err)
	}
	w := jsonEnvelope{
		SessionID:  e.SessionID,
		RequestID:  e.RequestID,
		ResponseID: e.ResponseID,
		Tag:        e.Payload.Tag(),
		Payload:    payload,
	}
	return json.Marshal(w)
}

func (c *JSONCodec) Decode(data []byte) (*message.Envelope, error) {
	var w jsonEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("codec: decode envelope: %w", err)
	}
	payload, ok := message.NewByTag(w.Tag)
	if !ok {
		return nil, fmt.Errorf("codec: unknown payload tag %q", w.Tag)
	}
	if err := json.Unmarshal(w.Payload, payload); err != nil {
		return nil, fmt.Errorf("codec: decode payload %q: %w", w.Tag, err)
	}
	return &message.Envelope{
		SessionID:  w.SessionID,
		RequestID:  w.RequestID,
		ResponseID: w.ResponseID,
		Payload:    payload,
	}, nil
}

func (c *JSONCodec) Type() Type { return TypeJSON }
