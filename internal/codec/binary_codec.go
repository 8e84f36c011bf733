package codec

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bgrzesik/programatorus-server/internal/message"
)

// BinaryCodec binary-encodes the Envelope's wrapper fields (session
// id, request/response id, tag) and leaves the payload body itself
// JSON-encoded. The saving comes from avoiding a second layer of JSON
// field names around session id and the two correlation ids, which
// dominate a heartbeat-sized message; the payload's own shape still
// benefits from JSON's self-description.
//
// Wire format:
//
//	┌───────┬───────────┬────────────┬────────────┬───────────┬────────────┬───────┐
//	│flags 1│SessionID 8│ReqID/RespID│  TagLen 2  │   Tag     │PayloadLen 4│Payload│
//	└───────┴───────────┴────────────┴────────────┴───────────┴────────────┴───────┘
//
// flags bit 0: RequestID present (8 bytes follow). bit 1: ResponseID
// present (8 bytes follow). At most one of the two bits is ever set.
type BinaryCodec struct{}

const (
	flagHasRequestID  = 1 << 0
	flagHasResponseID = 1 << 1
)

func (c *BinaryCodec) Encode(e *message.Envelope) ([]byte, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("codec: encode payload: %w", err)
	}
	tag := e.Payload.Tag()

	var flags byte
	if e.RequestID != nil {
		flags |= flagHasRequestID
	}
	if e.ResponseID != nil {
		flags |= flagHasResponseID
	}

	total := 1 + 8 + 2 + len(tag) + 4 + len(payload)
	if e.RequestID != nil {
		total += 8
	}
	if e.ResponseID != nil {
		total += 8
	}

	buf := make([]byte, total)
	offset := 0

	buf[offset] = flags
	offset++

	binary.BigEndian.PutUint64(buf[offset:offset+8], e.SessionID)
	offset += 8

	if e.RequestID != nil {
		binary.BigEndian.PutUint64(buf[offset:offset+8], *e.RequestID)
		offset += 8
	}
	if e.ResponseID != nil {
		binary.BigEndian.PutUint64(buf[offset:offset+8], *e.ResponseID)
		offset += 8
	}

	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(tag)))
	offset += 2
	offset += copy(buf[offset:], tag)

	binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(len(payload)))
	offset += 4
	offset += copy(buf[offset:], payload)

	return buf, nil
}

func (c *BinaryCodec) Decode(data []byte) (*message.Envelope, error) {
	if len(data) < 9 {
		return nil, errors.New("codec: binary envelope too short")
	}
	offset := 0

	flags := data[offset]
	offset++

	sessionID := binary.BigEndian.Uint64(data[offset : offset+8])
	offset += 8

	var requestID, responseID *uint64
	if flags&flagHasRequestID != 0 {
		if offset+8 > len(data) {
			return nil, errors.New("codec: truncated request id")
		}
		v := binary.BigEndian.Uint64(data[offset : offset+8])
		requestID = &v
		offset += 8
	}
	if flags&flagHasResponseID != 0 {
		if offset+8 > len(data) {
			return nil, errors.New("codec: truncated response id")
		}
		v := binary.BigEndian.Uint64(data[offset : offset+8])
		responseID = &v
		offset += 8
	}

	if offset+2 > len(data) {
		return nil, errors.New("codec: truncated tag length")
	}
	tagLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2
	if offset+tagLen > len(data) {
		return nil, errors.New("codec: truncated tag")
	}
	tag := string(data[offset : offset+tagLen])
	offset += tagLen

	if offset+4 > len(data) {
		return nil, errors.New("codec: truncated payload length")
	}
	payloadLen := int(binary.BigEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if offset+payloadLen > len(data) {
		return nil, errors.New("codec: truncated payload")
	}
	payloadBytes := data[offset : offset+payloadLen]

	payload, ok := message.NewByTag(tag)
	if !ok {
		return nil, fmt.Errorf("codec: unknown payload tag %q", tag)
	}
	if err := json.Unmarshal(payloadBytes, payload); err != nil {
		return nil, fmt.Errorf("codec: decode payload %q: %w", tag, err)
	}

	return &message.Envelope{
		SessionID:  sessionID,
		RequestID:  requestID,
		ResponseID: responseID,
		Payload:    payload,
	}, nil
}

func (c *BinaryCodec) Type() Type { return TypeBinary }
