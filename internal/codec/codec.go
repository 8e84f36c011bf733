// Package codec provides the serialization layer between an Envelope
// and the bytes a frame carries.
//
// It defines a pluggable Codec interface with two implementations,
// mirroring the tradeoff of any wire-format choice:
//   - JSON:   human-readable, easy to debug over a terminal, slower.
//   - Binary: compact length-prefixed wrapper around the same JSON
//     payload body, faster to parse and smaller for high-frequency
//     envelopes like heartbeats.
//
// The codec type is carried out of band by the transport/messenger
// layer (not inside the frame itself), since a pipe uses one codec
// for its whole lifetime.
package codec

import "github.com/bgrzesik/programatorus-server/internal/message"

// Type identifies the serialization format.
type Type byte

const (
	TypeJSON   Type = 0
	TypeBinary Type = 1
)

// Codec serializes and deserializes Envelopes.
type Codec interface {
	Encode(e *message.Envelope) ([]byte, error)
	Decode(data []byte) (*message.Envelope, error)
	Type() Type
}

// Get returns the Codec implementation for t. An unrecognized type
// falls back to JSON, the self-describing and debuggable default.
func Get(t Type) Codec {
	if t == TypeBinary {
		return &BinaryCodec{}
	}
	return &JSONCodec{}
}
