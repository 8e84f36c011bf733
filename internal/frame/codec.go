// Package frame implements the wire framing for the gateway protocol:
// a zero-insertion byte-stuffing scheme that delimits variable-length
// binary frames on a raw byte stream so a fresh reader can always
// resynchronize on the next 0x00 boundary, no matter where it joined
// the stream.
//
// Wire format, per frame:
//
//	0x00  [slice]...  0x00
//
// Each slice is a two-byte length header followed by that many
// payload bytes. Both length bytes always have bit 7 set, so neither
// one can ever be mistaken for the 0x00 boundary marker:
//
//	lo = 0x80 | (len & 0x7F)
//	hi = 0x80 | ((len >> 7) & 0x7F)
//
// A frame is split into multiple slices only because the byte 0x00
// inside the *payload* has to be escaped somehow: the encoder ends a
// slice whenever it sees a literal zero in the input, and the decoder
// reinserts a single 0x00 between two slices of the same frame. The
// last slice of a frame is marked by encoding its length as len+1; the
// decoder tells "more slices follow" from "frame is done" by looking
// at the byte immediately after the slice payload.
package frame

import "errors"

// MaxFrameLen is the largest slice length the two-byte header can
// carry (15 bits).
const MaxFrameLen = 0x7FFF

// ErrFrameTooLarge is the value the encoder panics with when a slice
// would need a length that doesn't fit in 15 bits.
var ErrFrameTooLarge = errors.New("frame: slice exceeds 0x7FFF bytes")

// Encoder writes frames to an underlying byte sink one frame at a
// time: StartFrame, any number of WriteByte calls, FinishFrame.
type Encoder struct {
	sink   func(b []byte)
	buffer []byte
}

// NewEncoder returns an Encoder that hands encoded bytes to sink.
func NewEncoder(sink func(b []byte)) *Encoder {
	return &Encoder{sink: sink}
}

// StartFrame emits the opening 0x00 boundary and resets internal state.
func (e *Encoder) StartFrame() {
	e.buffer = e.buffer[:0]
	e.sink([]byte{0x00})
}

// WriteByte appends a single payload byte. A literal 0x00 in the
// input flushes the slice accumulated so far (the decoder reinserts
// the zero as a separator between slices of one frame).
func (e *Encoder) WriteByte(b byte) {
	if b != 0x00 {
		e.buffer = append(e.buffer, b)
		return
	}
	e.flushSlice(false)
}

// Write appends payload bytes, equivalent to calling WriteByte for
// each one.
func (e *Encoder) Write(p []byte) {
	for _, b := range p {
		e.WriteByte(b)
	}
}

// FinishFrame flushes any remaining buffered bytes as the frame's
// final slice and emits the closing 0x00 boundary.
func (e *Encoder) FinishFrame() {
	if len(e.buffer) > 0 {
		e.flushSlice(true)
	}
	e.buffer = e.buffer[:0]
	e.sink([]byte{0x00})
}

func (e *Encoder) flushSlice(eof bool) {
	size := len(e.buffer)
	if eof {
		size++
	}
	e.writeSliceSize(size)
	e.sink(e.buffer)
	e.buffer = e.buffer[:0]
}

// writeSliceSize emits the two-byte high-bit-set length header for a
// slice of the given size.
func (e *Encoder) writeSliceSize(size int) {
	if size > MaxFrameLen {
		panic(ErrFrameTooLarge)
	}
	lo := byte(0x80 | (size & 0x7F))
	hi := byte(0x80 | ((size >> 7) & 0x7F))
	e.sink([]byte{lo, hi})
}

// Encode is a convenience wrapper that frames a single byte slice in
// one call: start, write, finish.
func Encode(b []byte) []byte {
	var out []byte
	e := NewEncoder(func(chunk []byte) { out = append(out, chunk...) })
	e.StartFrame()
	e.Write(b)
	e.FinishFrame()
	return out
}

// ByteSource yields the next byte of the stream, -1 on EOF. It is the
// pull-based reader interface the Decoder drives -- transport feeds it
// from whatever buffer the I/O loop last read, one byte at a time.
type ByteSource func() int

// Decoder reassembles frames from a ByteSource. It is stateless
// between calls to ReadFrame except for the EOF flag: once the
// source reports EOF, the decoder remembers it and keeps returning
// (nil, false).
type Decoder struct {
	source ByteSource
	eof    bool
}

// NewDecoder returns a Decoder pulling bytes from source.
func NewDecoder(source ByteSource) *Decoder {
	return &Decoder{source: source}
}

// ReadFrame reads up to and including the next complete frame,
// skipping any partial/garbage prefix up to the first 0x00 boundary.
// It returns (frame, true) on success, or (nil, false) on EOF or a
// malformed slice (a length byte with bit 7 clear, i.e. stream
// corruption) -- in the latter case the decoder has not desynced:
// the next ReadFrame call resumes scanning for a boundary and will
// recover on the following 0x00.
func (d *Decoder) ReadFrame() ([]byte, bool) {
	if d.eof {
		return nil, false
	}

	// Skip any partial frame until the boundary marker.
	read := d.source()
	for read != 0 && read != -1 {
		read = d.source()
	}
	if read == -1 {
		d.eof = true
		return nil, false
	}

	// Tolerate repeated boundary markers.
	read = d.source()
	for read == 0 {
		read = d.source()
	}
	if read == -1 {
		d.eof = true
		return nil, false
	}

	var buf []byte
	for read != 0 {
		sliceSize := read & 0x7F
		if sliceSize == read {
			// High bit wasn't set on the first length byte: corruption.
			return nil, false
		}

		read = d.source()
		if read == 0 || read == -1 {
			d.eof = read == -1
			return nil, false
		}
		if read&0x80 == 0 {
			return nil, false
		}
		sliceSize |= (read & 0x7F) << 7

		for i := 0; i < sliceSize; i++ {
			read = d.source()
			if read == 0 || read == -1 {
				break
			}
			buf = append(buf, byte(read))
		}

		if read == 0 {
			break
		}
		if read == -1 {
			d.eof = true
			return nil, false
		}

		// A slice boundary inside the frame: reinsert the separator.
		buf = append(buf, 0x00)

		read = d.source()
		if read == 0 || read == -1 {
			d.eof = read == -1
			break
		}
	}

	return buf, true
}

// AtEOF reports whether the underlying source has been exhausted.
func (d *Decoder) AtEOF() bool { return d.eof }
