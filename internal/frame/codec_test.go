package frame

import (
	"bytes"
	"math/rand"
	"testing"
)

func decodeAll(t *testing.T, stream []byte) [][]byte {
	t.Helper()
	i := 0
	d := NewDecoder(func() int {
		if i >= len(stream) {
			return -1
		}
		b := stream[i]
		i++
		return int(b)
	})

	var frames [][]byte
	for !d.AtEOF() {
		f, ok := d.ReadFrame()
		if !ok {
			continue
		}
		frames = append(frames, f)
	}
	return frames
}

// decodeOneFollowedBySentinel encodes payload, then a non-empty sentinel
// frame after it, and returns the first decoded frame. The sentinel
// checks that decoding the first frame leaves the decoder positioned
// on the next one. A frame holding zero bytes is skipped as padding
// wherever it appears in the stream (same property the Python
// original has), so callers pass non-empty payloads only.
func decodeOneFollowedBySentinel(t *testing.T, payload []byte) []byte {
	t.Helper()
	stream := append(Encode(payload), Encode([]byte("sentinel"))...)
	frames := decodeAll(t, stream)
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d: %v", len(frames), frames)
	}
	if string(frames[1]) != "sentinel" {
		t.Fatalf("sentinel frame corrupted: %q", frames[1])
	}
	return frames[0]
}

func TestRoundTrip(t *testing.T) {
	// A payload of zero length is not represented here: Encode(nil)
	// degenerates to the two boundary markers back to back, which the
	// decoder's own zero-skipping (mirroring the gateway's reference
	// FrameDecoder) treats as plain padding rather than a frame of its
	// own. Every case below carries at least one byte.
	cases := [][]byte{
		{0x01},
		{0x00},
		{0x00, 0x00, 0x00},
		[]byte("hello world"),
		bytes.Repeat([]byte{0xAB}, 500),
	}

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		n := r.Intn(2000) + 1
		buf := make([]byte, n)
		r.Read(buf)
		cases = append(cases, buf)
	}

	for idx, payload := range cases {
		got := decodeOneFollowedBySentinel(t, payload)
		if got == nil {
			got = []byte{}
		}
		want := payload
		if want == nil {
			want = []byte{}
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("case %d: round trip mismatch: got %v want %v", idx, got, want)
		}
	}
}

func TestMultipleFramesOnOneStream(t *testing.T) {
	var stream []byte
	stream = append(stream, Encode([]byte("first"))...)
	stream = append(stream, Encode([]byte("second"))...)
	stream = append(stream, Encode([]byte("third"))...)

	frames := decodeAll(t, stream)
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d: %v", len(frames), frames)
	}
	if string(frames[0]) != "first" || string(frames[1]) != "second" || string(frames[2]) != "third" {
		t.Fatalf("unexpected frame contents: %v", frames)
	}
}

func TestWriteSliceSizeExactBytes(t *testing.T) {
	cases := []struct {
		size   int
		lo, hi byte
	}{
		{0, 0x80, 0x80},
		{127, 0xFF, 0x80},
		{128, 0x80, 0x81},
		{1024, 0x80, 0x88},
	}

	for _, c := range cases {
		var out []byte
		e := NewEncoder(func(b []byte) { out = append(out, b...) })
		e.writeSliceSize(c.size)
		if len(out) != 2 || out[0] != c.lo || out[1] != c.hi {
			t.Fatalf("size %d: got % X, want [% X % X]", c.size, out, c.lo, c.hi)
		}
	}
}

func TestResyncAfterGarbagePrefix(t *testing.T) {
	var stream []byte
	// Garbage that never hits a 0x00 boundary, followed by a well-formed frame.
	stream = append(stream, 0x42, 0x43, 0x44)
	stream = append(stream, Encode([]byte("payload"))...)

	frames := decodeAll(t, stream)
	if len(frames) != 1 {
		t.Fatalf("expected decoder to resync and recover 1 frame, got %d: %v", len(frames), frames)
	}
	if string(frames[0]) != "payload" {
		t.Fatalf("unexpected recovered frame: %q", frames[0])
	}
}

func TestResyncAfterGarbageContainingZero(t *testing.T) {
	var stream []byte
	// A stray 0x00 with no frame after it just looks like an empty/partial
	// frame boundary; the decoder should still land cleanly on the next
	// real frame.
	stream = append(stream, 0x42, 0x00, 0x43)
	stream = append(stream, Encode([]byte("next"))...)

	frames := decodeAll(t, stream)
	if len(frames) != 1 || string(frames[0]) != "next" {
		t.Fatalf("expected resync to next frame, got %v", frames)
	}
}

func TestNoInnerNulInEncodedStream(t *testing.T) {
	payload := []byte("contains\x00a literal zero\x00byte")
	encoded := Encode(payload)

	if len(encoded) < 2 || encoded[0] != 0x00 || encoded[len(encoded)-1] != 0x00 {
		t.Fatalf("expected leading and trailing 0x00 boundary markers")
	}
	inner := encoded[1 : len(encoded)-1]
	for _, b := range inner {
		if b == 0x00 {
			t.Fatalf("encoded stream must not contain 0x00 except at frame boundaries: % X", encoded)
		}
	}

	frames := decodeAll(t, encoded)
	if len(frames) != 1 || !bytes.Equal(frames[0], payload) {
		t.Fatalf("round trip through stuffed zero failed: got %v want %v", frames, payload)
	}
}

func TestEmptyStreamYieldsNoFrames(t *testing.T) {
	frames := decodeAll(t, nil)
	if len(frames) != 0 {
		t.Fatalf("expected no frames from empty stream, got %v", frames)
	}
}

func TestDecoderEOFIsSticky(t *testing.T) {
	i := 0
	stream := []byte{0x01, 0x02}
	d := NewDecoder(func() int {
		if i >= len(stream) {
			return -1
		}
		b := stream[i]
		i++
		return int(b)
	})

	if _, ok := d.ReadFrame(); ok {
		t.Fatal("expected no frame from a stream with no boundary marker")
	}
	if !d.AtEOF() {
		t.Fatal("expected AtEOF to be true after exhausting the source")
	}
	if _, ok := d.ReadFrame(); ok {
		t.Fatal("expected ReadFrame to keep returning false once at EOF")
	}
}
