package delta

import (
	"bytes"
	"testing"
)

func TestFirstFrameIsVerbatim(t *testing.T) {
	enc := New()
	frame1 := []byte("Hello World")
	out := enc.Encode(frame1)
	if out[0] != flagFull {
		t.Fatalf("first frame flag = %d, want flagFull", out[0])
	}
	if !bytes.Equal(out[1:], frame1) {
		t.Fatalf("first frame body = %q, want %q", out[1:], frame1)
	}
}

func TestRoundTripTwoFrames(t *testing.T) {
	enc := New()
	dec := New()

	frame1 := []byte("Hello World")
	frame2 := []byte("Hello Rust!")

	d1 := enc.Encode(frame1)
	d2 := enc.Encode(frame2)

	got1, err := dec.Decode(d1)
	if err != nil {
		t.Fatalf("Decode(d1): %v", err)
	}
	got2, err := dec.Decode(d2)
	if err != nil {
		t.Fatalf("Decode(d2): %v", err)
	}

	if !bytes.Equal(got1, frame1) {
		t.Fatalf("frame1 mismatch: got %q, want %q", got1, frame1)
	}
	if !bytes.Equal(got2, frame2) {
		t.Fatalf("frame2 mismatch: got %q, want %q", got2, frame2)
	}
}

func TestDeltaReflectsOnlyTheChange(t *testing.T) {
	enc := New()

	frame1 := []byte{1, 2, 3, 4, 5}
	frame2 := []byte{1, 2, 3, 4, 6}

	d1 := enc.Encode(frame1)
	d2 := enc.Encode(frame2)

	if !bytes.Equal(d1[1:], frame1) {
		t.Fatalf("first delta should be verbatim, got %v", d1[1:])
	}
	if d2[0] != flagDelta {
		t.Fatalf("second frame flag = %d, want flagDelta", d2[0])
	}
	for i, b := range d2[1:5] {
		if b != 0 {
			t.Fatalf("byte %d of delta should be 0 (unchanged), got %d", i, b)
		}
	}
	if d2[5] == 0 {
		t.Fatal("last byte of delta should be non-zero (changed)")
	}
}

func TestRoundTripVaryingLengths(t *testing.T) {
	enc := New()
	dec := New()

	frames := [][]byte{
		[]byte("short"),
		[]byte("a much longer frame than the previous one"),
		[]byte("tiny"),
		{},
		[]byte("back to something"),
	}
	for i, f := range frames {
		d := enc.Encode(f)
		got, err := dec.Decode(d)
		if err != nil {
			t.Fatalf("frame %d: Decode: %v", i, err)
		}
		if !bytes.Equal(got, f) {
			t.Fatalf("frame %d mismatch: got %q, want %q", i, got, f)
		}
	}
}

func TestDecodeEmptyFrameFails(t *testing.T) {
	dec := New()
	if _, err := dec.Decode(nil); err == nil {
		t.Fatal("expected error decoding an empty frame")
	}
}

func TestDecodeUnknownFlagFails(t *testing.T) {
	dec := New()
	if _, err := dec.Decode([]byte{0x7F, 1, 2, 3}); err == nil {
		t.Fatal("expected error for unrecognized frame flag")
	}
}
