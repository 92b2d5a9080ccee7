// Package delta implements the per-(source,topic) byte delta codec from
// SPEC_FULL.md §4.2: a small stateful object holding the last
// transmitted frame, XOR-ing each new frame against it. Grounded
// directly on
// original_source/crates/aria-telemetry/src/delta.rs (SimpleDeltaCodec);
// the algorithm has no natural library replacement, so this is one of
// the few stages built on nothing but standard-library byte ops.
package delta

import (
	"sync"

	"github.com/pkg/errors"
)

// frame header bytes, prepended by Encode so Decode knows whether the
// body is a verbatim first frame or an XOR delta against the previous
// one.
const (
	flagFull  byte = 0
	flagDelta byte = 1
)

// Codec holds one stream's delta state. The zero value is ready to use
// and is what New returns. Safe for concurrent use by a single stream's
// producer and consumer goroutines.
type Codec struct {
	mu       sync.Mutex
	previous []byte
	hasPrev  bool
}

// New returns a Codec with no prior frame; the next Encode call emits
// its input verbatim, flagged as a full frame.
func New() *Codec {
	return &Codec{}
}

// Encode returns a delta frame for current against the codec's stored
// previous frame (or a full frame, flagged as such, if this is the
// first call). current becomes the new previous frame regardless.
func (c *Codec) Encode(current []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []byte
	if !c.hasPrev {
		out = make([]byte, 1+len(current))
		out[0] = flagFull
		copy(out[1:], current)
	} else {
		out = make([]byte, 1+len(current))
		out[0] = flagDelta
		xorAgainst(out[1:], current, c.previous)
	}

	c.previous = append([]byte(nil), current...)
	c.hasPrev = true
	return out
}

// Decode reverses Encode: given a frame produced by a Codec in the
// same position in the stream, it reproduces the original current
// frame and advances this codec's stored previous frame to match.
func (c *Codec) Decode(frame []byte) ([]byte, error) {
	if len(frame) < 1 {
		return nil, errors.WithStack(errTruncated)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	flag, body := frame[0], frame[1:]
	var current []byte
	switch flag {
	case flagFull:
		current = append([]byte(nil), body...)
	case flagDelta:
		current = make([]byte, len(body))
		xorAgainst(current, body, c.previous)
	default:
		return nil, errors.WithStack(errUnknownFlag)
	}

	c.previous = append([]byte(nil), current...)
	c.hasPrev = true
	return current, nil
}

// xorAgainst writes len(a) bytes into dst, each the XOR of a[i] with
// b[i] where b has an index, or a[i] unchanged past the end of b —
// matching the original's "chain with an infinite run of zero bytes"
// behaviour so dst is always exactly len(a) bytes regardless of how
// a and b compare in length.
func xorAgainst(dst, a, b []byte) {
	for i := range a {
		var bb byte
		if i < len(b) {
			bb = b[i]
		}
		dst[i] = a[i] ^ bb
	}
}
