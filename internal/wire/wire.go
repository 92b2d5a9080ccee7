// Package wire holds the length-prefixed binary primitives shared by the
// envelope codec and the fragment/FEC/crypto metadata sub-blocks.
package wire

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// ErrTruncated is returned whenever a buffer ends before a length-prefixed
// field can be fully read.
var ErrTruncated = errors.New("wire: buffer truncated")

// PutUint32 appends a big-endian uint32.
func PutUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// PutUint64 appends a big-endian uint64.
func PutUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// PutBytes appends a 4-byte big-endian length prefix followed by b.
func PutBytes(buf []byte, b []byte) []byte {
	buf = PutUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

// PutString appends a 4-byte big-endian length prefix followed by s.
func PutString(buf []byte, s string) []byte {
	return PutBytes(buf, []byte(s))
}

// ReadUint32 reads a big-endian uint32, returning the remaining buffer.
func ReadUint32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, errors.WithStack(ErrTruncated)
	}
	return binary.BigEndian.Uint32(buf), buf[4:], nil
}

// ReadUint64 reads a big-endian uint64, returning the remaining buffer.
func ReadUint64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, errors.WithStack(ErrTruncated)
	}
	return binary.BigEndian.Uint64(buf), buf[8:], nil
}

// ReadBytes reads a length-prefixed byte slice, returning the remaining
// buffer. The returned slice aliases buf.
func ReadBytes(buf []byte) ([]byte, []byte, error) {
	n, rest, err := ReadUint32(buf)
	if err != nil {
		return nil, nil, err
	}
	if uint32(len(rest)) < n {
		return nil, nil, errors.WithStack(ErrTruncated)
	}
	return rest[:n], rest[n:], nil
}

// ReadString reads a length-prefixed string, returning the remaining buffer.
func ReadString(buf []byte) (string, []byte, error) {
	b, rest, err := ReadBytes(buf)
	if err != nil {
		return "", nil, err
	}
	return string(b), rest, nil
}

// PutFloat32 appends a big-endian IEEE-754 float32.
func PutFloat32(buf []byte, f float32) []byte {
	return PutUint32(buf, math.Float32bits(f))
}

// ReadFloat32 reads a big-endian IEEE-754 float32.
func ReadFloat32(buf []byte) (float32, []byte, error) {
	bits, rest, err := ReadUint32(buf)
	if err != nil {
		return 0, nil, err
	}
	return math.Float32frombits(bits), rest, nil
}

// PutBool appends a single presence byte.
func PutBool(buf []byte, b bool) []byte {
	if b {
		return append(buf, 1)
	}
	return append(buf, 0)
}

// ReadBool reads a single presence byte.
func ReadBool(buf []byte) (bool, []byte, error) {
	if len(buf) < 1 {
		return false, nil, errors.WithStack(ErrTruncated)
	}
	return buf[0] != 0, buf[1:], nil
}
