// Package compress implements the two compressor profiles from
// SPEC_FULL.md §4.2: a throughput-prioritised "fast" profile and a
// size-prioritised "high-ratio" profile, both pure functions over bytes.
// Grounded on original_source/crates/aria-telemetry/src/compression.rs
// (Lz4Compressor/ZstdCompressor), translated to the pack's actual Go
// dependencies rather than ported verbatim.
package compress

import (
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// ErrMalformed is returned when Remove cannot decompress its input,
// either because the header byte names an unknown profile or the body
// fails to decode. The Fast profile's snappy body has no checksum, so a
// corruption that still forms a valid snappy block is not detected.
var ErrMalformed = errors.New("compress: malformed payload")

// Profile identifies which compressor produced a payload. It is
// prepended as a single header byte by Apply so Remove can dispatch to
// the matching decompressor without out-of-band coordination.
type Profile byte

const (
	// Fast prioritises throughput over ratio.
	Fast Profile = iota
	// HighRatio prioritises size over throughput.
	HighRatio
)

// Compressor is the symmetric compress/decompress contract every
// profile implements.
type Compressor interface {
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
}

type fastCompressor struct{}

func (fastCompressor) Compress(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

func (fastCompressor) Decompress(src []byte) ([]byte, error) {
	dst, err := snappy.Decode(nil, src)
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	return dst, nil
}

type highRatioCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newHighRatioCompressor() *highRatioCompressor {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		// Only returns an error for invalid options; the options above
		// are always valid, so this path is unreachable in practice.
		panic(err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		panic(err)
	}
	return &highRatioCompressor{encoder: enc, decoder: dec}
}

func (c *highRatioCompressor) Compress(src []byte) ([]byte, error) {
	return c.encoder.EncodeAll(src, make([]byte, 0, len(src))), nil
}

func (c *highRatioCompressor) Decompress(src []byte) ([]byte, error) {
	dst, err := c.decoder.DecodeAll(src, nil)
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	return dst, nil
}

// For returns the Compressor implementing p.
func For(p Profile) (Compressor, error) {
	switch p {
	case Fast:
		return fastCompressor{}, nil
	case HighRatio:
		return sharedHighRatio, nil
	default:
		return nil, errors.Errorf("compress: unknown profile %d", p)
	}
}

var sharedHighRatio = newHighRatioCompressor()

// Apply compresses src under profile p and prepends the one-byte
// profile header so Remove can recover the matching decompressor.
func Apply(p Profile, src []byte) ([]byte, error) {
	c, err := For(p)
	if err != nil {
		return nil, err
	}
	body, err := c.Compress(src)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, byte(p))
	out = append(out, body...)
	return out, nil
}

// Remove reads the profile header off buf and decompresses the
// remainder with the matching profile.
func Remove(buf []byte) ([]byte, error) {
	if len(buf) < 1 {
		return nil, errors.WithStack(ErrMalformed)
	}
	c, err := For(Profile(buf[0]))
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	return c.Decompress(buf[1:])
}
