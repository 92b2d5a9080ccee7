// Package fec implements the block Reed-Solomon forward-error-correction
// contract from SPEC_FULL.md §4.3: encode(bytes, k, m) -> shards[k+m],
// decode(shards-with-holes, k, m) -> bytes. Grounded on fec.go's use of
// github.com/klauspost/reedsolomon, but as a stateless block codec
// rather than a continuous per-connection shard-stream matcher — this
// contract operates one block at a time with explicit k/m per block,
// not a KCP-style running shard id space, so the original
// autotune/shardHeap machinery has no equivalent here (see DESIGN.md).
package fec

import (
	"github.com/klauspost/reedsolomon"

	"github.com/pkg/errors"
)

// ErrUnrecoverable is returned by Decode when fewer than k shards are
// present.
var ErrUnrecoverable = errors.New("fec: fewer than k shards present, block unrecoverable")

// Block is the result of Encode: k+m equal-length shards plus the
// original byte length needed to strip padding on Decode.
type Block struct {
	K, M      int
	DataLen   int
	Shards    [][]byte
}

// Encode partitions src into k equal-size, zero-padded data shards and
// computes m parity shards, per SPEC_FULL.md §4.3. k must be positive;
// m may be zero, meaning no redundancy (a total loss of any one shard
// is unrecoverable — used by callers that want FEC's fragmentation
// shape without its resilience, e.g. the pipeline tests that need one
// unprotected shard).
func Encode(src []byte, k, m int) (Block, error) {
	if k <= 0 || m < 0 {
		return Block{}, errors.Errorf("fec: k must be positive and m non-negative, got k=%d m=%d", k, m)
	}

	shardLen := (len(src) + k - 1) / k
	if shardLen == 0 {
		shardLen = 1
	}
	shards := make([][]byte, k+m)
	for i := range shards {
		shards[i] = make([]byte, shardLen)
	}
	for i, b := range src {
		shards[i/shardLen][i%shardLen] = b
	}

	if m > 0 {
		enc, err := reedsolomon.New(k, m)
		if err != nil {
			return Block{}, errors.Wrap(err, "fec: construct codec")
		}
		if err := enc.Encode(shards); err != nil {
			return Block{}, errors.Wrap(err, "fec: encode parity shards")
		}
	}

	return Block{K: k, M: m, DataLen: len(src), Shards: shards}, nil
}

// Decode reconstructs the original bytes from shards, a k+m slice with
// absent shards represented as nil. dataLen is the original,
// pre-padding byte length (carried out-of-band in envelope.FECInfo, per
// SPEC_FULL.md §4.3's "must not rely on trailing-zero stripping").
func Decode(shards [][]byte, k, m, dataLen int) ([]byte, error) {
	if k <= 0 || m < 0 {
		return nil, errors.Errorf("fec: k must be positive and m non-negative, got k=%d m=%d", k, m)
	}
	if len(shards) != k+m {
		return nil, errors.Errorf("fec: expected %d shards, got %d", k+m, len(shards))
	}

	present := 0
	for _, s := range shards {
		if s != nil {
			present++
		}
	}
	if present < k {
		return nil, errors.WithStack(ErrUnrecoverable)
	}

	work := make([][]byte, len(shards))
	copy(work, shards)

	if m > 0 {
		enc, err := reedsolomon.New(k, m)
		if err != nil {
			return nil, errors.Wrap(err, "fec: construct codec")
		}
		if err := enc.Reconstruct(work); err != nil {
			return nil, errors.Wrap(ErrUnrecoverable, err.Error())
		}
	}

	out := make([]byte, 0, dataLen)
	for i := 0; i < k && len(out) < dataLen; i++ {
		remain := dataLen - len(out)
		if remain >= len(work[i]) {
			out = append(out, work[i]...)
		} else {
			out = append(out, work[i][:remain]...)
		}
	}
	return out, nil
}
