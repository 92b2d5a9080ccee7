package fec

import (
	"bytes"
	"math/rand"
	"testing"
)

func makeBuf(n int, seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))
	buf := make([]byte, n)
	rng.Read(buf)
	return buf
}

func TestEncodeShardCountAndLength(t *testing.T) {
	src := makeBuf(1024, 1)
	block, err := Encode(src, 4, 2)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(block.Shards) != 6 {
		t.Fatalf("shard count = %d, want 6", len(block.Shards))
	}
	want := (len(src) + 3) / 4
	for i, s := range block.Shards {
		if len(s) != want {
			t.Fatalf("shard %d length = %d, want %d", i, len(s), want)
		}
	}
	if block.DataLen != len(src) {
		t.Fatalf("DataLen = %d, want %d", block.DataLen, len(src))
	}
}

func TestDecodeRecoversWithTwoShardsMissing(t *testing.T) {
	src := makeBuf(1024, 2)
	block, err := Encode(src, 4, 2)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	withHoles := make([][]byte, len(block.Shards))
	copy(withHoles, block.Shards)
	withHoles[1] = nil
	withHoles[3] = nil

	got, err := Decode(withHoles, 4, 2, block.DataLen)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatal("decoded bytes do not match original")
	}
}

func TestDecodeUnrecoverableWithThreeShardsMissing(t *testing.T) {
	src := makeBuf(1024, 3)
	block, err := Encode(src, 4, 2)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	withHoles := make([][]byte, len(block.Shards))
	copy(withHoles, block.Shards)
	withHoles[0] = nil
	withHoles[1] = nil
	withHoles[3] = nil

	if _, err = Decode(withHoles, 4, 2, block.DataLen); err == nil {
		t.Fatal("expected an error")
	}
}

func TestDecodeExactlyKShardsPresent(t *testing.T) {
	src := makeBuf(777, 4)
	block, err := Encode(src, 5, 3)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	withHoles := make([][]byte, len(block.Shards))
	// keep exactly k=5 shards
	for i := 0; i < 5; i++ {
		withHoles[i] = block.Shards[i]
	}
	got, err := Decode(withHoles, 5, 3, block.DataLen)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatal("decoded bytes do not match original")
	}
}

func TestEncodeRejectsNonPositiveK(t *testing.T) {
	if _, err := Encode([]byte("x"), 0, 2); err == nil {
		t.Fatal("expected error for k=0")
	}
	if _, err := Encode([]byte("x"), -1, 2); err == nil {
		t.Fatal("expected error for k=-1")
	}
}

func TestEncodeAllowsZeroRedundancy(t *testing.T) {
	src := []byte("no parity shards wanted")
	block, err := Encode(src, 2, 0)
	if err != nil {
		t.Fatalf("Encode with m=0: %v", err)
	}
	if len(block.Shards) != 2 {
		t.Fatalf("len(Shards) = %d, want 2", len(block.Shards))
	}

	got, err := Decode(block.Shards, 2, 0, block.DataLen)
	if err != nil {
		t.Fatalf("Decode with m=0: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatal("decoded bytes do not match original")
	}
}

func TestDecodeRejectsWrongShardCount(t *testing.T) {
	if _, err := Decode(make([][]byte, 3), 4, 2, 10); err == nil {
		t.Fatal("expected error for wrong shard count")
	}
}
