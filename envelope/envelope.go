// Package envelope defines the pipeline's unit of transit and its wire
// encoding. See SPEC_FULL.md §4.1.
package envelope

import (
	"time"

	"github.com/google/uuid"
)

// Priority orders telemetry traffic; P0 is highest.
type Priority uint8

const (
	P0 Priority = iota // Critical: commands, acks, safety
	P1                 // High: state updates, control
	P2                 // Medium: perception data
	P3                 // Low: logs, diagnostics
)

func (p Priority) String() string {
	switch p {
	case P0:
		return "P0"
	case P1:
		return "P1"
	case P2:
		return "P2"
	case P3:
		return "P3"
	default:
		return "P?"
	}
}

// Valid reports whether p is one of the four defined levels.
func (p Priority) Valid() bool {
	return p <= P3
}

// FragmentInfo is stamped by the packetizer stage. CorrelationKey is the
// id of the envelope that was fragmented; it never changes across
// fragments of one origin (see DESIGN.md Open Question 1).
type FragmentInfo struct {
	CorrelationKey  uuid.UUID
	FragmentID      uint32
	TotalFragments  uint32
	Offset          uint64
}

// FECInfo is stamped by the FEC stage. DataLen is the original,
// pre-padding byte length of the block this shard belongs to (see
// DESIGN.md Open Question 2). ShardIndex identifies this envelope's
// position in the k+m shard set so the receiver can reassemble the
// shards slice fec.Decode expects (shards arrive independently and
// out of order, so the index cannot be inferred from arrival order).
type FECInfo struct {
	K          uint32
	M          uint32
	BlockID    uint32
	DataLen    uint32
	ShardIndex uint32
}

// CryptoInfo is stamped by the crypto stage.
type CryptoInfo struct {
	Signature []byte
	KeyID     string
	Nonce     []byte
}

// Metadata carries routing and per-stage bookkeeping. Exactly one of
// FragmentInfo/FECInfo/CryptoInfo is populated by the stage that owns it;
// stamping a non-nil slot is a caller bug.
type Metadata struct {
	SourceNode     string
	SequenceNumber uint64
	FragmentInfo   *FragmentInfo
	FECInfo        *FECInfo
	CryptoInfo     *CryptoInfo
	QoSClass       string
}

// Envelope is the pipeline's unit of transit (spec §3).
type Envelope struct {
	ID        uuid.UUID
	Timestamp time.Time
	SchemaID  uint32
	Priority  Priority
	Topic     string
	Payload   []byte
	Metadata  Metadata
}

// Clone returns a deep-enough copy for stages that mutate metadata slots;
// Payload is copied so later stages may not alias the caller's buffer.
func (e Envelope) Clone() Envelope {
	c := e
	if e.Payload != nil {
		c.Payload = append([]byte(nil), e.Payload...)
	}
	if e.Metadata.FragmentInfo != nil {
		fi := *e.Metadata.FragmentInfo
		c.Metadata.FragmentInfo = &fi
	}
	if e.Metadata.FECInfo != nil {
		fi := *e.Metadata.FECInfo
		c.Metadata.FECInfo = &fi
	}
	if e.Metadata.CryptoInfo != nil {
		ci := *e.Metadata.CryptoInfo
		ci.Signature = append([]byte(nil), e.Metadata.CryptoInfo.Signature...)
		ci.Nonce = append([]byte(nil), e.Metadata.CryptoInfo.Nonce...)
		c.Metadata.CryptoInfo = &ci
	}
	return c
}

// New builds a fresh origin envelope with a random id and the given
// sequence number; callers fill Payload/Topic/Priority afterward.
func New(sourceNode, topic string, priority Priority, seq uint64) Envelope {
	return Envelope{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Priority:  priority,
		Topic:     topic,
		Metadata: Metadata{
			SourceNode:     sourceNode,
			SequenceNumber: seq,
			QoSClass:       "default",
		},
	}
}
