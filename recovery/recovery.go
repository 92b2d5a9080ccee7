// Package recovery performs the residual integrity checks and loss
// bookkeeping described in SPEC_FULL.md §4.8/§4.10. Cryptographic
// verification itself is the crypto stage's job (cryptobox); this
// package checks what survives after that: known schema ids and
// metadata slot consistency, plus expected-vs-observed sequence
// tracking per (source, topic). Grounded on
// original_source/crates/aria-telemetry/src/recovery.rs
// (RecoveryManager).
package recovery

import (
	"sync"

	"github.com/aria-robotics/telemetry/codec"
	"github.com/aria-robotics/telemetry/envelope"
)

// Manager tracks the expected next sequence number per (source, topic)
// stream and one loss count across all streams, and validates
// incoming envelopes against residual invariants.
type Manager struct {
	registry *codec.Registry

	mu       sync.Mutex
	expected map[string]uint64
	lost     map[string]uint64
}

// NewManager returns a Manager that validates schema ids against
// registry.
func NewManager(registry *codec.Registry) *Manager {
	return &Manager{
		registry: registry,
		expected: make(map[string]uint64),
		lost:     make(map[string]uint64),
	}
}

// CheckIntegrity verifies e's schema id is registered and that at most
// one of FragmentInfo/FECInfo/CryptoInfo is non-nil. The pipeline calls
// it on a collapsed envelope whose stage-owned slots have all been
// cleared; a wire fragment of an FEC shard carries two (the original's comment
// promises checksum/signature verification; that work already
// happened in cryptobox, so what is left here is the residual
// structural invariant).
func (m *Manager) CheckIntegrity(e envelope.Envelope) (bool, error) {
	if _, err := m.registry.Lookup(e.SchemaID); err != nil {
		return false, err
	}

	populated := 0
	if e.Metadata.FragmentInfo != nil {
		populated++
	}
	if e.Metadata.FECInfo != nil {
		populated++
	}
	if e.Metadata.CryptoInfo != nil {
		populated++
	}
	if populated > 1 {
		return false, nil
	}
	return true, nil
}

// key identifies one ordered stream for loss tracking purposes.
func key(sourceNode, topic string) string {
	return sourceNode + "\x00" + topic
}

// Observe records the sequence number actually received for
// (sourceNode, topic); when seq skips past what was expected next it
// passes that gap to ConcealLoss and returns ConcealLoss's result
// (which is always nil). The first
// observation for a stream seeds its expectation rather than assuming
// sequence zero: this tracker only ever needs a baseline to diff
// against, not a delivery guarantee for sequences below it, so seeding
// from the first arrival is safe here even though ccem.RxDeJitter
// (which must actually deliver in order) cannot make the same choice.
func (m *Manager) Observe(sourceNode, topic string, seq uint64) []envelope.Envelope {
	m.mu.Lock()
	k := key(sourceNode, topic)
	expected, seen := m.expected[k]
	if !seen {
		m.expected[k] = seq + 1
		m.mu.Unlock()
		return nil
	}
	m.expected[k] = seq + 1
	m.mu.Unlock()

	if seq <= expected {
		return nil
	}
	return m.ConcealLoss(expected, seq)
}

// ConcealLoss records the gap between expected and received sequence
// numbers as lost and returns synthetic placeholder envelopes for
// downstream re-request or interpolation. Matching the reference
// implementation, it records the loss but emits no placeholders: the
// hook exists for callers that want to act on it, not for this
// package to fabricate data it cannot actually reconstruct.
func (m *Manager) ConcealLoss(expected, received uint64) []envelope.Envelope {
	if received <= expected {
		return nil
	}
	m.mu.Lock()
	// lost count keyed globally since expected/received alone carry no
	// stream identity; callers that need per-stream counts should
	// total LostCount() against their own Observe call sites.
	m.lost["_"] += received - expected
	m.mu.Unlock()
	return nil
}

// ObserveDroppedFragmentBuffer records a single lost envelope because
// its fragment buffer was evicted (TTL or capacity) before every
// fragment arrived, per spec.md's "dropped buffers are accounted as
// losses". sourceNode and topic are accepted for call-site context
// and future per-stream accounting but are not used for the global
// count, for the same reason ConcealLoss ignores stream identity.
func (m *Manager) ObserveDroppedFragmentBuffer(sourceNode, topic string, seq uint64) {
	m.mu.Lock()
	m.lost["_"]++
	m.mu.Unlock()
}

// LostCount returns the total number of sequence numbers recorded as
// lost across every stream observed so far.
func (m *Manager) LostCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total uint64
	for _, n := range m.lost {
		total += n
	}
	return total
}
