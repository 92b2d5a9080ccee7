// Package ccem implements channel conditioning and error mitigation
// per SPEC_FULL.md §4.7: a TX send-rate smoother, an RX reorder
// buffer, and a clock drift compensator. Grounded on
// original_source/crates/aria-telemetry/src/ccem.rs
// (TxConditioner/RxDeJitter/DriftCompensator).
package ccem

import (
	"sort"
	"sync"
	"time"

	"github.com/aria-robotics/telemetry/envelope"
	"github.com/aria-robotics/telemetry/ring"
)

// TxConditioner enforces a minimum inter-send gap, queuing submitted
// envelopes that arrive inside the smoothing window and admitting the
// oldest queued one (FIFO) once the window has elapsed.
type TxConditioner struct {
	mu              sync.Mutex
	smoothingWindow time.Duration
	lastSend        time.Time
	hasSent         bool
	queue           *ring.Ring[envelope.Envelope]
}

// NewTxConditioner returns a TxConditioner with the given smoothing
// window.
func NewTxConditioner(smoothingWindow time.Duration) *TxConditioner {
	return &TxConditioner{
		smoothingWindow: smoothingWindow,
		queue:           ring.New[envelope.Envelope](8),
	}
}

// SetSmoothingWindow replaces the minimum inter-send gap applied by
// subsequent Condition calls, for link-health-driven rate back-off.
func (c *TxConditioner) SetSmoothingWindow(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.smoothingWindow = d
}

// Condition submits e. If less than smoothingWindow has elapsed since
// the last admitted send, e is queued and Condition returns
// (zero, false). Otherwise the send clock resets and Condition
// admits the oldest queued envelope if any (pushing e to the back of
// the queue first), or e itself if the queue was empty.
func (c *TxConditioner) Condition(e envelope.Envelope) (envelope.Envelope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.hasSent && now.Sub(c.lastSend) < c.smoothingWindow {
		c.queue.Push(e)
		return envelope.Envelope{}, false
	}

	c.lastSend = now
	c.hasSent = true

	if queued, ok := c.queue.Pop(); ok {
		c.queue.Push(e)
		return queued, true
	}
	return e, true
}

// RxDeJitter reorders arriving envelopes by
// Metadata.SequenceNumber, holding a bounded sorted buffer and
// releasing a consecutive run starting at next_sequence once it is
// available. next_sequence starts at zero and only ever advances as
// consecutive runs are released, matching
// original_source/crates/aria-telemetry/src/ccem.rs's
// RxDeJitter::new().
type RxDeJitter struct {
	mu           sync.Mutex
	bufferSize   int
	buffer       []bufEntry
	nextSequence uint64
}

type bufEntry struct {
	seq uint64
	env envelope.Envelope
}

// NewRxDeJitter returns an RxDeJitter bounded to bufferSize entries,
// with next_sequence starting at zero.
func NewRxDeJitter(bufferSize int) *RxDeJitter {
	return &RxDeJitter{bufferSize: bufferSize}
}

// Add inserts e in sorted position by sequence number, evicting the
// oldest (lowest-sequence) entry if the buffer exceeds bufferSize,
// then emits every consecutive run at the head of the buffer starting
// at next_sequence. Duplicates (same sequence already buffered) are
// discarded. Returns the in-order envelopes ready for delivery, which
// may be empty.
func (d *RxDeJitter) Add(e envelope.Envelope) []envelope.Envelope {
	d.mu.Lock()
	defer d.mu.Unlock()

	seq := e.Metadata.SequenceNumber

	pos := sort.Search(len(d.buffer), func(i int) bool { return d.buffer[i].seq >= seq })
	if pos < len(d.buffer) && d.buffer[pos].seq == seq {
		// duplicate: discard
	} else {
		d.buffer = append(d.buffer, bufEntry{})
		copy(d.buffer[pos+1:], d.buffer[pos:])
		d.buffer[pos] = bufEntry{seq: seq, env: e}
	}

	if len(d.buffer) > d.bufferSize {
		d.buffer = d.buffer[1:]
	}

	var out []envelope.Envelope
	for len(d.buffer) > 0 && d.buffer[0].seq == d.nextSequence {
		out = append(out, d.buffer[0].env)
		d.buffer = d.buffer[1:]
		d.nextSequence++
	}
	return out
}

// DriftCompensator maintains a rolling clock offset estimate via
// exponential moving average (alpha = 0.1, the reference value) and
// applies it to timestamps.
type DriftCompensator struct {
	mu          sync.Mutex
	clockOffset time.Duration
}

// NewDriftCompensator returns a DriftCompensator with zero offset.
func NewDriftCompensator() *DriftCompensator {
	return &DriftCompensator{}
}

// Compensate returns t adjusted by the current clock offset estimate.
func (d *DriftCompensator) Compensate(t time.Time) time.Time {
	d.mu.Lock()
	offset := d.clockOffset
	d.mu.Unlock()
	return t.Add(offset)
}

// UpdateOffset folds a freshly measured offset into the running
// estimate: offset = 0.1*measured + 0.9*offset.
func (d *DriftCompensator) UpdateOffset(measured time.Duration) {
	const alpha = 0.1
	d.mu.Lock()
	defer d.mu.Unlock()
	newNs := alpha*float64(measured) + (1-alpha)*float64(d.clockOffset)
	d.clockOffset = time.Duration(newNs)
}
