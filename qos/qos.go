// Package qos implements the priority shaper from SPEC_FULL.md §4.6:
// four strict-priority queues (P0..P3), each gated by its own token
// bucket, with tail-drop on overflow and optional per-topic policy
// overrides. Grounded on
// original_source/crates/aria-telemetry/src/qos.rs (QoSShaper/
// PriorityQueue/TokenBucket), with the hand-rolled refill-on-read
// TokenBucket replaced by golang.org/x/time/rate.Limiter (syncthing
// depends on golang.org/x/time already) and VecDeque replaced by
// ring.Ring[envelope.Envelope].
package qos

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aria-robotics/telemetry/envelope"
	"github.com/aria-robotics/telemetry/ring"
)

// Policy configures one priority level's bucket and queue bound.
type Policy struct {
	MaxRatePerSec float64
	BurstSize     int
	MaxQueueDepth int
}

// DefaultPolicy matches the original's "default policy for each
// priority": 1000/s rate, burst of 100, queue depth of 1000.
var DefaultPolicy = Policy{MaxRatePerSec: 1000, BurstSize: 100, MaxQueueDepth: 1000}

type priorityQueue struct {
	mu         sync.Mutex
	queue      *ring.Ring[envelope.Envelope]
	bucket     *rate.Limiter
	maxDepth   int
	appliedPol string // topic whose Policy last reconfigured bucket/maxDepth
}

// Shaper holds one priorityQueue per envelope.Priority level plus
// optional per-topic policy overrides.
type Shaper struct {
	queues   [4]*priorityQueue
	mu       sync.RWMutex
	policies map[string]Policy
}

// New constructs a Shaper with DefaultPolicy applied to every
// priority level.
func New() *Shaper {
	s := &Shaper{policies: make(map[string]Policy)}
	for p := envelope.P0; p <= envelope.P3; p++ {
		s.queues[p] = newPriorityQueue(DefaultPolicy)
	}
	return s
}

func newPriorityQueue(pol Policy) *priorityQueue {
	return &priorityQueue{
		queue:    ring.New[envelope.Envelope](pol.MaxQueueDepth),
		bucket:   rate.NewLimiter(rate.Limit(pol.MaxRatePerSec), pol.BurstSize),
		maxDepth: pol.MaxQueueDepth,
	}
}

// SetPolicy registers pol as topic's override; it is applied by that
// topic's next Enqueue (no queue is rebuilt). Per SPEC_FULL.md §4.6 this
// governs topic-level overrides layered on top of the per-priority
// default queues; the override takes effect for subsequently enqueued
// envelopes of that topic's own priority level.
func (s *Shaper) SetPolicy(topic string, pol Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[topic] = pol
}

func (s *Shaper) policyFor(topic string, priority envelope.Priority) Policy {
	s.mu.RLock()
	pol, ok := s.policies[topic]
	s.mu.RUnlock()
	if ok {
		return pol
	}
	return DefaultPolicy
}

// Enqueue appends e to its priority's queue, applying tail-drop of
// the oldest entry if the queue is already at MaxQueueDepth. The
// queues are per-priority rather than per-topic (following the
// original's shape), so when e.Topic carries a registered override
// its bucket becomes that priority level's active bucket from this
// call on, until a different topic's override is applied. The depth
// checked for tail-drop is the enqueued topic's own MaxQueueDepth
// (its override, or DefaultPolicy's).
func (s *Shaper) Enqueue(e envelope.Envelope) {
	pq := s.queues[e.Priority]
	pol := s.policyFor(e.Topic, e.Priority)

	pq.mu.Lock()
	defer pq.mu.Unlock()
	if e.Topic != "" && e.Topic != pq.appliedPol {
		if _, overridden := s.lookupPolicy(e.Topic); overridden {
			pq.bucket = rate.NewLimiter(rate.Limit(pol.MaxRatePerSec), pol.BurstSize)
			pq.maxDepth = pol.MaxQueueDepth
			pq.appliedPol = e.Topic
		}
	}
	if pq.queue.Len() >= pol.MaxQueueDepth {
		pq.queue.Pop()
	}
	pq.queue.Push(e)
}

func (s *Shaper) lookupPolicy(topic string) (Policy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pol, ok := s.policies[topic]
	return pol, ok
}

// Dequeue scans priorities P0 through P3 in strict order, returning
// the head of the first priority whose queue is non-empty and whose
// token bucket currently has a token available. It returns
// (envelope.Envelope{}, false) if no priority currently qualifies.
func (s *Shaper) Dequeue() (envelope.Envelope, bool) {
	for _, pq := range s.queues {
		pq.mu.Lock()
		if pq.queue.Empty() {
			pq.mu.Unlock()
			continue
		}
		if !pq.bucket.Allow() {
			pq.mu.Unlock()
			continue
		}
		e, ok := pq.queue.Pop()
		pq.mu.Unlock()
		if ok {
			return e, true
		}
	}
	return envelope.Envelope{}, false
}

// CanSend reports whether priority currently has any queued envelope,
// independent of bucket state.
func (s *Shaper) CanSend(priority envelope.Priority) bool {
	pq := s.queues[priority]
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return !pq.queue.Empty()
}

// Depth returns the current queue length for priority.
func (s *Shaper) Depth(priority envelope.Priority) int {
	pq := s.queues[priority]
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return pq.queue.Len()
}

// WaitDequeue blocks until a qualifying envelope is available or
// until timeout elapses, polling at a short fixed interval — the
// caller-facing equivalent of the original's "immediate dequeue for
// simplicity" shape, adapted into a bounded wait rather than a busy
// spin so it is safe to call from a single-shot RPC handler.
func (s *Shaper) WaitDequeue(timeout time.Duration) (envelope.Envelope, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if e, ok := s.Dequeue(); ok {
			return e, true
		}
		if time.Now().After(deadline) {
			return envelope.Envelope{}, false
		}
		time.Sleep(time.Millisecond)
	}
}
