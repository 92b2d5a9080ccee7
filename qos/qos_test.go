package qos

import (
	"testing"

	"github.com/aria-robotics/telemetry/envelope"
)

func makeEnvelope(priority envelope.Priority, topic string, seq uint64) envelope.Envelope {
	e := envelope.New("robot-1", topic, priority, seq)
	return e
}

func TestPriorityOrdering(t *testing.T) {
	s := New()
	s.Enqueue(makeEnvelope(envelope.P3, "t", 1))
	s.Enqueue(makeEnvelope(envelope.P0, "t", 2))
	s.Enqueue(makeEnvelope(envelope.P2, "t", 3))

	first, ok := s.Dequeue()
	if !ok {
		t.Fatal("expected a dequeued envelope")
	}
	if first.Priority != envelope.P0 {
		t.Fatalf("first dequeued priority = %v, want P0", first.Priority)
	}
}

func TestDequeueOrderAcrossAllFourPriorities(t *testing.T) {
	s := New()
	s.Enqueue(makeEnvelope(envelope.P2, "t", 1))
	s.Enqueue(makeEnvelope(envelope.P1, "t", 2))
	s.Enqueue(makeEnvelope(envelope.P3, "t", 3))
	s.Enqueue(makeEnvelope(envelope.P0, "t", 4))

	wantOrder := []envelope.Priority{envelope.P0, envelope.P1, envelope.P2, envelope.P3}
	for i, want := range wantOrder {
		got, ok := s.Dequeue()
		if !ok {
			t.Fatalf("dequeue %d: expected an envelope", i)
		}
		if got.Priority != want {
			t.Fatalf("dequeue %d priority = %v, want %v", i, got.Priority, want)
		}
	}
	if _, ok := s.Dequeue(); ok {
		t.Fatal("expected no more envelopes")
	}
}

func TestTailDropOnOverflow(t *testing.T) {
	s := New()
	s.SetPolicy("t", Policy{MaxRatePerSec: 1000, BurstSize: 1000, MaxQueueDepth: 3})

	for i := uint64(0); i < 5; i++ {
		s.Enqueue(makeEnvelope(envelope.P1, "t", i))
	}
	if got := s.Depth(envelope.P1); got != 3 {
		t.Fatalf("depth after overflow = %d, want 3", got)
	}

	// Oldest entries (seq 0, 1) should have been dropped; seq 2,3,4 remain.
	first, ok := s.Dequeue()
	if !ok {
		t.Fatal("expected an envelope")
	}
	if first.Metadata.SequenceNumber != 2 {
		t.Fatalf("oldest remaining seq = %d, want 2 (tail-dropped 0 and 1)", first.Metadata.SequenceNumber)
	}
}

func TestBucketBoundsBurstRate(t *testing.T) {
	s := New()
	s.SetPolicy("limited", Policy{MaxRatePerSec: 5, BurstSize: 2, MaxQueueDepth: 100})

	for i := uint64(0); i < 10; i++ {
		s.Enqueue(makeEnvelope(envelope.P0, "limited", i))
	}

	dequeued := 0
	for {
		if _, ok := s.Dequeue(); !ok {
			break
		}
		dequeued++
	}
	if dequeued > 2 {
		t.Fatalf("dequeued %d envelopes with burst size 2, want at most 2 in one immediate pass", dequeued)
	}
	if dequeued == 0 {
		t.Fatal("expected at least the initial burst to dequeue")
	}
}

func TestCanSendReflectsQueueState(t *testing.T) {
	s := New()
	if s.CanSend(envelope.P0) {
		t.Fatal("CanSend should be false for an empty queue")
	}
	s.Enqueue(makeEnvelope(envelope.P0, "t", 1))
	if !s.CanSend(envelope.P0) {
		t.Fatal("CanSend should be true once an envelope is queued")
	}
}
