package storeforward

import (
	"context"
	"testing"

	"github.com/aria-robotics/telemetry/envelope"
)

func TestSendSpoolsWhenDisconnected(t *testing.T) {
	tr, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	e := envelope.New("robot-1", "telemetry/state", envelope.P1, 1)
	if err := tr.Send(context.Background(), e); err != nil {
		t.Fatalf("Send: %v", err)
	}

	pending, err := tr.Pending("robot-1", "telemetry/state")
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Pending = %d envelopes, want 1", len(pending))
	}
}

func TestConnectReplaysSpooledEnvelopesInOrder(t *testing.T) {
	tr, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	for _, seq := range []uint64{0, 1, 2} {
		e := envelope.New("robot-1", "telemetry/state", envelope.P1, seq)
		if err := tr.Send(context.Background(), e); err != nil {
			t.Fatalf("Send seq %d: %v", seq, err)
		}
	}

	var delivered []uint64
	tr.SetDeliverFn(func(e envelope.Envelope) error {
		delivered = append(delivered, e.Metadata.SequenceNumber)
		return nil
	})

	if err := tr.Connect(context.Background(), "peer"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	want := []uint64{0, 1, 2}
	if len(delivered) != len(want) {
		t.Fatalf("delivered = %v, want %v", delivered, want)
	}
	for i, w := range want {
		if delivered[i] != w {
			t.Fatalf("delivered[%d] = %d, want %d", i, delivered[i], w)
		}
	}

	pending, err := tr.Pending("robot-1", "telemetry/state")
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("Pending after successful replay = %d, want 0", len(pending))
	}
}

func TestFailedDeliveryLeavesEnvelopeSpooled(t *testing.T) {
	tr, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	tr.SetDeliverFn(func(envelope.Envelope) error { return context.DeadlineExceeded })

	e := envelope.New("robot-1", "telemetry/state", envelope.P1, 0)
	_ = tr.Connect(context.Background(), "peer")
	if err := tr.Send(context.Background(), e); err != nil {
		t.Fatalf("Send: %v", err)
	}

	pending, err := tr.Pending("robot-1", "telemetry/state")
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Pending = %d, want 1 (delivery failed, entry should remain)", len(pending))
	}
}

func TestDeliverIncomingInvokesOnReceive(t *testing.T) {
	tr, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	received := make(chan envelope.Envelope, 1)
	tr.OnReceive(func(e envelope.Envelope) { received <- e })

	e := envelope.New("robot-2", "cmd/ack", envelope.P0, 5)
	tr.DeliverIncoming(e)

	got := <-received
	if got.Metadata.SequenceNumber != 5 {
		t.Fatalf("received seq = %d, want 5", got.Metadata.SequenceNumber)
	}
}
