package packetizer

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/aria-robotics/telemetry/envelope"
)

func makeEnvelope(size int) envelope.Envelope {
	e := envelope.New("robot-1", "sensors/lidar", envelope.P2, 1)
	e.Payload = make([]byte, size)
	rand.New(rand.NewSource(1)).Read(e.Payload)
	return e
}

func TestNoFragmentationUnderMTU(t *testing.T) {
	e := makeEnvelope(1000)
	frags, err := Fragment(e, 1400)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	if len(frags) != 1 {
		t.Fatalf("len(frags) = %d, want 1", len(frags))
	}
	if len(frags[0].Payload) != 1000 {
		t.Fatalf("payload len = %d, want 1000", len(frags[0].Payload))
	}
	if frags[0].Metadata.FragmentInfo != nil {
		t.Fatal("unfragmented envelope should carry no FragmentInfo")
	}
}

func TestFragmentSizes3000Over1400(t *testing.T) {
	e := makeEnvelope(3000)
	frags, err := Fragment(e, 1400)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	if len(frags) != 3 {
		t.Fatalf("len(frags) = %d, want 3", len(frags))
	}
	wantLens := []int{1400, 1400, 200}
	for i, want := range wantLens {
		if len(frags[i].Payload) != want {
			t.Fatalf("fragment %d payload len = %d, want %d", i, len(frags[i].Payload), want)
		}
	}
	for i, f := range frags {
		if f.Metadata.FragmentInfo == nil {
			t.Fatalf("fragment %d missing FragmentInfo", i)
		}
		if f.Metadata.FragmentInfo.CorrelationKey != e.ID {
			t.Fatalf("fragment %d correlation key = %v, want %v", i, f.Metadata.FragmentInfo.CorrelationKey, e.ID)
		}
		if f.Metadata.FragmentInfo.TotalFragments != 3 {
			t.Fatalf("fragment %d total fragments = %d, want 3", i, f.Metadata.FragmentInfo.TotalFragments)
		}
		if f.Metadata.FragmentInfo.FragmentID != uint32(i) {
			t.Fatalf("fragment %d id = %d, want %d", i, f.Metadata.FragmentInfo.FragmentID, i)
		}
	}
}

func TestFragmentRejectsNonPositiveMTU(t *testing.T) {
	e := makeEnvelope(10)
	if _, err := Fragment(e, 0); err == nil {
		t.Fatal("expected error for mtu=0")
	}
}

func TestDefragmentInOrder(t *testing.T) {
	original := makeEnvelope(3000)
	originalPayload := append([]byte(nil), original.Payload...)

	frags, err := Fragment(original, 1400)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}

	d := NewDefragmenter(10*time.Second, 0, nil)
	var complete *envelope.Envelope
	for i, f := range frags {
		got, done, err := d.Add(f)
		if err != nil {
			t.Fatalf("Add(%d): %v", i, err)
		}
		if i < len(frags)-1 {
			if done {
				t.Fatalf("Add(%d): expected incomplete, got done", i)
			}
		} else {
			if !done {
				t.Fatalf("Add(%d): expected done on last fragment", i)
			}
			complete = got
		}
	}
	if complete == nil {
		t.Fatal("never reassembled")
	}
	if !bytes.Equal(complete.Payload, originalPayload) {
		t.Fatal("reassembled payload does not match original")
	}
	if complete.Metadata.FragmentInfo != nil {
		t.Fatal("reassembled envelope should have FragmentInfo cleared")
	}
}

func TestDefragmentOutOfOrder(t *testing.T) {
	original := makeEnvelope(3000)
	originalPayload := append([]byte(nil), original.Payload...)

	frags, err := Fragment(original, 1400)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}

	d := NewDefragmenter(10*time.Second, 0, nil)

	if _, done, err := d.Add(frags[2]); err != nil || done {
		t.Fatalf("Add(frag2): done=%v err=%v", done, err)
	}
	if _, done, err := d.Add(frags[0]); err != nil || done {
		t.Fatalf("Add(frag0): done=%v err=%v", done, err)
	}
	got, done, err := d.Add(frags[1])
	if err != nil {
		t.Fatalf("Add(frag1): %v", err)
	}
	if !done {
		t.Fatal("expected completion after all three fragments arrived")
	}
	if !bytes.Equal(got.Payload, originalPayload) {
		t.Fatal("reassembled payload does not match original")
	}
}

func TestDuplicateFragmentIsIdempotent(t *testing.T) {
	original := makeEnvelope(3000)
	frags, err := Fragment(original, 1400)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}

	d := NewDefragmenter(10*time.Second, 0, nil)
	if _, _, err := d.Add(frags[0]); err != nil {
		t.Fatalf("Add(frag0): %v", err)
	}
	if _, _, err := d.Add(frags[0]); err != nil {
		t.Fatalf("Add(frag0) again: %v", err)
	}
	if _, done, err := d.Add(frags[1]); err != nil || done {
		t.Fatalf("Add(frag1): done=%v err=%v", done, err)
	}
	got, done, err := d.Add(frags[2])
	if err != nil || !done {
		t.Fatalf("Add(frag2): done=%v err=%v", done, err)
	}
	if len(got.Payload) != 3000 {
		t.Fatalf("payload len = %d, want 3000 (duplicate must not double-count)", len(got.Payload))
	}
}

func TestExpiredBufferIsEvicted(t *testing.T) {
	original := makeEnvelope(3000)
	frags, err := Fragment(original, 1400)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}

	d := NewDefragmenter(20*time.Millisecond, 0, nil)
	if _, _, err := d.Add(frags[0]); err != nil {
		t.Fatalf("Add(frag0): %v", err)
	}
	time.Sleep(60 * time.Millisecond)

	// A fresh Add for the remaining fragments should not complete since
	// the partial buffer was evicted and a new one starts from scratch.
	if _, done, err := d.Add(frags[1]); err != nil {
		t.Fatalf("Add(frag1): %v", err)
	} else if done {
		t.Fatal("expected incomplete buffer after expiry reset progress")
	}
}
