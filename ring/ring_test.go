package ring

import "testing"

func TestBasicOperations(t *testing.T) {
	r := New[int](4)

	if !r.Empty() {
		t.Error("a freshly created ring should be empty")
	}
	if r.Len() != 0 {
		t.Errorf("empty ring length = %d, want 0", r.Len())
	}

	r.Push(1)
	r.Push(2)
	r.Push(3)

	if r.Empty() {
		t.Error("ring should not be empty after Push")
	}
	if r.Len() != 3 {
		t.Errorf("ring length = %d, want 3", r.Len())
	}

	v, ok := r.Pop()
	if !ok || v != 1 {
		t.Errorf("Pop = (%d, %v), want (1, true)", v, ok)
	}
	if r.Len() != 2 {
		t.Errorf("ring length after Pop = %d, want 2", r.Len())
	}
}

func TestFullAndGrow(t *testing.T) {
	r := New[int](3)
	for i := 0; i < 3; i++ {
		r.Push(i)
	}
	if !r.Full() {
		t.Error("ring should be full after filling to capacity")
	}

	r.Push(99) // triggers grow
	if r.Len() != 4 {
		t.Errorf("ring length after grow-push = %d, want 4", r.Len())
	}

	for i, want := range []int{0, 1, 2, 99} {
		v, ok := r.Pop()
		if !ok || v != want {
			t.Fatalf("Pop %d = (%d, %v), want (%d, true)", i, v, ok, want)
		}
	}
}

func TestEmptyOperations(t *testing.T) {
	r := New[int](2)
	if _, ok := r.Pop(); ok {
		t.Error("Pop on an empty ring should report ok=false")
	}
	if _, ok := r.Peek(); ok {
		t.Error("Peek on an empty ring should report ok=false")
	}
	if r.Discard(5) != 0 {
		t.Error("Discard on an empty ring should discard nothing")
	}
}

func TestForEachAndForEachReverse(t *testing.T) {
	r := New[int](5)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	var forward []int
	r.ForEach(func(v *int) bool {
		forward = append(forward, *v)
		return true
	})
	want := []int{1, 2, 3, 4, 5}
	for i, v := range want {
		if forward[i] != v {
			t.Fatalf("ForEach[%d] = %d, want %d", i, forward[i], v)
		}
	}

	var reverse []int
	r.ForEachReverse(func(v *int) bool {
		reverse = append(reverse, *v)
		return true
	})
	for i, v := range []int{5, 4, 3, 2, 1} {
		if reverse[i] != v {
			t.Fatalf("ForEachReverse[%d] = %d, want %d", i, reverse[i], v)
		}
	}
}

func TestForEachStopsEarly(t *testing.T) {
	r := New[int](5)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	var seen []int
	r.ForEach(func(v *int) bool {
		seen = append(seen, *v)
		return *v < 3
	})
	if len(seen) != 3 {
		t.Fatalf("len(seen) = %d, want 3", len(seen))
	}
}

func TestDiscard(t *testing.T) {
	r := New[int](5)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	n := r.Discard(2)
	if n != 2 {
		t.Fatalf("Discard returned %d, want 2", n)
	}
	v, _ := r.Peek()
	if *v != 3 {
		t.Fatalf("head after Discard = %d, want 3", *v)
	}

	n = r.Discard(100)
	if n != 3 {
		t.Fatalf("Discard(100) on 3 remaining returned %d, want 3", n)
	}
	if !r.Empty() {
		t.Fatal("ring should be empty after discarding everything")
	}
}

func TestWraparound(t *testing.T) {
	r := New[int](3)
	r.Push(1)
	r.Push(2)
	r.Push(3)
	r.Pop()
	r.Pop()
	r.Push(4)
	r.Push(5)

	var got []int
	r.ForEach(func(v *int) bool {
		got = append(got, *v)
		return true
	})
	want := []int{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("ForEach length = %d, want %d", len(got), len(want))
	}
	for i, v := range want {
		if got[i] != v {
			t.Fatalf("ForEach[%d] = %d, want %d", i, got[i], v)
		}
	}
}

func TestStringType(t *testing.T) {
	r := New[string](2)
	r.Push("a")
	r.Push("b")
	r.Push("c") // triggers grow

	var got []string
	r.ForEach(func(v *string) bool {
		got = append(got, *v)
		return true
	})
	want := []string{"a", "b", "c"}
	for i, v := range want {
		if got[i] != v {
			t.Fatalf("ForEach[%d] = %q, want %q", i, got[i], v)
		}
	}
}
