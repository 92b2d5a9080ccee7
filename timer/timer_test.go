package timer

import (
	"sync"
	"testing"
	"time"
)

func TestPutRunsImmediatelyWhenDeadlinePassed(t *testing.T) {
	tm := New(2)
	defer tm.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	tm.Put(func() { wg.Done() }, time.Now().Add(-time.Second))

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task with a past deadline did not run")
	}
}

func TestPutRunsAtFutureDeadline(t *testing.T) {
	tm := New(2)
	defer tm.Close()

	start := time.Now()
	var ran time.Time
	var mu sync.Mutex
	done := make(chan struct{})

	tm.Put(func() {
		mu.Lock()
		ran = time.Now()
		mu.Unlock()
		close(done)
	}, start.Add(30*time.Millisecond))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduled task never ran")
	}

	mu.Lock()
	elapsed := ran.Sub(start)
	mu.Unlock()
	if elapsed < 25*time.Millisecond {
		t.Fatalf("task ran after %v, expected to wait at least ~30ms", elapsed)
	}
}

func TestPutOrdersMultipleTasksByDeadline(t *testing.T) {
	tm := New(4)
	defer tm.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(3)

	now := time.Now()
	tm.Put(func() { mu.Lock(); order = append(order, 3); mu.Unlock(); wg.Done() }, now.Add(60*time.Millisecond))
	tm.Put(func() { mu.Lock(); order = append(order, 1); mu.Unlock(); wg.Done() }, now.Add(20*time.Millisecond))
	tm.Put(func() { mu.Lock(); order = append(order, 2); mu.Unlock(); wg.Done() }, now.Add(40*time.Millisecond))

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not all scheduled tasks ran")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []int{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i, w := range want {
		if order[i] != w {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	tm := New(1)
	tm.Close()
	tm.Close() // must not panic
}
