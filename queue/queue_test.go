package queue

import (
	"testing"
	"time"
)

func TestPriorityOrdering(t *testing.T) {
	q := New[string](3)
	q.Put("low", 2)
	q.Put("high", 0)
	q.Put("mid", 1)

	for _, want := range []string{"high", "mid", "low"} {
		got, ok := q.Take()
		if !ok || got != want {
			t.Fatalf("want %q, got %q (ok=%v)", want, got, ok)
		}
	}
}

func TestTakeBlocksUntilPut(t *testing.T) {
	q := New[int](1)
	result := make(chan int, 1)
	go func() {
		v, _ := q.Take()
		result <- v
	}()

	select {
	case <-result:
		t.Fatalf("Take returned before any Put")
	case <-time.After(20 * time.Millisecond):
	}

	q.Put(42, 0)
	select {
	case v := <-result:
		if v != 42 {
			t.Fatalf("expected 42, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("Take never woke up after Put")
	}
}

func TestClearDegradesToPrefetchWithoutLoss(t *testing.T) {
	q := New[string](2)
	q.Put("a", 0)
	q.Put("b", 1)
	q.Clear()

	if n := q.Len(); n != 2 {
		t.Fatalf("expected 2 items preserved across Clear, got %d", n)
	}

	// New frame's high-priority item must drain before the degraded ones.
	q.Put("fresh", 0)
	got, _ := q.Take()
	if got != "fresh" {
		t.Fatalf("expected fresh high-priority item first, got %q", got)
	}

	remaining := map[string]bool{}
	for i := 0; i < 2; i++ {
		v, ok := q.Take()
		if !ok {
			t.Fatalf("expected prefetch items to still be present")
		}
		remaining[v] = true
	}
	if !remaining["a"] || !remaining["b"] {
		t.Fatalf("Clear must not discard items, got %v", remaining)
	}
}

func TestCloseUnblocksTake(t *testing.T) {
	q := New[int](1)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Take()
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case ok := <-done:
		if ok {
			t.Fatalf("expected Take to report !ok after Close on empty queue")
		}
	case <-time.After(time.Second):
		t.Fatalf("Close did not unblock pending Take")
	}
}
