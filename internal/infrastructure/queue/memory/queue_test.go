package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestGetPreservesFIFOOrder(t *testing.T) {
	q := New()
	q.Put("a")
	q.Put("b")
	q.Put("c")

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.Get(time.Second)
		if !ok {
			t.Fatalf("expected item %q, queue timed out", want)
		}
		if got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
		q.Done()
	}
}

func TestGetTimesOutOnEmptyQueue(t *testing.T) {
	q := New()

	start := time.Now()
	_, ok := q.Get(50 * time.Millisecond)
	if ok {
		t.Fatalf("expected timeout on empty queue")
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("Get returned too early after %v", elapsed)
	}
}

func TestGetWakesOnPutDuringWait(t *testing.T) {
	q := New()

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Put("late")
	}()

	got, ok := q.Get(2 * time.Second)
	if !ok || got != "late" {
		t.Fatalf("expected late item, got %q ok=%v", got, ok)
	}
}

func TestConcurrentProducersLoseNothing(t *testing.T) {
	q := New()
	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Put(fmt.Sprintf("p%d-%d", p, i))
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[string]bool, producers*perProducer)
	for i := 0; i < producers*perProducer; i++ {
		got, ok := q.Get(time.Second)
		if !ok {
			t.Fatalf("queue drained early at %d items", i)
		}
		if seen[got] {
			t.Fatalf("duplicate item %q", got)
		}
		seen[got] = true
		q.Done()
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, len=%d", q.Len())
	}
}

func TestJoinWaitsForAcknowledgement(t *testing.T) {
	q := New()
	q.Put("one")

	got, ok := q.Get(time.Second)
	if !ok || got != "one" {
		t.Fatalf("unexpected get result %q ok=%v", got, ok)
	}

	joined := make(chan struct{})
	go func() {
		q.Join()
		close(joined)
	}()

	select {
	case <-joined:
		t.Fatalf("Join returned before Done")
	case <-time.After(30 * time.Millisecond):
	}

	q.Done()
	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatalf("Join did not return after Done")
	}
}
