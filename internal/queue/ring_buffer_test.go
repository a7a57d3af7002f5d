package queue

import (
	"errors"
	"sync"
	"testing"
	"time"

	"soc-triage/internal/schema"
)

func testEnvelope(text string) *Envelope {
	return NewEnvelope(schema.RawEvent{"event": text})
}

func TestRingBufferPushPop(t *testing.T) {
	rb := NewRingBuffer(4)

	if err := rb.Push(testEnvelope("a")); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if got := rb.Len(); got != 1 {
		t.Errorf("Len = %d, want 1", got)
	}

	env, err := rb.Pop()
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if env.Raw["event"] != "a" {
		t.Errorf("event = %q, want a", env.Raw["event"])
	}
	if env.ID.String() == "" || env.ReceivedAt.IsZero() {
		t.Error("envelope not stamped")
	}

	if _, err := rb.Pop(); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("Pop on empty = %v, want ErrQueueEmpty", err)
	}
}

func TestRingBufferFIFOWrapAround(t *testing.T) {
	rb := NewRingBuffer(2)

	rb.Push(testEnvelope("a"))
	rb.Push(testEnvelope("b"))
	rb.Pop()
	rb.Push(testEnvelope("c"))

	for _, want := range []string{"b", "c"} {
		env, err := rb.Pop()
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if env.Raw["event"] != want {
			t.Errorf("event = %q, want %q", env.Raw["event"], want)
		}
	}
}

func TestRingBufferFull(t *testing.T) {
	rb := NewRingBuffer(1)

	rb.Push(testEnvelope("a"))

	if err := rb.Push(testEnvelope("b")); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Push on full = %v, want ErrQueueFull", err)
	}
	if got := rb.Metrics().Dropped; got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}
}

func TestRingBufferPopWithTimeout(t *testing.T) {
	t.Run("times out empty", func(t *testing.T) {
		rb := NewRingBuffer(4)

		start := time.Now()
		_, err := rb.PopWithTimeout(20 * time.Millisecond)

		if !errors.Is(err, ErrQueueEmpty) {
			t.Errorf("err = %v, want ErrQueueEmpty", err)
		}
		if time.Since(start) < 20*time.Millisecond {
			t.Error("returned before timeout")
		}
	})

	t.Run("woken by push", func(t *testing.T) {
		rb := NewRingBuffer(4)

		go func() {
			time.Sleep(10 * time.Millisecond)
			rb.Push(testEnvelope("late"))
		}()

		env, err := rb.PopWithTimeout(time.Second)
		if err != nil {
			t.Fatalf("PopWithTimeout: %v", err)
		}
		if env.Raw["event"] != "late" {
			t.Errorf("event = %q, want late", env.Raw["event"])
		}
	})
}

func TestRingBufferClose(t *testing.T) {
	rb := NewRingBuffer(4)
	rb.Push(testEnvelope("a"))
	rb.Close()

	if err := rb.Push(testEnvelope("b")); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Push after close = %v, want ErrQueueClosed", err)
	}

	// Draining is still allowed.
	if _, err := rb.Pop(); err != nil {
		t.Fatalf("Pop after close: %v", err)
	}
	if _, err := rb.Pop(); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Pop on drained closed queue = %v, want ErrQueueClosed", err)
	}

	if _, err := rb.PopWithTimeout(time.Second); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("PopWithTimeout on closed = %v, want ErrQueueClosed", err)
	}
}

func TestRingBufferConcurrent(t *testing.T) {
	rb := NewRingBuffer(1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rb.Push(testEnvelope("x"))
			}
		}()
	}
	wg.Wait()

	metrics := rb.Metrics()
	if metrics.Pushed != 500 {
		t.Errorf("Pushed = %d, want 500", metrics.Pushed)
	}
	if metrics.Depth != 500 {
		t.Errorf("Depth = %d, want 500", metrics.Depth)
	}
}
