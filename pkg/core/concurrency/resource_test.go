package concurrency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCountingResource_AcquireRelease(t *testing.T) {
	r := NewCountingResource("bays", 2, 2)
	ctx := context.Background()

	if r.Available() != 2 || r.Capacity() != 2 {
		t.Fatalf("new resource = %s, want bays(2/2)", r)
	}

	if err := r.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := r.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if r.Available() != 0 {
		t.Errorf("Available() = %d, want 0", r.Available())
	}
	if r.tryAcquire() {
		t.Error("tryAcquire() on exhausted resource should fail")
	}

	r.Release()
	if r.Available() != 1 {
		t.Errorf("Available() after Release() = %d, want 1", r.Available())
	}
	if !r.tryAcquire() {
		t.Error("tryAcquire() after Release() should succeed")
	}
}

func TestCountingResource_InitialZero(t *testing.T) {
	r := NewCountingResource("items", 3, 0)

	if r.tryAcquire() {
		t.Fatal("tryAcquire() on a resource created with no free permits should fail")
	}

	acquired := make(chan struct{})
	go func() {
		if err := r.Acquire(context.Background()); err == nil {
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("Acquire() returned before any Release()")
	case <-time.After(20 * time.Millisecond):
	}

	r.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Acquire() was not woken by Release()")
	}
}

func TestCountingResource_AcquireCancelledLeavesPermits(t *testing.T) {
	r := NewCountingResource("space", 1, 0)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Acquire(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Acquire() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled Acquire() did not return")
	}

	if r.Available() != 0 {
		t.Errorf("Available() = %d, want 0 after cancelled Acquire()", r.Available())
	}

	// The permit released afterwards is not lost to the abandoned waiter
	r.Release()
	if !r.tryAcquire() {
		t.Error("tryAcquire() should take the released permit")
	}
}

func TestCountingResource_ZeroCapacityBlocksUntilCancelled(t *testing.T) {
	r := NewCountingResource("space", 0, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := r.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() on zero-capacity resource error = %v, want DeadlineExceeded", err)
	}
}

func TestCountingResource_NoLostWakeups(t *testing.T) {
	const waiters = 50
	r := NewCountingResource("items", waiters, 0)

	var woken atomic.Int32
	var wg sync.WaitGroup
	wg.Add(waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			defer wg.Done()
			if err := r.Acquire(context.Background()); err == nil {
				woken.Add(1)
			}
		}()
	}
	for i := 0; i < waiters; i++ {
		go r.Release()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("only %d of %d waiters woke up", woken.Load(), waiters)
	}
	if r.Available() != 0 {
		t.Errorf("Available() = %d, want 0", r.Available())
	}
}

func TestCountingResource_Reset(t *testing.T) {
	r := NewCountingResource("space", 4, 4)
	r.tryAcquire()
	r.tryAcquire()

	r.Reset(4, 4)
	if r.Available() != 4 {
		t.Errorf("Available() after Reset() = %d, want 4", r.Available())
	}

	r.Reset(2, 0)
	if r.Available() != 0 || r.Capacity() != 2 {
		t.Errorf("after Reset(2, 0) = %s, want space(0/2)", r)
	}

	r.Reset(1, 3)
	if r.Capacity() != 3 {
		t.Errorf("Reset() with initial > capacity should grow capacity, got %d", r.Capacity())
	}
}

func TestCountingResource_ReleaseBeyondCapacityPanics(t *testing.T) {
	r := NewCountingResource("mutex", 1, 1)

	defer func() {
		if recover() == nil {
			t.Error("Release() beyond capacity should panic")
		}
	}()
	r.Release()
}
