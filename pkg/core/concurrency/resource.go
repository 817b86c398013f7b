package concurrency

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// CountingResource is a counting semaphore with a blocking, cancellable
// Acquire and a non-blocking Release.
//
// Capacity is the most permits the resource will ever hold. Releasing a
// permit that was never acquired is a programming error and panics.
// Waiters are woken in FIFO order, one per Release.
type CountingResource struct {
	name     string
	capacity atomic.Int64
	permits  atomic.Int64
	sem      atomic.Pointer[semaphore.Weighted]
}

// NewCountingResource creates a resource holding initial of capacity permits.
func NewCountingResource(name string, capacity, initial int) *CountingResource {
	r := &CountingResource{name: name}
	r.Reset(capacity, initial)
	return r
}

// Acquire blocks until a permit is available and takes it.
// If ctx is done first it returns ctx.Err() and the permit count is unchanged.
func (r *CountingResource) Acquire(ctx context.Context) error {
	if err := r.sem.Load().Acquire(ctx, 1); err != nil {
		return err
	}
	r.permits.Add(-1)
	return nil
}

// tryAcquire takes a permit without blocking and reports whether it did.
func (r *CountingResource) tryAcquire() bool {
	if !r.sem.Load().TryAcquire(1) {
		return false
	}
	r.permits.Add(-1)
	return true
}

// Release returns one permit and wakes the longest waiting acquirer, if any.
func (r *CountingResource) Release() {
	// The counter goes up first so Available never dips below zero when a
	// woken acquirer decrements it.
	r.permits.Add(1)
	r.sem.Load().Release(1)
}

// Available is a racy snapshot of the free permits. Diagnostics only.
func (r *CountingResource) Available() int {
	return int(r.permits.Load())
}

// Capacity returns the configured capacity.
func (r *CountingResource) Capacity() int {
	return int(r.capacity.Load())
}

// Name returns the resource name.
func (r *CountingResource) Name() string {
	return r.name
}

// Reset replaces the permit state: capacity permits in total, initial of them free.
// It must only be called while nothing is blocked in Acquire or holding a permit.
func (r *CountingResource) Reset(capacity, initial int) {
	if capacity < 0 {
		capacity = 0
	}
	if initial < 0 {
		initial = 0
	}
	if initial > capacity {
		capacity = initial
	}

	sem := semaphore.NewWeighted(int64(capacity))
	if held := int64(capacity - initial); held > 0 {
		// Cannot fail: the semaphore is fresh and held <= capacity.
		sem.TryAcquire(held)
	}

	r.capacity.Store(int64(capacity))
	r.permits.Store(int64(initial))
	r.sem.Store(sem)
}

// String implements fmt.Stringer.
func (r *CountingResource) String() string {
	return fmt.Sprintf("%s(%d/%d)", r.name, r.Available(), r.Capacity())
}
