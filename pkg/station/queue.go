package station

import (
	"context"
	"sync/atomic"

	"github.com/fluxorio/carwash/pkg/core/concurrency"
)

// waitingArea is the FIFO of car ids. push, pop and clear must run with the
// lot mutex held; size is readable at any time.
type waitingArea struct {
	cars []int
	size atomic.Int64
}

func (w *waitingArea) push(car int) {
	w.cars = append(w.cars, car)
	w.size.Store(int64(len(w.cars)))
}

func (w *waitingArea) pop() (int, bool) {
	if len(w.cars) == 0 {
		return 0, false
	}
	car := w.cars[0]
	w.cars = w.cars[1:]
	w.size.Store(int64(len(w.cars)))
	return car, true
}

func (w *waitingArea) clear() {
	w.cars = nil
	w.size.Store(0)
}

func (w *waitingArea) len() int {
	return int(w.size.Load())
}

func (w *waitingArea) list() []int {
	return append([]int(nil), w.cars...)
}

// lot is the shared state borrowed by every car and pump.
type lot struct {
	queue *waitingArea
	mutex *concurrency.CountingResource
	space *concurrency.CountingResource
	items *concurrency.CountingResource
	bays  *concurrency.CountingResource
}

func newLot(capacity, pumps int) lot {
	return lot{
		queue: &waitingArea{},
		mutex: concurrency.NewCountingResource("mutex", 1, 1),
		space: concurrency.NewCountingResource("space", capacity, capacity),
		items: concurrency.NewCountingResource("items", capacity, 0),
		bays:  concurrency.NewCountingResource("bays", pumps, pumps),
	}
}

// lock takes the queue mutex. It is held only across non-blocking queue
// operations, so taking it is not a cancellation point.
func (l lot) lock() {
	_ = l.mutex.Acquire(context.Background())
}

func (l lot) unlock() {
	l.mutex.Release()
}

func (l lot) reset(capacity, pumps int) {
	l.queue.clear()
	l.mutex.Reset(1, 1)
	l.space.Reset(capacity, capacity)
	l.items.Reset(capacity, 0)
	l.bays.Reset(pumps, pumps)
}
