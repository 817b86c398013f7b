package station

import (
	"time"

	"github.com/google/uuid"
)

// ArrivalObserver receives the events of every car.
type ArrivalObserver interface {
	OnArrives(car int)
	OnEntersQueue(car int)
	OnCancelled(message string)
}

// ServiceObserver receives the events of every pump.
type ServiceObserver interface {
	OnLogin(pump, car int)
	OnBeginsService(pump, car int)
	OnFinishesService(pump, car int)
	OnCancelled(message string)
}

// LifecycleObserver is notified of station lifecycle changes.
// Callbacks run while the station holds its lifecycle lock: they may read
// counters but must not call Start, Stop, Reset, Configure, AddArrival,
// Waiting or Units.
type LifecycleObserver interface {
	OnStarted(run Run)
	OnStopped(run Run)
	OnReset()
}

// AbandonObserver is notified when a stopped pump drops a car it had
// already taken out of the queue.
type AbandonObserver interface {
	OnAbandoned(pump, car int)
}

// CancelObserver receives cancellations with the id of the unit that left.
// The message is the same text ArrivalObserver and ServiceObserver get.
type CancelObserver interface {
	OnCarCancelled(car int, message string)
	OnPumpCancelled(pump int, message string)
}

// Run describes one Start..Stop session.
type Run struct {
	ID              uuid.UUID
	WaitingCapacity int
	Pumps           int
	Service         ServiceDuration
	Started         time.Time
}

// observers is an immutable fan-out list; Observe swaps in a new copy.
type observers struct {
	arrivals  []ArrivalObserver
	services  []ServiceObserver
	lifecycle []LifecycleObserver
	abandons  []AbandonObserver
	cancels   []CancelObserver
}

func (o *observers) with(obs any) (*observers, bool) {
	next := &observers{
		arrivals:  append([]ArrivalObserver(nil), o.arrivals...),
		services:  append([]ServiceObserver(nil), o.services...),
		lifecycle: append([]LifecycleObserver(nil), o.lifecycle...),
		abandons:  append([]AbandonObserver(nil), o.abandons...),
		cancels:   append([]CancelObserver(nil), o.cancels...),
	}

	matched := false
	if a, ok := obs.(ArrivalObserver); ok {
		next.arrivals = append(next.arrivals, a)
		matched = true
	}
	if s, ok := obs.(ServiceObserver); ok {
		next.services = append(next.services, s)
		matched = true
	}
	if l, ok := obs.(LifecycleObserver); ok {
		next.lifecycle = append(next.lifecycle, l)
		matched = true
	}
	if a, ok := obs.(AbandonObserver); ok {
		next.abandons = append(next.abandons, a)
		matched = true
	}
	if c, ok := obs.(CancelObserver); ok {
		next.cancels = append(next.cancels, c)
		matched = true
	}
	return next, matched
}
