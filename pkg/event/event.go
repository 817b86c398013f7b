// Package event turns station observer callbacks into a stream of
// sequenced, serializable events and fans them out to subscribers.
package event

import (
	"fmt"
	"time"
)

// Kind names an event type. Values are stable: they appear in journals,
// metrics labels and NATS subjects.
type Kind string

const (
	KindArrives          Kind = "arrives"
	KindEntersQueue      Kind = "enters_queue"
	KindArrivalCancelled Kind = "arrival_cancelled"
	KindLogin            Kind = "login"
	KindBeginsService    Kind = "begins_service"
	KindFinishesService  Kind = "finishes_service"
	KindAbandoned        Kind = "abandoned"
	KindPumpCancelled    Kind = "pump_cancelled"
	KindStarted          Kind = "started"
	KindStopped          Kind = "stopped"
	KindReset            Kind = "reset"
)

// Kinds lists every kind in lifecycle order.
var Kinds = []Kind{
	KindStarted,
	KindArrives,
	KindEntersQueue,
	KindArrivalCancelled,
	KindLogin,
	KindBeginsService,
	KindFinishesService,
	KindAbandoned,
	KindPumpCancelled,
	KindStopped,
	KindReset,
}

// Event is one observer callback. Car and Pump are zero when not applicable.
type Event struct {
	ID      string    `json:"id"`
	Seq     uint64    `json:"seq"`
	Run     string    `json:"run,omitempty"`
	Kind    Kind      `json:"kind"`
	Pump    int       `json:"pump,omitempty"`
	Car     int       `json:"car,omitempty"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// String renders the event as a station log line, e.g. "P1: C3 login".
func (e Event) String() string {
	switch e.Kind {
	case KindArrives:
		return fmt.Sprintf("C%d arrived", e.Car)
	case KindEntersQueue:
		return fmt.Sprintf("C%d entered the queue", e.Car)
	case KindLogin:
		return fmt.Sprintf("P%d: C%d login", e.Pump, e.Car)
	case KindBeginsService:
		return fmt.Sprintf("P%d: C%d begins service at Bay %d", e.Pump, e.Car, e.Pump)
	case KindFinishesService:
		return fmt.Sprintf("P%d: C%d finishes service", e.Pump, e.Car)
	case KindAbandoned:
		return fmt.Sprintf("P%d: C%d abandoned", e.Pump, e.Car)
	case KindArrivalCancelled, KindPumpCancelled, KindStarted, KindStopped:
		return e.Message
	case KindReset:
		return "station reset"
	}
	return string(e.Kind)
}

// IsCar reports whether the event belongs to a car's lifecycle.
func (e Event) IsCar() bool {
	return e.Car != 0
}
