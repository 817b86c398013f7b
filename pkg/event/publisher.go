package event

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fluxorio/carwash/pkg/station"
)

// Publisher converts station callbacks into events on a Bus.
//
// Car and pump cancellations share a callback signature, so Publisher
// registers one small observer per interface instead of implementing them
// all on a single value. Cancellation events come from the CancelObserver,
// which carries the unit id.
type Publisher struct {
	bus *Bus
	seq atomic.Uint64
	run atomic.Pointer[string]
	now func() time.Time
}

// NewPublisher creates a publisher writing to bus.
func NewPublisher(bus *Bus) *Publisher {
	return &Publisher{bus: bus, now: time.Now}
}

// Attach registers the publisher's observers with s. s must be stopped.
func (p *Publisher) Attach(s *station.Station) error {
	for _, obs := range []any{
		arrivalObserver{p},
		serviceObserver{p},
		lifecycleObserver{p},
		abandonObserver{p},
		cancelObserver{p},
	} {
		if err := s.Observe(obs); err != nil {
			return fmt.Errorf("event: attach publisher: %w", err)
		}
	}
	return nil
}

// Seq returns the sequence number of the last published event.
func (p *Publisher) Seq() uint64 { return p.seq.Load() }

func (p *Publisher) publish(kind Kind, pump, car int, message string) {
	e := Event{
		ID:      uuid.NewString(),
		Seq:     p.seq.Add(1),
		Kind:    kind,
		Pump:    pump,
		Car:     car,
		Message: message,
		Time:    p.now(),
	}
	if run := p.run.Load(); run != nil {
		e.Run = *run
	}
	p.bus.Publish(e)
}

type arrivalObserver struct{ p *Publisher }

func (o arrivalObserver) OnArrives(car int)     { o.p.publish(KindArrives, 0, car, "") }
func (o arrivalObserver) OnEntersQueue(car int) { o.p.publish(KindEntersQueue, 0, car, "") }
func (o arrivalObserver) OnCancelled(string)    {}

type serviceObserver struct{ p *Publisher }

func (o serviceObserver) OnLogin(pump, car int) { o.p.publish(KindLogin, pump, car, "") }
func (o serviceObserver) OnBeginsService(pump, car int) {
	o.p.publish(KindBeginsService, pump, car, "")
}
func (o serviceObserver) OnFinishesService(pump, car int) {
	o.p.publish(KindFinishesService, pump, car, "")
}
func (o serviceObserver) OnCancelled(string) {}

type lifecycleObserver struct{ p *Publisher }

func (o lifecycleObserver) OnStarted(run station.Run) {
	id := run.ID.String()
	o.p.run.Store(&id)
	o.p.publish(KindStarted, 0, 0, fmt.Sprintf("station started: %d pumps, waiting area %d, service %s",
		run.Pumps, run.WaitingCapacity, run.Service))
}

func (o lifecycleObserver) OnStopped(run station.Run) {
	o.p.publish(KindStopped, 0, 0, "station stopped")
}

func (o lifecycleObserver) OnReset() {
	o.p.publish(KindReset, 0, 0, "")
	o.p.run.Store(nil)
}

type abandonObserver struct{ p *Publisher }

func (o abandonObserver) OnAbandoned(pump, car int) { o.p.publish(KindAbandoned, pump, car, "") }

type cancelObserver struct{ p *Publisher }

func (o cancelObserver) OnCarCancelled(car int, message string) {
	o.p.publish(KindArrivalCancelled, 0, car, message)
}

func (o cancelObserver) OnPumpCancelled(pump int, message string) {
	o.p.publish(KindPumpCancelled, pump, 0, message)
}
