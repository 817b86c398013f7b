package station

import (
	"context"
	"fmt"
	"time"
)

// pumpEvents is the slice of the station a pump reports to.
type pumpEvents interface {
	login(pump, car int)
	beginsService(pump, car int)
	finishesService(pump, car int)
	dropped(pump, car int)
	pumpCancelled(pump int, message string)
	unitExited(pump bool)
}

// Pump drains the waiting area and washes one car at a time in a bay until
// its context is cancelled.
type Pump struct {
	id       int
	duration ServiceDuration
	lot      lot
	events   pumpEvents
}

func newPump(id int, duration ServiceDuration, l lot, events pumpEvents) *Pump {
	return &Pump{id: id, duration: duration, lot: l, events: events}
}

// ID returns the pump number, 1..pumps.
func (p *Pump) ID() int { return p.id }

// Name implements concurrency.Task.
func (p *Pump) Name() string { return fmt.Sprintf("pump-%d", p.id) }

func (p *Pump) tag() string { return fmt.Sprintf("Pump %d", p.id) }

// Execute loops until ctx is cancelled.
func (p *Pump) Execute(ctx context.Context) (err error) {
	defer p.events.unitExited(true)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %v", p.Name(), r)
			p.events.pumpCancelled(p.id, fmt.Sprintf("%s encountered an error: %v", p.tag(), r))
		}
	}()

	for {
		if ctx.Err() != nil {
			return p.shutdown()
		}
		if err := p.lot.items.Acquire(ctx); err != nil {
			return p.shutdown()
		}

		car, ok := p.drain()
		if !ok {
			// Another pump won the race for this head; the permit is spent.
			continue
		}

		p.events.login(p.id, car)
		p.lot.space.Release()

		if err := p.wash(ctx, car); err != nil {
			p.events.dropped(p.id, car)
			return p.shutdown()
		}
	}
}

func (p *Pump) drain() (int, bool) {
	p.lot.lock()
	defer p.lot.unlock()
	return p.lot.queue.pop()
}

// wash occupies a bay for one service duration.
func (p *Pump) wash(ctx context.Context, car int) error {
	if err := p.lot.bays.Acquire(ctx); err != nil {
		return err
	}
	defer p.lot.bays.Release()

	p.events.beginsService(p.id, car)
	if err := hold(ctx, p.duration.Next()); err != nil {
		return err
	}
	p.events.finishesService(p.id, car)
	return nil
}

func (p *Pump) shutdown() error {
	p.events.pumpCancelled(p.id, fmt.Sprintf("%s shutting down...", p.tag()))
	return nil
}

func hold(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
