package station

import (
	"context"
	"fmt"
)

// carEvents is the slice of the station a car reports to.
type carEvents interface {
	arrives(car int)
	entersQueue(car int)
	carCancelled(car int, message string)
	unitExited(pump bool)
}

// Car is a one-shot arrival: it waits for room in the waiting area, joins the
// queue and signals the pumps. It never retries and is never reused.
type Car struct {
	id     int
	lot    lot
	events carEvents
}

func newCar(id int, l lot, events carEvents) *Car {
	return &Car{id: id, lot: l, events: events}
}

// ID returns the car's sequential identifier.
func (c *Car) ID() int { return c.id }

// Name implements concurrency.Task.
func (c *Car) Name() string { return fmt.Sprintf("car-%d", c.id) }

func (c *Car) tag() string { return fmt.Sprintf("C%d", c.id) }

// Execute runs the arrival protocol once.
func (c *Car) Execute(ctx context.Context) (err error) {
	defer c.events.unitExited(false)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %v", c.Name(), r)
			c.events.carCancelled(c.id, fmt.Sprintf("%s encountered an error: %v", c.tag(), r))
		}
	}()

	c.events.arrives(c.id)

	if err := c.lot.space.Acquire(ctx); err != nil {
		// Nothing taken, nothing to undo.
		c.events.carCancelled(c.id, fmt.Sprintf("%s interrupted and leaving the station...", c.tag()))
		return nil
	}

	c.lot.lock()
	c.lot.queue.push(c.id)
	c.lot.unlock()

	c.events.entersQueue(c.id)
	c.lot.items.Release()
	return nil
}
