package event

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/fluxorio/carwash/pkg/station"
)

func TestPublisher_StationRun(t *testing.T) {
	bus := NewBus(nil)
	var c collector
	if _, err := bus.Subscribe("test", 0, c.handle); err != nil {
		t.Fatal(err)
	}

	s, err := station.New(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	pub := NewPublisher(bus)
	if err := pub.Attach(s); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	run, err := s.Start(station.Fixed(0))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := s.AddArrival(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "car serviced", func() bool { return s.ServicedCount() == 1 })

	if err := s.Reset(context.Background()); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := bus.Close(ctx); err != nil {
		t.Fatal(err)
	}

	kinds := make(map[Kind]int)
	var last uint64
	for _, e := range c.snapshot() {
		kinds[e.Kind]++
		if e.Seq <= last {
			t.Errorf("seq %d after %d, want strictly increasing", e.Seq, last)
		}
		last = e.Seq
		if e.ID == "" {
			t.Errorf("%s event has no id", e.Kind)
		}
		if e.Kind != KindReset && e.Run != run.ID.String() {
			t.Errorf("%s event run = %q, want %s", e.Kind, e.Run, run.ID)
		}
	}
	for _, k := range []Kind{KindStarted, KindArrives, KindEntersQueue, KindLogin,
		KindBeginsService, KindFinishesService, KindPumpCancelled, KindStopped, KindReset} {
		if kinds[k] != 1 {
			t.Errorf("%s events = %d, want 1", k, kinds[k])
		}
	}
}

func TestPublisher_CancellationsCarryIDs(t *testing.T) {
	bus := NewBus(nil)
	var c collector
	if _, err := bus.Subscribe("test", 0, c.handle); err != nil {
		t.Fatal(err)
	}

	s, err := station.New(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := NewPublisher(bus).Attach(s); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	if _, err := s.Start(station.Fixed(time.Hour)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.AddArrival(); err != nil {
			t.Fatal(err)
		}
	}
	// One car in the bay, one queued, one blocked on space.
	waitFor(t, "the lot to saturate", func() bool {
		return s.InService() == 1 && s.WaitingCount() == 1 && s.Pending() == 1
	})
	if err := s.Reset(context.Background()); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := bus.Close(ctx); err != nil {
		t.Fatal(err)
	}

	var cars, pumps int
	for _, e := range c.snapshot() {
		switch e.Kind {
		case KindArrivalCancelled:
			cars++
			if e.Car < 1 || e.Car > 3 || e.Pump != 0 {
				t.Errorf("arrival cancelled event car = %d pump = %d", e.Car, e.Pump)
			}
			if want := fmt.Sprintf("C%d ", e.Car); !strings.HasPrefix(e.Message, want) {
				t.Errorf("arrival cancelled message %q does not name C%d", e.Message, e.Car)
			}
		case KindPumpCancelled:
			pumps++
			if e.Pump != 1 || e.Car != 0 {
				t.Errorf("pump cancelled event pump = %d car = %d, want pump 1", e.Pump, e.Car)
			}
			if e.Message != "Pump 1 shutting down..." {
				t.Errorf("pump cancelled message = %q", e.Message)
			}
		}
	}
	if cars != 1 || pumps != 1 {
		t.Errorf("cancellations = %d cars, %d pumps, want 1 and 1", cars, pumps)
	}
}
