// Package tracing records each car's trip through the station as an
// OpenTelemetry span, with one span per run as their parent.
package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxorio/carwash/pkg/event"
)

// tracerName is the instrumentation scope name for station tracing.
const tracerName = "github.com/fluxorio/carwash"

// Tracer turns station events into spans. It is an event.Handler and must be
// fed from a single subscriber.
type Tracer struct {
	tracer trace.Tracer

	mu   sync.Mutex
	run  trace.Span
	runC context.Context
	cars map[int]trace.Span
}

// New returns a Tracer using the global TracerProvider.
func New() *Tracer {
	return NewWithTracer(otel.Tracer(tracerName))
}

// NewWithTracer returns a Tracer using the provided tracer.
func NewWithTracer(tracer trace.Tracer) *Tracer {
	return &Tracer{
		tracer: tracer,
		runC:   context.Background(),
		cars:   make(map[int]trace.Span),
	}
}

// Handle implements event.Handler.
func (t *Tracer) Handle(_ context.Context, e event.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	at := trace.WithTimestamp(e.Time)

	switch e.Kind {
	case event.KindStarted:
		t.runC, t.run = t.tracer.Start(context.Background(), "carwash.run", at,
			trace.WithAttributes(attribute.String("carwash.run.id", e.Run)),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		t.run.AddEvent(e.Message, at)

	case event.KindArrives:
		_, span := t.tracer.Start(t.runC, "carwash.car", at,
			trace.WithAttributes(
				attribute.Int("carwash.car.id", e.Car),
				attribute.String("carwash.run.id", e.Run),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		t.cars[e.Car] = span

	case event.KindEntersQueue:
		t.carEvent(e, at)

	case event.KindLogin, event.KindBeginsService:
		if span, ok := t.cars[e.Car]; ok {
			span.SetAttributes(attribute.Int("carwash.pump.id", e.Pump))
		}
		t.carEvent(e, at)

	case event.KindFinishesService:
		if span := t.carEvent(e, at); span != nil {
			span.SetStatus(codes.Ok, "")
			t.endCar(e.Car, at)
		}

	case event.KindArrivalCancelled:
		if span := t.carEvent(e, at); span != nil {
			span.SetStatus(codes.Error, e.Message)
			t.endCar(e.Car, at)
		}

	case event.KindAbandoned:
		if span := t.carEvent(e, at); span != nil {
			span.SetStatus(codes.Error, "abandoned by stopped pump")
			t.endCar(e.Car, at)
		}

	case event.KindPumpCancelled:
		if t.run != nil {
			t.run.AddEvent(e.Message, at)
		}

	case event.KindStopped:
		if t.run != nil {
			t.run.AddEvent("stopped", at)
		}

	case event.KindReset:
		for car, span := range t.cars {
			span.SetStatus(codes.Error, "station reset")
			span.End(at)
			delete(t.cars, car)
		}
		if t.run != nil {
			t.run.End(at)
			t.run = nil
			t.runC = context.Background()
		}
	}
	return nil
}

// Open returns the number of car spans not yet ended.
func (t *Tracer) Open() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cars)
}

func (t *Tracer) carEvent(e event.Event, at trace.SpanEventOption) trace.Span {
	span, ok := t.cars[e.Car]
	if !ok {
		return nil
	}
	var attrs []attribute.KeyValue
	if e.Pump != 0 {
		attrs = append(attrs, attribute.Int("carwash.pump.id", e.Pump))
	}
	if e.Message != "" {
		attrs = append(attrs, attribute.String("carwash.message", e.Message))
	}
	span.AddEvent(string(e.Kind), at, trace.WithAttributes(attrs...))
	return span
}

func (t *Tracer) endCar(car int, at trace.SpanEventOption) {
	t.cars[car].End(at)
	delete(t.cars, car)
}
