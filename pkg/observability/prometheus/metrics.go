package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fluxorio/carwash/pkg/event"
	"github.com/fluxorio/carwash/pkg/station"
)

// Metrics holds the station's Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Station event metrics
	EventsTotal     *prometheus.CounterVec
	ServiceDuration prometheus.Histogram
	QueueWait       prometheus.Histogram

	// HTTP request metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	mu        sync.Mutex
	queued    map[int]time.Time // car -> entered queue
	servicing map[int]time.Time // car -> began service
}

// NewMetrics registers the station metrics on registry, plus gauges that
// read s directly at scrape time. A nil registry gets a fresh one.
func NewMetrics(registry *prometheus.Registry, s *station.Station) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,

		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carwash_events_total",
				Help: "Total number of station events by kind",
			},
			[]string{"kind"},
		),
		ServiceDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "carwash_service_duration_seconds",
				Help:    "Time a car spends in a bay",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		QueueWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "carwash_queue_wait_seconds",
				Help:    "Time between a car entering the queue and a pump logging it in",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carwash_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "carwash_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		queued:    make(map[int]time.Time),
		servicing: make(map[int]time.Time),
	}

	// Pre-create every kind so rates start at zero.
	for _, kind := range event.Kinds {
		m.EventsTotal.WithLabelValues(string(kind))
	}

	if s != nil {
		gauge := func(name, help string, read func() float64) {
			factory.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, read)
		}
		gauge("carwash_waiting_cars", "Cars currently in the waiting area",
			func() float64 { return float64(s.WaitingCount()) })
		gauge("carwash_waiting_capacity", "Size of the waiting area",
			func() float64 { return float64(s.WaitingCapacity()) })
		gauge("carwash_pending_arrivals", "Cars blocked waiting for room in the waiting area",
			func() float64 { return float64(s.Pending()) })
		gauge("carwash_in_service_cars", "Cars logged in at a pump",
			func() float64 { return float64(s.InService()) })
		gauge("carwash_pumps", "Configured number of pumps",
			func() float64 { return float64(s.Pumps()) })
		gauge("carwash_running", "1 while the station accepts arrivals",
			func() float64 {
				if s.IsRunning() {
					return 1
				}
				return 0
			})
	}

	return m
}

// Registry returns the registry the metrics live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handle implements event.Handler.
func (m *Metrics) Handle(_ context.Context, e event.Event) error {
	m.EventsTotal.WithLabelValues(string(e.Kind)).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()

	switch e.Kind {
	case event.KindEntersQueue:
		m.queued[e.Car] = e.Time
	case event.KindLogin:
		if t, ok := m.queued[e.Car]; ok {
			m.QueueWait.Observe(e.Time.Sub(t).Seconds())
			delete(m.queued, e.Car)
		}
	case event.KindBeginsService:
		m.servicing[e.Car] = e.Time
	case event.KindFinishesService:
		if t, ok := m.servicing[e.Car]; ok {
			m.ServiceDuration.Observe(e.Time.Sub(t).Seconds())
			delete(m.servicing, e.Car)
		}
	case event.KindAbandoned:
		delete(m.servicing, e.Car)
	case event.KindReset:
		// Car ids restart from 1.
		clear(m.queued)
		clear(m.servicing)
	}
	return nil
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
