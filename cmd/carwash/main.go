// Command carwash runs the car-wash station simulation with its control API,
// event stream and optional journal, NATS and tracing sinks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/fluxorio/carwash/pkg/config"
	"github.com/fluxorio/carwash/pkg/event"
	"github.com/fluxorio/carwash/pkg/journal"
	"github.com/fluxorio/carwash/pkg/logging"
	"github.com/fluxorio/carwash/pkg/observability/prometheus"
	"github.com/fluxorio/carwash/pkg/observability/tracing"
	"github.com/fluxorio/carwash/pkg/station"
	"github.com/fluxorio/carwash/pkg/web"
	"github.com/fluxorio/carwash/pkg/web/control"
	"github.com/fluxorio/carwash/pkg/web/middleware/auth"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "YAML or JSON config file")
	envFiles := flag.String("env", "setup.env,.env", "comma separated .env files, missing ones are skipped")
	printConfig := flag.String("print-config", "", "print the effective config as yaml or json and exit")
	flag.Parse()

	if err := config.LoadDotEnv(strings.Split(*envFiles, ",")...); err != nil {
		log.Fatalf("Failed to load env files: %v", err)
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *printConfig != "" {
		if err := config.Write(os.Stdout, config.Format(*printConfig), cfg); err != nil {
			log.Fatalf("Failed to print config: %v", err)
		}
		return
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("carwash stopped with error", "error", err)
		os.Exit(1)
	}
}

// app holds everything run has to shut down.
type app struct {
	logger   *slog.Logger
	station  *station.Station
	bus      *event.Bus
	tp       *sdktrace.TracerProvider
	journal  *journal.Journal
	nats     *event.NATSForwarder
	control  *control.Server
	stream   *http.Server
	serveErr chan error
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	a, err := setup(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.shutdown()

	if cfg.Arrivals.Count > 0 {
		if _, err := a.station.Start(cfg.Station.Service.Duration()); err != nil {
			return fmt.Errorf("start demo run: %w", err)
		}
		go driveArrivals(ctx, a.station, cfg.Arrivals.Count, stagger(cfg.Arrivals), logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutting down gracefully...")
		return nil
	case err := <-a.serveErr:
		return err
	}
}

// setup builds every component. On error it shuts down whatever it already
// opened and returns a nil app.
func setup(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger, serveErr: make(chan error, 2)}
	if err := a.build(ctx, cfg); err != nil {
		a.shutdown()
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context, cfg config.Config) (err error) {
	logger := a.logger

	a.station, err = station.New(cfg.Station.WaitingCapacity, cfg.Station.Pumps,
		station.WithLogger(logger),
		station.WithResetTimeout(cfg.Station.ResetTimeout),
	)
	if err != nil {
		return err
	}

	a.bus = event.NewBus(logger)
	if err := event.NewPublisher(a.bus).Attach(a.station); err != nil {
		return err
	}
	if _, err := a.bus.Subscribe("log", 0, event.LogHandler(logger)); err != nil {
		return err
	}

	metrics := prometheus.NewMetrics(nil, a.station)
	if _, err := a.bus.Subscribe("metrics", 0, metrics.Handle); err != nil {
		return err
	}

	a.tp, err = tracing.NewProvider(ctx, tracing.Config{
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: "carwash",
	})
	if err != nil {
		return err
	}
	if a.tp != nil {
		if _, err := a.bus.Subscribe("tracing", 0, tracing.New().Handle); err != nil {
			return err
		}
		logger.Info("tracing enabled", "exporter", cfg.Tracing.Exporter)
	}

	if cfg.Journal.Driver != "" {
		a.journal, err = journal.Open(ctx, journal.DefaultPoolConfig(cfg.Journal.Driver, cfg.Journal.DSN))
		if err != nil {
			return err
		}
		if _, err := a.bus.Subscribe("journal", 0, a.journal.Handle); err != nil {
			return err
		}
		logger.Info("event journal enabled", "driver", cfg.Journal.Driver)
	}

	if cfg.NATS.URL != "" {
		a.nats, err = event.NewNATSForwarder(event.NATSConfig{
			URL:    cfg.NATS.URL,
			Prefix: cfg.NATS.Prefix,
			Name:   "carwash",
		})
		if err != nil {
			return err
		}
		if _, err := a.bus.Subscribe("nats", 0, a.nats.Handle); err != nil {
			return err
		}
		logger.Info("forwarding events to NATS", "url", cfg.NATS.URL, "subject", a.nats.Subject("*"))
	}

	if cfg.HTTP.Addr != "" {
		operators, err := auth.ParseOperators(cfg.HTTP.Operators)
		if err != nil {
			return err
		}
		a.control = control.NewServer(a.station, control.Config{
			Service:      cfg.Station.Service.Duration(),
			JWTSecret:    cfg.HTTP.JWTSecret,
			Operators:    operators,
			TokenTTL:     cfg.HTTP.TokenTTL,
			ArrivalRate:  cfg.HTTP.ArrivalRate,
			ArrivalBurst: cfg.HTTP.ArrivalBurst,
			Metrics:      metrics,
			Logger:       logger,
		})
		go func() {
			if err := a.control.ListenAndServe(cfg.HTTP.Addr); err != nil {
				a.serveErr <- fmt.Errorf("control API: %w", err)
			}
		}()
	}

	if cfg.HTTP.StreamAddr != "" {
		a.stream = &http.Server{
			Addr:              cfg.HTTP.StreamAddr,
			Handler:           web.NewEventStream(a.bus, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("event stream listening", "addr", cfg.HTTP.StreamAddr)
			if err := a.stream.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.serveErr <- fmt.Errorf("event stream: %w", err)
			}
		}()
	}

	return nil
}

// shutdown stops the station first so every abandon and cancel event still
// reaches the sinks, then closes the sinks.
func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.control != nil {
		if err := a.control.Shutdown(ctx); err != nil {
			a.logger.Error("control API shutdown failed", "error", err)
		}
	}
	if a.station != nil {
		if err := a.station.Reset(ctx); err != nil {
			a.logger.Error("station reset failed", "error", err)
		}
	}
	if a.stream != nil {
		// Hijacked websocket connections end when the bus closes below.
		if err := a.stream.Shutdown(ctx); err != nil {
			a.logger.Error("event stream shutdown failed", "error", err)
		}
	}
	if a.bus != nil {
		if err := a.bus.Close(ctx); err != nil {
			a.logger.Error("event bus close failed", "error", err)
		}
	}
	if a.nats != nil {
		if err := a.nats.Close(ctx); err != nil {
			a.logger.Error("NATS close failed", "error", err)
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Error("journal close failed", "error", err)
		}
	}
	if a.tp != nil {
		if err := a.tp.Shutdown(ctx); err != nil {
			a.logger.Error("tracer provider shutdown failed", "error", err)
		}
	}
	a.logger.Info("Application stopped")
}

// stagger returns the delay before each demo arrival.
func stagger(cfg config.ArrivalsConfig) func() time.Duration {
	lo, hi := cfg.StaggerMin, cfg.StaggerMax
	return func() time.Duration {
		if hi <= lo {
			return lo
		}
		return lo + rand.N(hi-lo+1)
	}
}

// driveArrivals adds count cars, pausing next() between them, until the
// station stops or ctx is done.
func driveArrivals(ctx context.Context, s *station.Station, count int, next func() time.Duration, logger *slog.Logger) int {
	added := 0
	for added < count {
		if _, err := s.AddArrival(); err != nil {
			logger.Info("demo traffic ended", "added", added, "reason", err)
			return added
		}
		added++
		if added == count {
			break
		}

		timer := time.NewTimer(next())
		select {
		case <-ctx.Done():
			timer.Stop()
			return added
		case <-timer.C:
		}
	}
	logger.Info("demo traffic complete", "added", added)
	return added
}
