package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/fluxorio/carwash/pkg/config"
	"github.com/fluxorio/carwash/pkg/station"
)

func TestStagger(t *testing.T) {
	tests := []struct {
		name   string
		lo, hi time.Duration
	}{
		{"range", 5 * time.Millisecond, 10 * time.Millisecond},
		{"fixed", 3 * time.Millisecond, 3 * time.Millisecond},
		{"inverted falls back to min", 4 * time.Millisecond, time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := stagger(config.ArrivalsConfig{StaggerMin: tt.lo, StaggerMax: tt.hi})
			for i := 0; i < 100; i++ {
				d := next()
				if d < tt.lo || (tt.hi > tt.lo && d > tt.hi) || (tt.hi <= tt.lo && d != tt.lo) {
					t.Fatalf("stagger() = %s, outside [%s, %s]", d, tt.lo, tt.hi)
				}
			}
		})
	}
}

func TestDriveArrivals(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := station.New(10, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Reset(context.Background())

	if got := driveArrivals(context.Background(), s, 3, func() time.Duration { return 0 }, logger); got != 0 {
		t.Errorf("driveArrivals() on stopped station added %d cars, want 0", got)
	}

	if _, err := s.Start(station.Fixed(0)); err != nil {
		t.Fatal(err)
	}
	if got := driveArrivals(context.Background(), s, 5, func() time.Duration { return time.Millisecond }, logger); got != 5 {
		t.Errorf("driveArrivals() added %d cars, want 5", got)
	}
	if s.ArrivalCount() != 5 {
		t.Errorf("ArrivalCount() = %d, want 5", s.ArrivalCount())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := driveArrivals(ctx, s, 5, func() time.Duration { return time.Hour }, logger); got != 1 {
		t.Errorf("driveArrivals() with cancelled ctx added %d cars, want 1", got)
	}
}

func TestSetup_FailureClosesWhatWasOpened(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown tracing exporter", func(c *config.Config) { c.Tracing.Exporter = "bogus" }},
		{"journal cannot open", func(c *config.Config) {
			c.Journal.Driver = "sqlite3"
			c.Journal.DSN = filepath.Join(t.TempDir(), "missing", "dir", "carwash.db")
		}},
		{"nats unreachable", func(c *config.Config) { c.NATS.URL = "nats://127.0.0.1:1" }},
		{"bad operator entry", func(c *config.Config) {
			c.HTTP.Addr = "127.0.0.1:0"
			c.HTTP.JWTSecret = "secret"
			c.HTTP.Operators = []string{"alice"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.HTTP.Addr = ""
			cfg.HTTP.StreamAddr = ""
			tt.mutate(&cfg)

			var (
				a   *app
				err error
			)
			func() {
				defer func() {
					if r := recover(); r != nil {
						t.Fatalf("setup() panicked: %v", r)
					}
				}()
				a, err = setup(context.Background(), cfg, logger)
			}()
			if err == nil {
				a.shutdown()
				t.Fatal("setup() should fail")
			}
			if a != nil {
				t.Errorf("setup() returned an app alongside error %v", err)
			}
		})
	}
}

func TestSetup_Succeeds(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default()
	cfg.HTTP.Addr = ""
	cfg.HTTP.StreamAddr = ""
	cfg.Journal.Driver = "sqlite3"
	cfg.Journal.DSN = filepath.Join(t.TempDir(), "carwash.db")

	a, err := setup(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("setup() error = %v", err)
	}
	defer a.shutdown()

	if a.station == nil || a.bus == nil || a.journal == nil {
		t.Errorf("setup() left components unset: %+v", a)
	}
}
