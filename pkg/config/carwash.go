package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"

	"github.com/fluxorio/carwash/pkg/station"
)

// EnvPrefix prefixes every environment override, e.g. CARWASH_STATION_PUMPS.
const EnvPrefix = "CARWASH"

// Config is the carwash service configuration.
//
// Durations are strings ("1500ms") in YAML and env overrides, and integer
// nanoseconds in JSON.
type Config struct {
	Station  StationConfig  `yaml:"station" json:"station"`
	Arrivals ArrivalsConfig `yaml:"arrivals" json:"arrivals"`
	HTTP     HTTPConfig     `yaml:"http" json:"http"`
	Journal  JournalConfig  `yaml:"journal" json:"journal"`
	NATS     NATSConfig     `yaml:"nats" json:"nats"`
	Tracing  TracingConfig  `yaml:"tracing" json:"tracing"`
	Log      LogConfig      `yaml:"log" json:"log"`
}

type StationConfig struct {
	WaitingCapacity int           `yaml:"waiting_capacity" json:"waiting_capacity"`
	Pumps           int           `yaml:"pumps" json:"pumps"`
	Service         ServiceConfig `yaml:"service" json:"service"`
	ResetTimeout    time.Duration `yaml:"reset_timeout" json:"reset_timeout"`
}

// ServiceConfig is either a fixed duration or, when Max > 0, a uniform range.
type ServiceConfig struct {
	Fixed time.Duration `yaml:"fixed" json:"fixed"`
	Min   time.Duration `yaml:"min" json:"min"`
	Max   time.Duration `yaml:"max" json:"max"`
}

// Duration converts the config to a station.ServiceDuration.
func (c ServiceConfig) Duration() station.ServiceDuration {
	if c.Max > 0 {
		return station.Between(c.Min, c.Max)
	}
	return station.Fixed(c.Fixed)
}

// ArrivalsConfig drives the built-in demo traffic. Count 0 disables it.
type ArrivalsConfig struct {
	Count      int           `yaml:"count" json:"count"`
	StaggerMin time.Duration `yaml:"stagger_min" json:"stagger_min"`
	StaggerMax time.Duration `yaml:"stagger_max" json:"stagger_max"`
}

type HTTPConfig struct {
	// Addr serves the control API. Empty disables it.
	Addr string `yaml:"addr" json:"addr"`

	// StreamAddr serves the websocket event stream. Empty disables it.
	StreamAddr string `yaml:"stream_addr" json:"stream_addr"`

	// JWTSecret enables bearer-token auth on mutating endpoints.
	JWTSecret string `yaml:"jwt_secret" json:"jwt_secret"`

	// Operators are "name:bcrypt-hash" entries allowed to log in via POST /token.
	Operators []string      `yaml:"operators" json:"operators"`
	TokenTTL  time.Duration `yaml:"token_ttl" json:"token_ttl"`

	// ArrivalRate limits POST /arrivals, in cars per second. 0 disables the limit.
	ArrivalRate  float64 `yaml:"arrival_rate" json:"arrival_rate"`
	ArrivalBurst int     `yaml:"arrival_burst" json:"arrival_burst"`
}

// JournalConfig enables the SQL event journal when Driver is set.
type JournalConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

// NATSConfig enables event forwarding when URL is set.
type NATSConfig struct {
	URL    string `yaml:"url" json:"url"`
	Prefix string `yaml:"prefix" json:"prefix"`
}

type TracingConfig struct {
	Exporter string `yaml:"exporter" json:"exporter"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Station: StationConfig{
			WaitingCapacity: 5,
			Pumps:           3,
			Service:         ServiceConfig{Fixed: station.DefaultServiceDuration},
			ResetTimeout:    station.DefaultResetTimeout,
		},
		Arrivals: ArrivalsConfig{
			StaggerMin: 500 * time.Millisecond,
			StaggerMax: 2 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			StreamAddr:   ":8081",
			ArrivalRate:  20,
			ArrivalBurst: 5,
			TokenTTL:     time.Hour,
		},
		NATS:    NATSConfig{Prefix: "carwash"},
		Tracing: TracingConfig{Exporter: "none"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// LoadDotEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return nil
}

// LoadConfig builds the configuration: defaults, then path (if any), then
// CARWASH_* environment overrides, then validation.
func LoadConfig(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := Load(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnvOverrides(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to apply env overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	return Validate(c,
		RequiredFields("Log.Level", "Log.Format", "NATS.Prefix"),
		RangeValidator("Station.WaitingCapacity", 0, 1_000_000),
		RangeValidator("Station.Pumps", 1, 10_000),
		RangeValidator("Station.Service.Fixed", 0, float64(time.Hour)),
		RangeValidator("Station.Service.Min", 0, float64(time.Hour)),
		RangeValidator("Station.ResetTimeout", float64(time.Millisecond), float64(time.Hour)),
		RangeValidator("Arrivals.Count", 0, 1_000_000),
		RangeValidator("Arrivals.StaggerMin", 0, float64(time.Hour)),
		RangeValidator("HTTP.ArrivalRate", 0, 1_000_000),
		RangeValidator("HTTP.ArrivalBurst", 0, 1_000_000),
		OneOfValidator("Journal.Driver", "", "sqlite3", "pgx", "postgres"),
		OneOfValidator("Tracing.Exporter", "", "none", "stdout", "zipkin"),
		OneOfValidator("Log.Level", "debug", "info", "warn", "error"),
		OneOfValidator("Log.Format", "text", "json"),
		ValidatorFunc(func(interface{}) error {
			switch {
			case c.Station.Service.Max > 0 && c.Station.Service.Max < c.Station.Service.Min:
				return fmt.Errorf("station.service.max %s is below min %s", c.Station.Service.Max, c.Station.Service.Min)
			case c.Arrivals.StaggerMax < c.Arrivals.StaggerMin:
				return fmt.Errorf("arrivals.stagger_max %s is below stagger_min %s", c.Arrivals.StaggerMax, c.Arrivals.StaggerMin)
			case c.Journal.Driver != "" && c.Journal.DSN == "":
				return fmt.Errorf("journal.dsn is required for driver %s", c.Journal.Driver)
			case len(c.HTTP.Operators) > 0 && c.HTTP.JWTSecret == "":
				return fmt.Errorf("http.operators requires http.jwt_secret")
			case c.Tracing.Exporter == "zipkin" && c.Tracing.Endpoint == "":
				return fmt.Errorf("tracing.endpoint is required for the zipkin exporter")
			}
			return nil
		}),
	)
}
