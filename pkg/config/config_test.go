package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadYAML(t *testing.T) {
	yamlContent := `
station:
  waiting_capacity: 2
  pumps: 1
  service:
    min: 10ms
    max: 50ms
arrivals:
  count: 4
journal:
  driver: sqlite3
  dsn: /tmp/carwash.db
`
	path := createTempFile(t, "carwash.yaml", yamlContent)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Station.WaitingCapacity != 2 || cfg.Station.Pumps != 1 {
		t.Errorf("Station = %+v, want capacity 2, pumps 1", cfg.Station)
	}
	if got := cfg.Station.Service.Duration().String(); got != "10ms..50ms" {
		t.Errorf("Service.Duration() = %v, want 10ms..50ms", got)
	}
	// Defaults survive for keys the file does not set
	if cfg.Station.ResetTimeout != 5*time.Second {
		t.Errorf("ResetTimeout = %v, want default 5s", cfg.Station.ResetTimeout)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr = %v, want default :8080", cfg.HTTP.Addr)
	}
}

func TestLoadJSON(t *testing.T) {
	jsonContent := `{
  "station": {"waiting_capacity": 7, "pumps": 2, "service": {"fixed": 1000000}},
  "log": {"level": "debug", "format": "json"}
}`
	path := createTempFile(t, "carwash.json", jsonContent)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Station.WaitingCapacity != 7 {
		t.Errorf("WaitingCapacity = %v, want 7", cfg.Station.WaitingCapacity)
	}
	if cfg.Station.Service.Duration().Next() != time.Millisecond {
		t.Errorf("Service = %v, want 1ms", cfg.Station.Service.Duration())
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %v, want json", cfg.Log.Format)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := createTempFile(t, "carwash.yaml", "station:\n  pumps: 2\nnats:\n  url: nats://file:4222\n")

	t.Setenv("CARWASH_STATION_PUMPS", "6")
	t.Setenv("CARWASH_STATION_SERVICE_FIXED", "750ms")
	t.Setenv("CARWASH_HTTP_JWT_SECRET", "s3cret")
	t.Setenv("CARWASH_HTTP_ARRIVAL_RATE", "2.5")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	// Environment variables should override file values
	if cfg.Station.Pumps != 6 {
		t.Errorf("Pumps = %v, want 6", cfg.Station.Pumps)
	}
	if cfg.Station.Service.Fixed != 750*time.Millisecond {
		t.Errorf("Service.Fixed = %v, want 750ms", cfg.Station.Service.Fixed)
	}
	if cfg.HTTP.JWTSecret != "s3cret" || cfg.HTTP.ArrivalRate != 2.5 {
		t.Errorf("HTTP = %+v", cfg.HTTP)
	}
	// URL should remain from file (no env override)
	if cfg.NATS.URL != "nats://file:4222" {
		t.Errorf("NATS.URL = %v, want nats://file:4222", cfg.NATS.URL)
	}
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	for name, content := range map[string]string{
		"typo.yaml": "station:\n  pumpz: 2\n",
		"typo.json": `{"station": {"pumpz": 2}}`,
	} {
		path := createTempFile(t, name, content)
		if _, err := LoadConfig(path); err == nil || !strings.Contains(err.Error(), "pumpz") {
			t.Errorf("LoadConfig(%s) error = %v, want unknown key pumpz", name, err)
		}
	}

	empty := createTempFile(t, "empty.yaml", "")
	if _, err := LoadConfig(empty); err != nil {
		t.Errorf("LoadConfig(empty file) error = %v", err)
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Station.Service = ServiceConfig{Min: 10 * time.Millisecond, Max: 40 * time.Millisecond}
	cfg.HTTP.Operators = []string{"alice:$2a$10$hash"}

	for _, format := range []Format{FormatYAML, FormatJSON} {
		var buf strings.Builder
		if err := Write(&buf, format, cfg); err != nil {
			t.Fatalf("Write(%s) error = %v", format, err)
		}
		if format == FormatYAML && !strings.Contains(buf.String(), "max: 40ms") {
			t.Errorf("YAML output should render durations as strings:\n%s", buf.String())
		}

		got := Config{}
		if err := Decode(strings.NewReader(buf.String()), format, &got); err != nil {
			t.Fatalf("Decode(%s) error = %v", format, err)
		}
		if got.Station.Service != cfg.Station.Service || got.HTTP.Operators[0] != cfg.HTTP.Operators[0] {
			t.Errorf("%s round trip = %+v, want %+v", format, got.Station, cfg.Station)
		}
	}

	if err := Write(&strings.Builder{}, "toml", cfg); err == nil {
		t.Error("Write() with unknown format should fail")
	}
}

func TestApplyEnvOverrides_InvalidDuration(t *testing.T) {
	t.Setenv("CARWASH_STATION_RESET_TIMEOUT", "soon")

	cfg := Default()
	if err := ApplyEnvOverrides(EnvPrefix, &cfg); err == nil {
		t.Error("ApplyEnvOverrides should fail for an invalid duration")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "setup.env")
	if err := os.WriteFile(path, []byte("CARWASH_STATION_WAITING_CAPACITY=9\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CARWASH_STATION_WAITING_CAPACITY", "")
	os.Unsetenv("CARWASH_STATION_WAITING_CAPACITY")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Station.WaitingCapacity != 9 {
		t.Errorf("WaitingCapacity = %v, want 9 from env file", cfg.Station.WaitingCapacity)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative capacity", func(c *Config) { c.Station.WaitingCapacity = -1 }, "Station.WaitingCapacity"},
		{"no pumps", func(c *Config) { c.Station.Pumps = 0 }, "Station.Pumps"},
		{"negative service", func(c *Config) { c.Station.Service.Fixed = -time.Second }, "Station.Service.Fixed"},
		{"inverted range", func(c *Config) { c.Station.Service.Min, c.Station.Service.Max = time.Second, time.Millisecond }, "below min"},
		{"inverted stagger", func(c *Config) { c.Arrivals.StaggerMax = 0 }, "stagger_max"},
		{"unknown driver", func(c *Config) { c.Journal.Driver = "mysql" }, "Journal.Driver"},
		{"journal without dsn", func(c *Config) { c.Journal.Driver = "sqlite3" }, "journal.dsn"},
		{"zipkin without endpoint", func(c *Config) { c.Tracing.Exporter = "zipkin" }, "tracing.endpoint"},
		{"operators without secret", func(c *Config) { c.HTTP.Operators = []string{"alice:$2a$10$x"} }, "jwt_secret"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "Log.Level"},
		{"no log format", func(c *Config) { c.Log.Format = "" }, "Log.Format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.want)
			}
		})
	}

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() should be valid: %v", err)
	}
}

func createTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	return path
}
