// Package journal persists station events to a SQL database so runs can be
// inspected after the fact.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/fluxorio/carwash/pkg/event"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
)

// PoolConfig configures the journal's connection pool.
type PoolConfig struct {
	// DSN is the database connection string
	DSN string

	// DriverName is one of "sqlite3", "pgx" or "postgres"
	DriverName string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum amount of time a connection may be reused
	ConnMaxLifetime time.Duration

	// ConnMaxIdleTime is the maximum amount of time a connection may be idle
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig returns a small pool suited to a single event writer.
func DefaultPoolConfig(driverName, dsn string) PoolConfig {
	cfg := PoolConfig{
		DSN:             dsn,
		DriverName:      driverName,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}
	if driverName == DriverSQLite {
		// One writer avoids "database is locked".
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
	}
	return cfg
}

// Error represents a journal error
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Journal appends events to the carwash_events table.
type Journal struct {
	db     *sql.DB
	config PoolConfig

	insert string
	byRun  string
}

// Open validates config, connects and creates the schema if needed.
func Open(ctx context.Context, config PoolConfig) (*Journal, error) {
	if err := validate(config); err != nil {
		return nil, err
	}

	db, err := sql.Open(config.DriverName, config.DSN)
	if err != nil {
		return nil, &Error{Code: "OPEN_FAILED", Message: "open " + config.DriverName, Err: err}
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &Error{Code: "PING_FAILED", Message: "ping " + config.DriverName, Err: err}
	}

	j := &Journal{
		db:     db,
		config: config,
		insert: rebind(config.DriverName,
			`INSERT INTO carwash_events (id, seq, run, kind, pump, car, message, at_ns) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		byRun: rebind(config.DriverName,
			`SELECT id, seq, run, kind, pump, car, message, at_ns FROM carwash_events WHERE run = ? ORDER BY seq`),
	}
	if err := j.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func validate(config PoolConfig) error {
	switch {
	case config.DSN == "":
		return &Error{Code: "INVALID_CONFIG", Message: "DSN cannot be empty"}
	case config.DriverName != DriverSQLite && config.DriverName != DriverPgx && config.DriverName != DriverPostgres:
		return &Error{Code: "INVALID_CONFIG", Message: fmt.Sprintf("unsupported driver %q", config.DriverName)}
	case config.MaxOpenConns <= 0:
		return &Error{Code: "INVALID_CONFIG", Message: "MaxOpenConns must be positive"}
	case config.MaxIdleConns < 0:
		return &Error{Code: "INVALID_CONFIG", Message: "MaxIdleConns cannot be negative"}
	case config.MaxIdleConns > config.MaxOpenConns:
		return &Error{Code: "INVALID_CONFIG", Message: "MaxIdleConns cannot exceed MaxOpenConns"}
	case config.ConnMaxLifetime < 0 || config.ConnMaxIdleTime < 0:
		return &Error{Code: "INVALID_CONFIG", Message: "connection lifetimes cannot be negative"}
	}
	return nil
}

const schema = `CREATE TABLE IF NOT EXISTS carwash_events (
	id      TEXT PRIMARY KEY,
	seq     BIGINT NOT NULL,
	run     TEXT NOT NULL,
	kind    TEXT NOT NULL,
	pump    INTEGER NOT NULL,
	car     INTEGER NOT NULL,
	message TEXT NOT NULL,
	at_ns   BIGINT NOT NULL
)`

const runIndex = `CREATE INDEX IF NOT EXISTS carwash_events_run ON carwash_events (run, seq)`

func (j *Journal) migrate(ctx context.Context) error {
	for _, stmt := range []string{schema, runIndex} {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return &Error{Code: "MIGRATE_FAILED", Message: "create carwash_events", Err: err}
		}
	}
	return nil
}

// Append stores e.
func (j *Journal) Append(ctx context.Context, e event.Event) error {
	_, err := j.db.ExecContext(ctx, j.insert,
		e.ID, int64(e.Seq), e.Run, string(e.Kind), e.Pump, e.Car, e.Message, e.Time.UnixNano())
	if err != nil {
		return &Error{Code: "APPEND_FAILED", Message: fmt.Sprintf("append event %d", e.Seq), Err: err}
	}
	return nil
}

// Handle implements event.Handler.
func (j *Journal) Handle(ctx context.Context, e event.Event) error {
	return j.Append(ctx, e)
}

// Run returns the events of one run in sequence order.
func (j *Journal) Run(ctx context.Context, run string) ([]event.Event, error) {
	rows, err := j.db.QueryContext(ctx, j.byRun, run)
	if err != nil {
		return nil, &Error{Code: "QUERY_FAILED", Message: "query run " + run, Err: err}
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			e    event.Event
			seq  int64
			kind string
			at   int64
		)
		if err := rows.Scan(&e.ID, &seq, &e.Run, &kind, &e.Pump, &e.Car, &e.Message, &at); err != nil {
			return nil, &Error{Code: "QUERY_FAILED", Message: "scan event", Err: err}
		}
		e.Seq = uint64(seq)
		e.Kind = event.Kind(kind)
		e.Time = time.Unix(0, at)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Code: "QUERY_FAILED", Message: "query run " + run, Err: err}
	}
	return events, nil
}

// Stats returns pool statistics.
func (j *Journal) Stats() sql.DBStats {
	return j.db.Stats()
}

// Close closes the connection pool.
func (j *Journal) Close() error {
	return j.db.Close()
}

// rebind rewrites ? placeholders to $n for the postgres drivers.
func rebind(driverName, query string) string {
	if driverName == DriverSQLite {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
