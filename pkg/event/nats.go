package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig configures the NATS event forwarder.
type NATSConfig struct {
	// URL is the NATS server URL. Default nats.DefaultURL.
	URL string

	// Prefix is prepended to every subject. Default "carwash".
	Prefix string

	// Name is an optional NATS connection name.
	Name string
}

// NATSForwarder publishes events to <prefix>.events.<kind>.
type NATSForwarder struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSForwarder connects to NATS.
func NewNATSForwarder(cfg NATSConfig) (*NATSForwarder, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "carwash"
	}

	nc, err := nats.Connect(url, func(o *nats.Options) error {
		if cfg.Name != "" {
			o.Name = cfg.Name
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("event: connect nats %s: %w", url, err)
	}
	return &NATSForwarder{nc: nc, prefix: prefix}, nil
}

// Subject returns the subject events of kind are published on.
func (f *NATSForwarder) Subject(kind Kind) string {
	return f.prefix + ".events." + string(kind)
}

// Handle implements Handler.
func (f *NATSForwarder) Handle(_ context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event %d: %w", e.Seq, err)
	}

	msg := &nats.Msg{
		Subject: f.Subject(e.Kind),
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set("Nats-Msg-Id", e.ID)
	if e.Run != "" {
		msg.Header.Set("Carwash-Run", e.Run)
	}
	return f.nc.PublishMsg(msg)
}

// Close flushes pending messages and closes the connection.
func (f *NATSForwarder) Close(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := f.nc.FlushTimeout(time.Until(deadline)); err != nil {
			f.nc.Close()
			return fmt.Errorf("event: flush nats: %w", err)
		}
	} else if err := f.nc.Flush(); err != nil {
		f.nc.Close()
		return fmt.Errorf("event: flush nats: %w", err)
	}
	f.nc.Close()
	return nil
}
