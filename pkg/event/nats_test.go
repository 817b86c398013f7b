package event

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natssrv "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func runTestNATSServer(t *testing.T) *natssrv.Server {
	t.Helper()

	s, err := natssrv.NewServer(&natssrv.Options{Port: -1})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go s.Start()
	if !s.ReadyForConnections(5 * time.Second) {
		s.Shutdown()
		t.Fatalf("nats server not ready")
	}
	t.Cleanup(s.Shutdown)
	return s
}

func TestNATSForwarder_Handle(t *testing.T) {
	srv := runTestNATSServer(t)

	fwd, err := NewNATSForwarder(NATSConfig{URL: srv.ClientURL(), Prefix: "carwash.test"})
	if err != nil {
		t.Fatalf("NewNATSForwarder: %v", err)
	}

	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer nc.Close()

	msgs := make(chan *nats.Msg, 4)
	sub, err := nc.ChanSubscribe("carwash.test.events.>", msgs)
	if err != nil {
		t.Fatalf("ChanSubscribe: %v", err)
	}
	defer sub.Unsubscribe()
	if err := nc.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	in := Event{ID: "evt-1", Seq: 7, Run: "run-1", Kind: KindLogin, Pump: 1, Car: 3, Time: time.Now().UTC()}
	if err := fwd.Handle(context.Background(), in); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := fwd.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case msg := <-msgs:
		if msg.Subject != "carwash.test.events.login" {
			t.Errorf("subject = %q", msg.Subject)
		}
		if msg.Header.Get("Carwash-Run") != "run-1" {
			t.Errorf("run header = %q", msg.Header.Get("Carwash-Run"))
		}
		var out Event
		if err := json.Unmarshal(msg.Data, &out); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if out.Seq != 7 || out.Car != 3 || out.Pump != 1 || out.Kind != KindLogin {
			t.Errorf("forwarded event = %+v", out)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no message forwarded")
	}
}
