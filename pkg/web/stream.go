package web

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fluxorio/carwash/pkg/event"
)

const streamWriteTimeout = 5 * time.Second

// EventStream serves station events to websocket clients as JSON text
// frames. Each client gets its own bus subscription, so a slow client only
// loses its own events. ?kinds=login,finishes_service filters by kind.
type EventStream struct {
	bus      *event.Bus
	logger   *slog.Logger
	buffer   int
	upgrader websocket.Upgrader
	clients  atomic.Int64
}

// NewEventStream creates a stream over bus. logger may be nil.
func NewEventStream(bus *event.Bus, logger *slog.Logger) *EventStream {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventStream{
		bus:    bus,
		logger: logger,
		buffer: 256,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // read-only feed
			},
		},
	}
}

// Clients returns the number of connected clients.
func (s *EventStream) Clients() int {
	return int(s.clients.Load())
}

// ServeHTTP implements http.Handler.
func (s *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	kinds := parseKinds(r.URL.Query().Get("kinds"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	name := "ws-" + r.RemoteAddr
	// The subscriber goroutine is the connection's only writer.
	sub, err := s.bus.Subscribe(name, s.buffer, func(_ context.Context, e event.Event) error {
		if kinds != nil && !kinds[e.Kind] {
			return nil
		}
		conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		return conn.WriteJSON(e)
	})
	if err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "event bus closed"),
			time.Now().Add(time.Second))
		return
	}
	defer sub.Unsubscribe()

	s.clients.Add(1)
	defer s.clients.Add(-1)
	s.logger.Info("event stream client connected", "remote", r.RemoteAddr)

	// Clients never send anything meaningful; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.logger.Info("event stream client disconnected", "remote", r.RemoteAddr, "dropped", sub.Dropped())
}

func parseKinds(raw string) map[event.Kind]bool {
	if raw == "" {
		return nil
	}
	kinds := make(map[event.Kind]bool)
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds[event.Kind(k)] = true
		}
	}
	return kinds
}
