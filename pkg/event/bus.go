package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/fluxorio/carwash/pkg/core/concurrency"
)

// DefaultBuffer is the mailbox size used when Subscribe gets buffer < 1.
const DefaultBuffer = 1024

// ErrBusClosed is returned by Subscribe after Close.
var ErrBusClosed = errors.New("event bus is closed")

// Handler consumes events for one subscriber. Errors are logged.
type Handler func(ctx context.Context, e Event) error

// Bus fans every published event out to all subscribers. Each subscriber
// has its own bounded mailbox drained by its own goroutine, so Publish never
// blocks: when a subscriber falls behind its events are dropped and counted.
type Bus struct {
	logger *slog.Logger
	group  *concurrency.TaskGroup

	mu     sync.RWMutex
	subs   []*Subscription
	closed bool
}

// Subscription is one registered handler.
type Subscription struct {
	name    string
	bus     *Bus
	mailbox *concurrency.Mailbox[Event]
	handler Handler
	dropped atomic.Uint64
}

// NewBus creates a bus. logger may be nil.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger: logger,
		group:  concurrency.NewTaskGroup(context.Background(), logger),
	}
}

// Subscribe registers handler under name.
func (b *Bus) Subscribe(name string, buffer int, handler Handler) (*Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("event: handler cannot be nil")
	}
	if buffer < 1 {
		buffer = DefaultBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}

	sub := &Subscription{
		name:    name,
		bus:     b,
		mailbox: concurrency.NewMailbox[Event](buffer),
		handler: handler,
	}
	if err := b.group.Go(concurrency.NewNamedTask("subscriber-"+name, sub.drain)); err != nil {
		return nil, err
	}
	b.subs = append(b.subs, sub)
	return sub, nil
}

// Publish delivers e to every subscriber without blocking.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if err := sub.mailbox.Send(e); err != nil {
			if sub.dropped.Add(1) == 1 {
				b.logger.Warn("subscriber falling behind, dropping events", "subscriber", sub.name, "error", err)
			}
		}
	}
}

// Dropped returns the total number of events dropped across subscribers.
func (b *Bus) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var n uint64
	for _, sub := range b.subs {
		n += sub.dropped.Load()
	}
	return n
}

// Close stops accepting events, lets subscribers drain what they already
// queued and waits for them until ctx is done.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		sub.mailbox.Close()
	}
	if err := b.group.Wait(ctx); err != nil {
		b.group.Cancel()
		return fmt.Errorf("event: close bus: %w", err)
	}
	return nil
}

// Name returns the subscription name.
func (s *Subscription) Name() string { return s.name }

// Dropped returns the number of events this subscriber missed.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Unsubscribe detaches the subscriber. Events already queued are still handled.
func (s *Subscription) Unsubscribe() {
	b := s.bus
	b.mu.Lock()
	for i, sub := range b.subs {
		if sub == s {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	s.mailbox.Close()
}

func (s *Subscription) drain(ctx context.Context) error {
	for {
		// Closed and drained, or the bus gave up waiting.
		e, err := s.mailbox.Receive(ctx)
		if err != nil {
			return nil
		}
		if err := s.handle(ctx, e); err != nil {
			s.bus.logger.Error("event handler failed",
				"subscriber", s.name,
				"kind", e.Kind,
				"seq", e.Seq,
				"error", err,
			)
		}
	}
}

func (s *Subscription) handle(ctx context.Context, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return s.handler(ctx, e)
}
