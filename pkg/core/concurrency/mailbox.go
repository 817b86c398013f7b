package concurrency

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrMailboxClosed is returned when trying to send/receive on a closed mailbox
	ErrMailboxClosed = errors.New("mailbox is closed")

	// ErrMailboxFull is returned when trying to send to a full mailbox (backpressure)
	ErrMailboxFull = errors.New("mailbox is full")
)

// Mailbox is a bounded FIFO of T.
// Send never blocks; a full mailbox rejects the message instead.
type Mailbox[T any] struct {
	ch       chan T
	mu       sync.RWMutex // Send holds it shared so Close cannot close ch mid-send
	closed   bool
	capacity int
}

// NewMailbox creates a mailbox holding at most capacity messages.
func NewMailbox[T any](capacity int) *Mailbox[T] {
	if capacity < 1 {
		capacity = 100
	}
	return &Mailbox[T]{
		ch:       make(chan T, capacity),
		capacity: capacity,
	}
}

// Send enqueues msg.
// Returns ErrMailboxFull if the mailbox is full and ErrMailboxClosed after Close.
func (mb *Mailbox[T]) Send(msg T) error {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	if mb.closed {
		return ErrMailboxClosed
	}
	select {
	case mb.ch <- msg:
		return nil
	default:
		return ErrMailboxFull
	}
}

// Receive blocks until a message is available or ctx is done.
// Messages sent before Close are still delivered; after that it returns ErrMailboxClosed.
func (mb *Mailbox[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	select {
	case msg, ok := <-mb.ch:
		if !ok {
			return zero, ErrMailboxClosed
		}
		return msg, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close stops accepting messages. Safe to call more than once.
func (mb *Mailbox[T]) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if !mb.closed {
		mb.closed = true
		close(mb.ch)
	}
}

// Capacity returns the maximum number of queued messages.
func (mb *Mailbox[T]) Capacity() int {
	return mb.capacity
}

// Size returns the current number of queued messages.
func (mb *Mailbox[T]) Size() int {
	return len(mb.ch)
}

// IsClosed reports whether Close has been called.
func (mb *Mailbox[T]) IsClosed() bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return mb.closed
}
