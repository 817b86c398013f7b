package concurrency

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewMailbox(t *testing.T) {
	mailbox := NewMailbox[string](10)

	if mailbox.Capacity() != 10 {
		t.Errorf("Capacity() = %d, want 10", mailbox.Capacity())
	}

	if got := NewMailbox[int](0).Capacity(); got != 100 {
		t.Errorf("Capacity() with zero size = %d, want default 100", got)
	}
}

func TestMailbox_Send(t *testing.T) {
	mailbox := NewMailbox[string](2)

	if err := mailbox.Send("message1"); err != nil {
		t.Errorf("Send() error = %v", err)
	}
	if err := mailbox.Send("message2"); err != nil {
		t.Errorf("Send() error = %v", err)
	}

	// Full mailbox rejects instead of blocking
	if err := mailbox.Send("message3"); !errors.Is(err, ErrMailboxFull) {
		t.Errorf("Send() to full mailbox error = %v, want ErrMailboxFull", err)
	}
	if mailbox.Size() != 2 {
		t.Errorf("Size() = %d, want 2", mailbox.Size())
	}
}

func TestMailbox_ReceiveOrder(t *testing.T) {
	mailbox := NewMailbox[int](10)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		mailbox.Send(i)
	}

	for want := 1; want <= 3; want++ {
		got, err := mailbox.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		if got != want {
			t.Errorf("Receive() = %d, want %d", got, want)
		}
	}
}

func TestMailbox_ReceiveCancelled(t *testing.T) {
	mailbox := NewMailbox[int](1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := mailbox.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Receive() on empty mailbox error = %v, want DeadlineExceeded", err)
	}
}

func TestMailbox_Close(t *testing.T) {
	mailbox := NewMailbox[string](4)
	mailbox.Send("pending")
	mailbox.Close()
	mailbox.Close() // idempotent

	if !mailbox.IsClosed() {
		t.Error("IsClosed() should return true after Close()")
	}
	if err := mailbox.Send("late"); !errors.Is(err, ErrMailboxClosed) {
		t.Errorf("Send() after Close() error = %v, want ErrMailboxClosed", err)
	}

	// Messages queued before Close are still delivered
	msg, err := mailbox.Receive(context.Background())
	if err != nil || msg != "pending" {
		t.Errorf("Receive() = %q, %v; want pending, nil", msg, err)
	}
	if _, err := mailbox.Receive(context.Background()); !errors.Is(err, ErrMailboxClosed) {
		t.Errorf("Receive() on drained closed mailbox error = %v, want ErrMailboxClosed", err)
	}
}
