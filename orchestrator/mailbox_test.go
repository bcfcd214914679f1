package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/basinlabs/statewire"
)

func TestMailbox_SendReceive(t *testing.T) {
	mb := NewMailbox(2, Reject)

	if err := mb.Send(statewire.Event{Name: "A"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	event, err := mb.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if event.Name != "A" {
		t.Errorf("Receive() = %v, want A", event.Name)
	}
}

func TestMailbox_RejectWhenFull(t *testing.T) {
	mb := NewMailbox(1, Reject)
	if err := mb.Send(statewire.Event{Name: "A"}); err != nil {
		t.Fatalf("first Send() error = %v", err)
	}
	if err := mb.Send(statewire.Event{Name: "B"}); err != statewire.ErrMailboxFull {
		t.Errorf("Send() on full mailbox = %v, want ErrMailboxFull", err)
	}
}

func TestMailbox_DropNewestWhenFull(t *testing.T) {
	mb := NewMailbox(1, DropNewest)
	mb.Send(statewire.Event{Name: "A"})
	if err := mb.Send(statewire.Event{Name: "B"}); err != nil {
		t.Fatalf("Send() under DropNewest error = %v", err)
	}
	event, ok := mb.TryReceive()
	if !ok || event.Name != "A" {
		t.Errorf("expected queue to still hold A, got %v ok=%v", event.Name, ok)
	}
}

func TestMailbox_DropOldestWhenFull(t *testing.T) {
	mb := NewMailbox(1, DropOldest)
	mb.Send(statewire.Event{Name: "A"})
	if err := mb.Send(statewire.Event{Name: "B"}); err != nil {
		t.Fatalf("Send() under DropOldest error = %v", err)
	}
	event, ok := mb.TryReceive()
	if !ok || event.Name != "B" {
		t.Errorf("expected queue to hold B after evicting A, got %v ok=%v", event.Name, ok)
	}
}

func TestMailbox_TryReceiveEmpty(t *testing.T) {
	mb := NewMailbox(4, Reject)
	if _, ok := mb.TryReceive(); ok {
		t.Error("TryReceive() on empty mailbox should return ok=false")
	}
}

func TestMailbox_CloseRejectsSend(t *testing.T) {
	mb := NewMailbox(4, Reject)
	mb.Close()
	mb.Close() // safe to call twice
	if err := mb.Send(statewire.Event{Name: "A"}); err != statewire.ErrNotRunning {
		t.Errorf("Send() after Close() = %v, want ErrNotRunning", err)
	}
}

func TestMailbox_ReceiveContextCancelled(t *testing.T) {
	mb := NewMailbox(1, Reject)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := mb.Receive(ctx); err == nil {
		t.Error("Receive() with a cancelled context should return an error")
	}
}

func TestMailbox_CapacityAndSize(t *testing.T) {
	mb := NewMailbox(3, Reject)
	if mb.Capacity() != 3 {
		t.Errorf("Capacity() = %d, want 3", mb.Capacity())
	}
	mb.Send(statewire.Event{Name: "A"})
	if mb.Size() != 1 {
		t.Errorf("Size() = %d, want 1", mb.Size())
	}
}

func TestMailbox_DefaultCapacity(t *testing.T) {
	mb := NewMailbox(0, Reject)
	if mb.Capacity() != defaultMailboxCapacity {
		t.Errorf("Capacity() = %d, want default %d", mb.Capacity(), defaultMailboxCapacity)
	}
}
