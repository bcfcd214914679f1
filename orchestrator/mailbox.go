package orchestrator

import (
	"context"
	"sync"

	"github.com/basinlabs/statewire"
)

// OverflowPolicy selects what Send does when a Mailbox has no room for
// an incoming event.
type OverflowPolicy int

const (
	// Reject returns statewire.ErrMailboxFull and leaves the queue
	// untouched.
	Reject OverflowPolicy = iota
	// DropNewest silently discards the event being sent, keeping
	// everything already queued.
	DropNewest
	// DropOldest evicts the head of the queue to make room for the
	// incoming event.
	DropOldest
)

// Mailbox is the bounded FIFO a MachineRegistration's sender-side
// handle points at: one queue per registered machine, drained by
// whatever task (normally a Pump) owns delivering into that machine's
// Interpreter.
type Mailbox struct {
	mu     sync.Mutex
	ch     chan statewire.Event
	policy OverflowPolicy
	closed bool
}

const defaultMailboxCapacity = 64

// NewMailbox creates a Mailbox with the given capacity and overflow
// policy. A non-positive capacity falls back to a default of 64.
func NewMailbox(capacity int, policy OverflowPolicy) *Mailbox {
	if capacity <= 0 {
		capacity = defaultMailboxCapacity
	}
	return &Mailbox{ch: make(chan statewire.Event, capacity), policy: policy}
}

// Send enqueues event, applying the configured OverflowPolicy if the
// mailbox is already full. Returns statewire.ErrMailboxFull under
// Reject, or statewire.ErrNotRunning if the mailbox has been closed.
func (m *Mailbox) Send(event statewire.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return statewire.ErrNotRunning
	}

	select {
	case m.ch <- event:
		return nil
	default:
	}

	switch m.policy {
	case DropNewest:
		return nil
	case DropOldest:
		select {
		case <-m.ch:
		default:
		}
		select {
		case m.ch <- event:
			return nil
		default:
			return statewire.ErrMailboxFull
		}
	default:
		return statewire.ErrMailboxFull
	}
}

// Receive blocks until an event is available, the mailbox is closed,
// or ctx is done.
func (m *Mailbox) Receive(ctx context.Context) (statewire.Event, error) {
	select {
	case e, ok := <-m.ch:
		if !ok {
			return statewire.Event{}, statewire.ErrNotRunning
		}
		return e, nil
	case <-ctx.Done():
		return statewire.Event{}, ctx.Err()
	}
}

// TryReceive attempts a non-blocking receive, returning (event, true)
// if one was queued or (zero value, false) if the mailbox was empty or
// closed.
func (m *Mailbox) TryReceive() (statewire.Event, bool) {
	select {
	case e, ok := <-m.ch:
		if !ok {
			return statewire.Event{}, false
		}
		return e, true
	default:
		return statewire.Event{}, false
	}
}

// Close closes the mailbox; further Send calls return
// statewire.ErrNotRunning. Safe to call more than once.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.ch)
}

// Capacity returns the mailbox's fixed buffer size.
func (m *Mailbox) Capacity() int { return cap(m.ch) }

// Size returns the number of events currently queued.
func (m *Mailbox) Size() int { return len(m.ch) }
