package orchestrator

import (
	"context"

	"github.com/basinlabs/statewire"
)

// Pump drains mailbox, calling deliver for each received event, until
// ctx is cancelled or the mailbox is closed. A Bus never calls into an
// Interpreter directly; wiring a registered machine's Mailbox to its
// Interpreter is the caller's job, typically one Pump per machine
// running in its own goroutine with deliver wrapping that
// Interpreter's SendFireAndForget (or Send, if the caller needs
// per-event backpressure rather than throughput).
func Pump(ctx context.Context, mailbox *Mailbox, deliver func(statewire.Event)) {
	for {
		event, err := mailbox.Receive(ctx)
		if err != nil {
			return
		}
		deliver(event)
	}
}
