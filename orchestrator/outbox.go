package orchestrator

import "github.com/basinlabs/statewire"

// Outbox adapts Publish into the statewire.OutboxHandler signature
// expected by statewire.WithOutboxHandler, so an Interpreter's
// RequestSend calls are forwarded through this Bus once the macrostep
// that queued them has committed. An undeliverable target (unknown id,
// full mailbox) is logged and dropped rather than surfaced to the
// interpreter, since the transition that queued it has already
// committed and cannot be rolled back.
func (b *Bus) Outbox() statewire.OutboxHandler {
	return func(targetID string, event statewire.Event) {
		if err := b.Publish(targetID, event); err != nil {
			b.logger.Warn("requested send undeliverable", "target", targetID, "event", event.Name, "error", err)
		}
	}
}
