package orchestrator

import "log/slog"

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithLogger sets the *slog.Logger used for delivery diagnostics
// (undeliverable RequestSend targets forwarded through Outbox). A nil
// logger is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics attaches Prometheus instrumentation to the Bus. A nil
// Metrics (the default) disables instrumentation entirely.
func WithMetrics(m *Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

// WithDefaultMailboxCapacity sets the buffer size RegisterNew uses
// when it allocates a Mailbox on the caller's behalf.
func WithDefaultMailboxCapacity(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.defaultCapacity = n
		}
	}
}

// WithDefaultOverflowPolicy sets the OverflowPolicy RegisterNew uses
// for mailboxes it allocates.
func WithDefaultOverflowPolicy(p OverflowPolicy) Option {
	return func(b *Bus) { b.defaultPolicy = p }
}
