// Package orchestrator implements the message-passing event bus that
// routes events between independently running Interpreter instances:
// a registry of named machine mailboxes, Publish/Broadcast delivery,
// and topic-filtered subscriptions.
//
// It is the only legitimate path for a RequestSend issued from inside
// an action closure to reach another machine. Nothing in this package
// calls into an Interpreter's transition code directly; Publish only
// ever enqueues onto the target's Mailbox, and something external to
// the bus (a Pump, typically) drains that Mailbox into the target
// Interpreter's own Send/SendFireAndForget.
package orchestrator
