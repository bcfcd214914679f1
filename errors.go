package statewire

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Interpreter methods.
var (
	// ErrNotRunning is returned when Send, SendFireAndForget or
	// UpdateContext is called before Start or after Stop.
	ErrNotRunning = errors.New("statewire: interpreter is not running")

	// ErrAlreadyRunning is returned by Start when called twice.
	ErrAlreadyRunning = errors.New("statewire: interpreter already started")

	// ErrTimeout is returned by Send when ctx is cancelled before the
	// macrostep it enqueued has been processed.
	ErrTimeout = errors.New("statewire: send timed out waiting for macrostep")

	// ErrMailboxFull is returned by SendFireAndForget when the
	// interpreter's internal mailbox has no room, and by an
	// orchestrator Mailbox that is full under its Reject policy.
	ErrMailboxFull = errors.New("statewire: mailbox is full")

	// ErrUnknownTarget is returned by the orchestrator when routing an
	// event to a machine ID that was never registered.
	ErrUnknownTarget = errors.New("statewire: unknown target machine")

	// ErrDuplicateID is returned by the orchestrator's registry when
	// registering a machine ID that is already registered.
	ErrDuplicateID = errors.New("statewire: duplicate machine id")
)

// InterpreterPhase is the interpreter's own lifecycle state, distinct
// from the machine's Configuration. Running is the only phase that
// accepts Send, SendFireAndForget, or UpdateContext; once Fault, the
// only valid operation left is Stop.
type InterpreterPhase string

const (
	Uninitialized InterpreterPhase = "uninitialized"
	Running       InterpreterPhase = "running"
	Fault         InterpreterPhase = "fault"
	Stopped       InterpreterPhase = "stopped"
)

// ActionPhase identifies where in a transition an action panicked.
type ActionPhase string

const (
	PhaseExit       ActionPhase = "exit"
	PhaseTransition ActionPhase = "transition"
	PhaseEntry      ActionPhase = "entry"
)

// ActionError wraps a recovered action panic with the phase and state
// it occurred in. It is both the value returned by Send and friends
// once an interpreter has entered Fault, and the cause stored on the
// interpreter itself, retrievable via Interpreter.Err.
type ActionError struct {
	Phase ActionPhase
	State StateID
	Cause any
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("statewire: action panicked during %s of state %q: %v", e.Phase, e.State, e.Cause)
}

func (e *ActionError) Unwrap() error {
	if err, ok := e.Cause.(error); ok {
		return err
	}
	return nil
}
