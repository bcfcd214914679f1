package statewire

import "github.com/basinlabs/statewire/internal/ir"

// Re-exported types from internal/ir so callers never need to import
// the internal package directly.
type (
	StateType   = ir.StateType
	EventType   = ir.EventType
	StateID     = ir.StateID
	ActionType  = ir.ActionType
	GuardType   = ir.GuardType
	Event       = ir.Event
	HistoryKind = ir.HistoryKind

	// Ctx is passed to every Action closure. Context returns the
	// mutable machine context; RequestSend queues an outbound event
	// that the orchestrator delivers once the current macrostep has
	// committed — it never dispatches synchronously, so an action can
	// never observe the effect of its own RequestSend.
	Ctx[C any] = ir.Ctx[C]

	// Action is a side-effecting closure run on entry, exit, or as
	// part of a transition.
	Action[C any] = ir.Action[C]

	// Guard is a pure predicate gating a transition.
	Guard[C any] = ir.Guard[C]
)

// Re-exported state type constants.
const (
	StateTypeAtomic   = ir.StateTypeAtomic
	StateTypeCompound = ir.StateTypeCompound
	StateTypeParallel = ir.StateTypeParallel
	StateTypeHistory  = ir.StateTypeHistory
	StateTypeFinal    = ir.StateTypeFinal

	HistoryKindShallow = ir.HistoryKindShallow
	HistoryKindDeep    = ir.HistoryKindDeep
)

// Snapshot is a point-in-time, race-free view of a running
// Interpreter's configuration and context, returned by QuerySnapshot.
type Snapshot[C any] struct {
	// Leaves holds every currently active leaf state, one per active
	// parallel region plus the single leaf of any non-parallel branch.
	Leaves []StateID
	// Context is a copy of the machine's context at the moment the
	// snapshot was taken.
	Context C
	// Done reports whether every active leaf is a final state with no
	// further enabled transitions.
	Done bool
	// Fault holds the ActionError that put the interpreter into its
	// terminal Fault phase, or nil if it never faulted.
	Fault error
}

// Matches reports whether id is among the snapshot's active leaves.
// Use Interpreter.Matches instead when id may be a compound ancestor
// rather than a leaf.
func (s Snapshot[C]) Matches(id StateID) bool {
	for _, leaf := range s.Leaves {
		if leaf == id {
			return true
		}
	}
	return false
}
