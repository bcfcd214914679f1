package statewire

import (
	"fmt"
	"time"

	"github.com/basinlabs/statewire/internal/ir"
)

// MachineBuilder provides a fluent API for constructing state machines.
type MachineBuilder[C any] struct {
	id      string
	initial StateID
	context C
	states  []*StateBuilder[C]
	actions map[ActionType]Action[C]
	guards  map[GuardType]Guard[C]
}

// StateBuilder provides a fluent API for constructing states.
type StateBuilder[C any] struct {
	machine     *MachineBuilder[C]
	parent      *StateBuilder[C]
	id          StateID
	stateType   StateType
	initial     StateID
	children    []*StateBuilder[C]
	entry       []ActionType
	exit        []ActionType
	transitions []*TransitionBuilder[C]
	after       []*TransitionBuilder[C]

	historyKind    HistoryKind
	historyDefault StateID
}

// HistoryBuilder provides a fluent API for constructing history states.
type HistoryBuilder[C any] struct {
	parent      *StateBuilder[C]
	id          StateID
	historyKind HistoryKind
	defaultID   StateID
}

// TransitionBuilder provides a fluent API for constructing transitions.
type TransitionBuilder[C any] struct {
	state      *StateBuilder[C]
	event      EventType
	target     StateID
	guard      GuardType
	actions    []ActionType
	internal   bool
	delay      time.Duration
	afterIndex int
}

// NewMachine creates a new MachineBuilder with the given ID.
func NewMachine[C any](id string) *MachineBuilder[C] {
	return &MachineBuilder[C]{
		id:      id,
		actions: make(map[ActionType]Action[C]),
		guards:  make(map[GuardType]Guard[C]),
	}
}

// WithInitial sets the initial state ID.
func (b *MachineBuilder[C]) WithInitial(initial StateID) *MachineBuilder[C] {
	b.initial = initial
	return b
}

// WithContext sets the initial context value.
func (b *MachineBuilder[C]) WithContext(ctx C) *MachineBuilder[C] {
	b.context = ctx
	return b
}

// WithAction registers a named action.
func (b *MachineBuilder[C]) WithAction(name ActionType, action Action[C]) *MachineBuilder[C] {
	b.actions[name] = action
	return b
}

// WithGuard registers a named guard.
func (b *MachineBuilder[C]) WithGuard(name GuardType, guard Guard[C]) *MachineBuilder[C] {
	b.guards[name] = guard
	return b
}

// State starts building a new root-level state with the given ID.
func (b *MachineBuilder[C]) State(id StateID) *StateBuilder[C] {
	sb := &StateBuilder[C]{machine: b, id: id, stateType: StateTypeAtomic}
	b.states = append(b.states, sb)
	return sb
}

// Parallel starts building a new root-level parallel state: every
// region added with Region becomes active simultaneously.
func (b *MachineBuilder[C]) Parallel(id StateID) *StateBuilder[C] {
	sb := &StateBuilder[C]{machine: b, id: id, stateType: StateTypeParallel}
	b.states = append(b.states, sb)
	return sb
}

// Build constructs and validates the final MachineConfig.
func (b *MachineBuilder[C]) Build() (*ir.MachineConfig[C], error) {
	machine := ir.NewMachineConfig(b.id, b.initial, b.context)

	for name, action := range b.actions {
		machine.Actions[name] = action
	}
	for name, guard := range b.guards {
		machine.Guards[name] = guard
	}

	for _, sb := range b.states {
		machine.Order = append(machine.Order, sb.id)
		buildStateRecursive(sb, "", machine)
	}

	if err := ir.Validate(machine); err != nil {
		return nil, err
	}
	return machine, nil
}

func buildStateRecursive[C any](sb *StateBuilder[C], parentID ir.StateID, machine *ir.MachineConfig[C]) {
	stateType := sb.stateType
	if len(sb.children) > 0 && stateType == StateTypeAtomic {
		stateType = ir.StateTypeCompound
	}

	state := ir.NewStateConfig(sb.id, stateType)
	state.Parent = parentID

	if len(sb.children) > 0 {
		if stateType == ir.StateTypeCompound {
			state.Initial = sb.initial
		}
		for _, child := range sb.children {
			state.Children = append(state.Children, child.id)
		}
	}

	if stateType == ir.StateTypeHistory {
		state.HistoryKind = sb.historyKind
		state.HistoryDefault = sb.historyDefault
	}

	state.Entry = append(state.Entry, sb.entry...)
	state.Exit = append(state.Exit, sb.exit...)

	for _, tb := range sb.transitions {
		state.Transitions = append(state.Transitions, tb.build())
	}
	for _, tb := range sb.after {
		state.After = append(state.After, tb.build())
	}

	machine.States[sb.id] = state

	for _, child := range sb.children {
		buildStateRecursive(child, sb.id, machine)
	}
}

// --- StateBuilder methods ---

// Final marks this state as a final state.
func (b *StateBuilder[C]) Final() *StateBuilder[C] {
	b.stateType = StateTypeFinal
	return b
}

// OnEntry adds an entry action to the state.
func (b *StateBuilder[C]) OnEntry(action ActionType) *StateBuilder[C] {
	b.entry = append(b.entry, action)
	return b
}

// OnExit adds an exit action to the state.
func (b *StateBuilder[C]) OnExit(action ActionType) *StateBuilder[C] {
	b.exit = append(b.exit, action)
	return b
}

// WithInitial sets the initial child state for a compound state.
func (b *StateBuilder[C]) WithInitial(initial StateID) *StateBuilder[C] {
	b.initial = initial
	return b
}

// State starts building a nested child state.
func (b *StateBuilder[C]) State(id StateID) *StateBuilder[C] {
	child := &StateBuilder[C]{machine: b.machine, parent: b, id: id, stateType: StateTypeAtomic}
	b.children = append(b.children, child)
	return child
}

// Region starts building a region of a parallel state. It is an alias
// for State used for readability at parallel call sites.
func (b *StateBuilder[C]) Region(id StateID) *StateBuilder[C] {
	return b.State(id)
}

// On starts building a new event-triggered transition on this state.
func (b *StateBuilder[C]) On(event EventType) *TransitionBuilder[C] {
	tb := &TransitionBuilder[C]{state: b, event: event}
	b.transitions = append(b.transitions, tb)
	return tb
}

// After starts building a delayed transition, fired delay after this
// state is entered unless the state is exited first.
func (b *StateBuilder[C]) After(delay time.Duration) *TransitionBuilder[C] {
	tb := &TransitionBuilder[C]{state: b, delay: delay, afterIndex: len(b.after)}
	b.after = append(b.after, tb)
	return tb
}

// Forbidden declares that event is explicitly consumed by this state
// with no transition and no target, overriding any ancestor transition
// for the same event that would otherwise bubble up and fire.
func (b *StateBuilder[C]) Forbidden(event EventType) *StateBuilder[C] {
	b.transitions = append(b.transitions, &TransitionBuilder[C]{state: b, event: event})
	return b
}

// Done completes the state definition and returns to the machine builder.
func (b *StateBuilder[C]) Done() *MachineBuilder[C] {
	return b.machine
}

// End completes a nested state and returns to the parent StateBuilder.
func (b *StateBuilder[C]) End() *StateBuilder[C] {
	if b.parent != nil {
		return b.parent
	}
	return nil
}

// History starts building a history pseudo-state within this compound
// or parallel state.
func (b *StateBuilder[C]) History(id StateID) *HistoryBuilder[C] {
	return &HistoryBuilder[C]{parent: b, id: id, historyKind: HistoryKindShallow}
}

// --- HistoryBuilder methods ---

// Shallow sets the history kind to shallow (remembers the immediate child).
func (b *HistoryBuilder[C]) Shallow() *HistoryBuilder[C] {
	b.historyKind = HistoryKindShallow
	return b
}

// Deep sets the history kind to deep (remembers the full leaf set).
func (b *HistoryBuilder[C]) Deep() *HistoryBuilder[C] {
	b.historyKind = HistoryKindDeep
	return b
}

// Default sets the target used when no history has been recorded yet.
func (b *HistoryBuilder[C]) Default(target StateID) *HistoryBuilder[C] {
	b.defaultID = target
	return b
}

// End completes the history state definition.
func (b *HistoryBuilder[C]) End() *StateBuilder[C] {
	historyState := &StateBuilder[C]{
		machine:        b.parent.machine,
		parent:         b.parent,
		id:             b.id,
		stateType:      StateTypeHistory,
		historyKind:    b.historyKind,
		historyDefault: b.defaultID,
	}
	b.parent.children = append(b.parent.children, historyState)
	return b.parent
}

// --- TransitionBuilder methods ---

// Target sets the target state for the transition.
func (b *TransitionBuilder[C]) Target(target StateID) *TransitionBuilder[C] {
	b.target = target
	return b
}

// Guard sets the guard condition for the transition.
func (b *TransitionBuilder[C]) Guard(guard GuardType) *TransitionBuilder[C] {
	b.guard = guard
	return b
}

// Do adds an action to be executed when the transition fires.
func (b *TransitionBuilder[C]) Do(action ActionType) *TransitionBuilder[C] {
	b.actions = append(b.actions, action)
	return b
}

// Internal marks the transition as internal: it runs its actions
// without exiting or re-entering the source state.
func (b *TransitionBuilder[C]) Internal() *TransitionBuilder[C] {
	b.internal = true
	return b
}

// On starts a new transition on the same state.
func (b *TransitionBuilder[C]) On(event EventType) *TransitionBuilder[C] {
	return b.state.On(event)
}

// After starts a new delayed transition on the same state.
func (b *TransitionBuilder[C]) After(delay time.Duration) *TransitionBuilder[C] {
	return b.state.After(delay)
}

// Done completes the state definition and returns to the machine builder.
func (b *TransitionBuilder[C]) Done() *MachineBuilder[C] {
	return b.state.Done()
}

// End completes the transition and returns to the owning StateBuilder.
func (b *TransitionBuilder[C]) End() *StateBuilder[C] {
	return b.state
}

func (b *TransitionBuilder[C]) build() *ir.TransitionConfig {
	event := b.event
	if event == "" && b.delay > 0 {
		event = EventType(fmt.Sprintf("statewire.after(%d)#%d", b.delay.Nanoseconds(), b.afterIndex))
	}
	tc := ir.NewTransitionConfig(event, b.target)
	tc.Guard = b.guard
	tc.Internal = b.internal
	tc.Delay = b.delay
	tc.Actions = append(tc.Actions, b.actions...)
	return tc
}
