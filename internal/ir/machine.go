package ir

import "sort"

// StateConfig is a single node in the state tree.
type StateConfig struct {
	ID     StateID
	Type   StateType
	Parent StateID // empty for the root

	// Initial is the initial child for a compound state.
	Initial StateID
	// Children holds, in document order, the child IDs of a compound
	// or parallel state. For parallel states these are "regions".
	Children []StateID

	// HistoryKind and HistoryDefault apply only to StateTypeHistory.
	HistoryKind    HistoryKind
	HistoryDefault StateID

	Entry []ActionType
	Exit  []ActionType

	// Transitions holds the ordered "on" descriptors, keyed implicitly
	// by Event; the first whose guard passes wins per event per frame.
	Transitions []*TransitionConfig

	// After holds delayed transitions scheduled on entry to this state.
	After []*TransitionConfig
}

// IsCompound reports whether this is a compound state with children.
func (s *StateConfig) IsCompound() bool { return s.Type == StateTypeCompound }

// IsParallel reports whether this is a parallel state.
func (s *StateConfig) IsParallel() bool { return s.Type == StateTypeParallel }

// IsAtomic reports whether this is an atomic leaf state.
func (s *StateConfig) IsAtomic() bool { return s.Type == StateTypeAtomic }

// IsFinal reports whether this is a final state.
func (s *StateConfig) IsFinal() bool { return s.Type == StateTypeFinal }

// IsHistory reports whether this is a history pseudo-state.
func (s *StateConfig) IsHistory() bool { return s.Type == StateTypeHistory }

// HasChildren reports whether the node owns any children/regions.
func (s *StateConfig) HasChildren() bool { return len(s.Children) > 0 }

// FindTransitions returns the transitions registered for event, in
// declared order.
func (s *StateConfig) FindTransitions(event EventType) []*TransitionConfig {
	var out []*TransitionConfig
	for _, t := range s.Transitions {
		if t.Event == event {
			out = append(out, t)
		}
	}
	return out
}

// MachineConfig is the immutable, frozen definition of a statechart.
type MachineConfig[C any] struct {
	ID      string
	Initial StateID
	Context C

	States  map[StateID]*StateConfig
	Actions map[ActionType]Action[C]
	Guards  map[GuardType]Guard[C]

	// Order preserves document order of root-level children for
	// deterministic entry ordering and export.
	Order []StateID
}

// NewMachineConfig creates a MachineConfig with initialized maps.
func NewMachineConfig[C any](id string, initial StateID, ctx C) *MachineConfig[C] {
	return &MachineConfig[C]{
		ID:      id,
		Initial: initial,
		Context: ctx,
		States:  make(map[StateID]*StateConfig),
		Actions: make(map[ActionType]Action[C]),
		Guards:  make(map[GuardType]Guard[C]),
	}
}

// NewStateConfig creates a StateConfig of the given kind.
func NewStateConfig(id StateID, kind StateType) *StateConfig {
	return &StateConfig{ID: id, Type: kind}
}

func (m *MachineConfig[C]) GetState(id StateID) *StateConfig { return m.States[id] }
func (m *MachineConfig[C]) GetAction(t ActionType) Action[C] { return m.Actions[t] }
func (m *MachineConfig[C]) GetGuard(t GuardType) Guard[C]    { return m.Guards[t] }

// Parent returns the parent StateConfig of id, or nil at the root.
func (m *MachineConfig[C]) Parent(id StateID) *StateConfig {
	s := m.GetState(id)
	if s == nil || s.Parent == "" {
		return nil
	}
	return m.GetState(s.Parent)
}

// Ancestors returns every ancestor ID of stateID, nearest first, root last.
func (m *MachineConfig[C]) Ancestors(stateID StateID) []StateID {
	var out []StateID
	cur := m.GetState(stateID)
	for cur != nil && cur.Parent != "" {
		out = append(out, cur.Parent)
		cur = m.GetState(cur.Parent)
	}
	return out
}

// Path returns the full path from the root down to stateID, inclusive,
// in root-to-leaf order.
func (m *MachineConfig[C]) Path(stateID StateID) []StateID {
	anc := m.Ancestors(stateID)
	full := make([]StateID, 0, len(anc)+1)
	for i := len(anc) - 1; i >= 0; i-- {
		full = append(full, anc[i])
	}
	full = append(full, stateID)
	return full
}

// IsDescendantOf reports whether stateID is a (possibly indirect)
// descendant of ancestorID.
func (m *MachineConfig[C]) IsDescendantOf(stateID, ancestorID StateID) bool {
	for _, a := range m.Ancestors(stateID) {
		if a == ancestorID {
			return true
		}
	}
	return false
}

// FindLCA returns the lowest common ancestor of a and b (which may
// themselves be ancestors of one another, or equal).
func (m *MachineConfig[C]) FindLCA(a, b StateID) StateID {
	pathA := m.Path(a)
	pathB := m.Path(b)
	var lca StateID
	for i := 0; i < len(pathA) && i < len(pathB); i++ {
		if pathA[i] == pathB[i] {
			lca = pathA[i]
		} else {
			break
		}
	}
	return lca
}

// InitialLeafSet resolves stateID down to the set of leaves that make
// up its default ("initial") configuration: a single leaf for atomic
// states, the initial child's leaf set for compound states, and every
// region's leaf set for parallel states. History states resolve to
// their default target, or the parent's initial leaf set if none.
func (m *MachineConfig[C]) InitialLeafSet(stateID StateID) []StateID {
	s := m.GetState(stateID)
	if s == nil {
		return []StateID{stateID}
	}
	switch s.Type {
	case StateTypeCompound:
		if s.Initial != "" {
			return m.InitialLeafSet(s.Initial)
		}
		return []StateID{stateID}
	case StateTypeParallel:
		var leaves []StateID
		for _, region := range s.Children {
			leaves = append(leaves, m.InitialLeafSet(region)...)
		}
		return leaves
	case StateTypeHistory:
		if s.HistoryDefault != "" {
			return m.InitialLeafSet(s.HistoryDefault)
		}
		if parent := m.Parent(stateID); parent != nil && parent.Initial != "" {
			return m.InitialLeafSet(parent.Initial)
		}
		return nil
	default:
		return []StateID{stateID}
	}
}

// DocumentOrderLess reports whether a precedes b in document order,
// used for deterministic tie-breaking (parallel conflict resolution,
// entry ordering). It compares paths element-by-element using each
// state's index among its siblings.
func (m *MachineConfig[C]) DocumentOrderLess(a, b StateID) bool {
	pathA, pathB := m.Path(a), m.Path(b)
	for i := 0; i < len(pathA) && i < len(pathB); i++ {
		if pathA[i] == pathB[i] {
			continue
		}
		return m.siblingIndex(pathA[i]) < m.siblingIndex(pathB[i])
	}
	return len(pathA) < len(pathB)
}

func (m *MachineConfig[C]) siblingIndex(id StateID) int {
	s := m.GetState(id)
	var siblings []StateID
	if s == nil || s.Parent == "" {
		siblings = m.Order
	} else if parent := m.GetState(s.Parent); parent != nil {
		siblings = parent.Children
	}
	for i, sib := range siblings {
		if sib == id {
			return i
		}
	}
	return -1
}

// SortByDocumentOrder returns a new, sorted copy of ids.
func (m *MachineConfig[C]) SortByDocumentOrder(ids []StateID) []StateID {
	out := make([]StateID, len(ids))
	copy(out, ids)
	sort.SliceStable(out, func(i, j int) bool {
		return m.DocumentOrderLess(out[i], out[j])
	})
	return out
}
