package ir

import "sort"

// Configuration is the set of currently active leaf state paths. The
// full active set (leaves plus every ancestor) is always recoverable
// from this set plus the MachineConfig tree; Configuration itself only
// stores leaves.
type Configuration map[StateID]struct{}

// NewConfiguration builds a Configuration from a slice of leaf IDs.
func NewConfiguration(leaves ...StateID) Configuration {
	c := make(Configuration, len(leaves))
	for _, l := range leaves {
		c[l] = struct{}{}
	}
	return c
}

// Clone returns a shallow copy.
func (c Configuration) Clone() Configuration {
	out := make(Configuration, len(c))
	for k := range c {
		out[k] = struct{}{}
	}
	return out
}

// Has reports whether leaf is active.
func (c Configuration) Has(leaf StateID) bool {
	_, ok := c[leaf]
	return ok
}

// Add inserts leaf into the configuration.
func (c Configuration) Add(leaf StateID) { c[leaf] = struct{}{} }

// Remove deletes leaf from the configuration.
func (c Configuration) Remove(leaf StateID) { delete(c, leaf) }

// Leaves returns the active leaves sorted for deterministic iteration.
func (c Configuration) Leaves() []StateID {
	out := make([]StateID, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len reports the number of active leaves.
func (c Configuration) Len() int { return len(c) }

// HistoryMemory records, per history-bearing compound ancestor, the
// last configuration observed within that ancestor's subtree. It is
// owned by the interpreter instance, not the (immutable) Definition.
type HistoryMemory struct {
	shallow map[StateID]StateID      // ancestor -> remembered direct child
	deep    map[StateID]Configuration // ancestor -> remembered leaf set within subtree
}

// NewHistoryMemory creates an empty memory.
func NewHistoryMemory() *HistoryMemory {
	return &HistoryMemory{
		shallow: make(map[StateID]StateID),
		deep:    make(map[StateID]Configuration),
	}
}

// RecordShallow remembers child as the last active direct child of ancestor.
func (h *HistoryMemory) RecordShallow(ancestor, child StateID) {
	h.shallow[ancestor] = child
}

// RecordDeep remembers the leaf set active within ancestor's subtree.
func (h *HistoryMemory) RecordDeep(ancestor StateID, leaves Configuration) {
	h.deep[ancestor] = leaves.Clone()
}

// Shallow returns the remembered direct child of ancestor, if any.
func (h *HistoryMemory) Shallow(ancestor StateID) (StateID, bool) {
	v, ok := h.shallow[ancestor]
	return v, ok
}

// Deep returns a copy of the remembered leaf set within ancestor's
// subtree, if any.
func (h *HistoryMemory) Deep(ancestor StateID) (Configuration, bool) {
	v, ok := h.deep[ancestor]
	if !ok {
		return nil, false
	}
	return v.Clone(), true
}

// Clear discards all remembered configurations, used on Stop.
func (h *HistoryMemory) Clear() {
	h.shallow = make(map[StateID]StateID)
	h.deep = make(map[StateID]Configuration)
}
