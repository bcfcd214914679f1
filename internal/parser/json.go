// Package parser loads a statechart definition from the JSON dialect
// produced by export.XStateExporter: a nested tree of named states,
// each carrying optional "on"/"after" transition maps. It is the
// JSON-first counterpart to a hand-built ir.MachineConfig[C] — the
// two are meant to round-trip through the export package.
package parser

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/basinlabs/statewire/internal/ir"
)

// Document is the root of a JSON machine definition.
type Document struct {
	ID      string          `json:"id"`
	Initial string          `json:"initial,omitempty"`
	States  map[string]Node `json:"states"`
}

// Node is a single state entry in the JSON tree. Its Type discriminates
// atomic ("" or "atomic"), "compound", "parallel", "history" and
// "final" the same way export.XStateNode does.
type Node struct {
	Type    string          `json:"type,omitempty"`
	Initial string          `json:"initial,omitempty"`
	States  map[string]Node `json:"states,omitempty"`
	Entry   []string        `json:"entry,omitempty"`
	Exit    []string        `json:"exit,omitempty"`
	On      map[string]TransitionSet `json:"on,omitempty"`

	History string `json:"history,omitempty"`
	Target  string `json:"target,omitempty"`

	After map[string]TransitionSet `json:"after,omitempty"`
}

// Transition is one outgoing edge. Guard and Cond are synonyms: both
// are accepted, Guard wins if both are set, and a caller-supplied
// warning hook fires when that ambiguity occurs.
type Transition struct {
	Target   string   `json:"target,omitempty"`
	Actions  []string `json:"actions,omitempty"`
	Guard    string   `json:"guard,omitempty"`
	Cond     string   `json:"cond,omitempty"`
	Internal bool     `json:"internal,omitempty"`
}

// resolvedGuard applies the cond/guard synonym rule and reports
// whether both were present (ambiguous document).
func (t Transition) resolvedGuard() (name string, bothSet bool) {
	switch {
	case t.Guard != "" && t.Cond != "":
		return t.Guard, true
	case t.Guard != "":
		return t.Guard, false
	default:
		return t.Cond, false
	}
}

// TransitionSet accepts either a single transition object or an array
// of transitions for the same event, matching XState's own JSON
// dialect where multiple guarded transitions can race for one event.
type TransitionSet []Transition

func (ts *TransitionSet) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		var arr []Transition
		if err := json.Unmarshal(data, &arr); err != nil {
			return err
		}
		*ts = arr
		return nil
	}
	var one Transition
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*ts = TransitionSet{one}
	return nil
}

// Options customizes how a Document is materialized into a
// MachineConfig[C]: the zero-value Context, and the action/guard
// registries that JSON alone cannot encode.
type Options[C any] struct {
	Context C
	Actions map[ir.ActionType]ir.Action[C]
	Guards  map[ir.GuardType]ir.Guard[C]

	// OnAmbiguousGuard is invoked once per transition descriptor that
	// sets both "guard" and "cond". May be nil.
	OnAmbiguousGuard func(stateID, event string)
}

// Parse decodes raw JSON bytes into a Document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parser: decode document: %w", err)
	}
	return &doc, nil
}

// Build materializes a Document into a frozen MachineConfig[C],
// wiring in the caller's context value and action/guard tables. It
// does not validate; call ir.Validate on the result.
func Build[C any](doc *Document, opts Options[C]) (*ir.MachineConfig[C], error) {
	m := ir.NewMachineConfig[C](doc.ID, ir.StateID(doc.Initial), opts.Context)
	for name, fn := range opts.Actions {
		m.Actions[name] = fn
	}
	for name, fn := range opts.Guards {
		m.Guards[name] = fn
	}

	for id := range doc.States {
		m.Order = append(m.Order, ir.StateID(id))
	}
	sortIDs(m.Order)

	for id, node := range doc.States {
		if err := buildNode(m, ir.StateID(id), "", node, opts); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func buildNode[C any](m *ir.MachineConfig[C], id, parent ir.StateID, node Node, opts Options[C]) error {
	kind := stateTypeFromString(node.Type, node.States)
	sc := ir.NewStateConfig(id, kind)
	sc.Parent = parent

	for name := range node.States {
		sc.Children = append(sc.Children, ir.StateID(name))
	}
	sortIDs(sc.Children)

	if node.Initial != "" {
		sc.Initial = ir.StateID(node.Initial)
	}

	for _, a := range node.Entry {
		sc.Entry = append(sc.Entry, ir.ActionType(a))
	}
	for _, a := range node.Exit {
		sc.Exit = append(sc.Exit, ir.ActionType(a))
	}

	if node.History == "deep" {
		sc.HistoryKind = ir.HistoryKindDeep
	}
	if node.Target != "" {
		sc.HistoryDefault = ir.StateID(node.Target)
	}

	for event, set := range node.On {
		for _, t := range set {
			tc, err := buildTransition(id, ir.EventType(event), t, opts)
			if err != nil {
				return err
			}
			sc.Transitions = append(sc.Transitions, tc)
		}
	}

	for delayStr, set := range node.After {
		ms, err := strconv.ParseInt(delayStr, 10, 64)
		if err != nil {
			return fmt.Errorf("parser: state %q: invalid after delay %q: %w", id, delayStr, err)
		}
		for _, t := range set {
			tc, err := buildTransition(id, "", t, opts)
			if err != nil {
				return err
			}
			tc.Delay = time.Duration(ms) * time.Millisecond
			sc.After = append(sc.After, tc)
		}
	}

	m.States[id] = sc

	for name, child := range node.States {
		if err := buildNode(m, ir.StateID(name), id, child, opts); err != nil {
			return err
		}
	}
	return nil
}

func buildTransition[C any](stateID ir.StateID, event ir.EventType, t Transition, opts Options[C]) (*ir.TransitionConfig, error) {
	tc := ir.NewTransitionConfig(event, ir.StateID(t.Target))
	tc.Internal = t.Internal
	for _, a := range t.Actions {
		tc.Actions = append(tc.Actions, ir.ActionType(a))
	}
	guard, bothSet := t.resolvedGuard()
	tc.Guard = ir.GuardType(guard)
	if bothSet && opts.OnAmbiguousGuard != nil {
		opts.OnAmbiguousGuard(string(stateID), string(event))
	}
	return tc, nil
}

// sortIDs fixes a deterministic order for state IDs pulled out of a
// JSON object. encoding/json does not preserve the original key order
// of a decoded map, so document-order tie-breaking (MachineConfig's
// DocumentOrderLess) falls back to lexical order for JSON-sourced
// machines rather than true authoring order.
func sortIDs(ids []ir.StateID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func stateTypeFromString(t string, children map[string]Node) ir.StateType {
	switch t {
	case "final":
		return ir.StateTypeFinal
	case "parallel":
		return ir.StateTypeParallel
	case "history":
		return ir.StateTypeHistory
	case "compound":
		return ir.StateTypeCompound
	case "atomic":
		return ir.StateTypeAtomic
	default:
		if len(children) > 0 {
			return ir.StateTypeCompound
		}
		return ir.StateTypeAtomic
	}
}
