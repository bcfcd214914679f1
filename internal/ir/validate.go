package ir

import (
	"fmt"
	"strings"
)

// ValidationIssue represents a single validation problem.
type ValidationIssue struct {
	Code    string
	Message string
	Path    []string
}

func (v ValidationIssue) String() string {
	if len(v.Path) > 0 {
		return fmt.Sprintf("[%s] %s (at %s)", v.Code, v.Message, strings.Join(v.Path, "."))
	}
	return fmt.Sprintf("[%s] %s", v.Code, v.Message)
}

// ValidationError aggregates every issue found during Validate.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "validation failed"
	}
	if len(e.Issues) == 1 {
		return e.Issues[0].String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "validation failed with %d issues:\n", len(e.Issues))
	for i, issue := range e.Issues {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, issue.String())
	}
	return b.String()
}

func (e *ValidationError) AddIssue(code, message string, path ...string) {
	e.Issues = append(e.Issues, ValidationIssue{Code: code, Message: message, Path: path})
}

func (e *ValidationError) HasIssues() bool { return len(e.Issues) > 0 }

// Validation error codes.
const (
	ErrCodeMissingInitial         = "MISSING_INITIAL"
	ErrCodeInitialNotFound        = "INITIAL_NOT_FOUND"
	ErrCodeInvalidTarget          = "INVALID_TARGET"
	ErrCodeMissingAction          = "MISSING_ACTION"
	ErrCodeMissingGuard           = "MISSING_GUARD"
	ErrCodeNoStates               = "NO_STATES"
	ErrCodeCompoundMissingInitial = "COMPOUND_MISSING_INITIAL"
	ErrCodeCompoundInvalidInitial = "COMPOUND_INVALID_INITIAL"
	ErrCodeInvalidParent          = "INVALID_PARENT"
	ErrCodeInvalidChild           = "INVALID_CHILD"
	ErrCodeParallelNoInitial      = "PARALLEL_NO_INITIAL"
	ErrCodeParallelTooFewRegions  = "PARALLEL_TOO_FEW_REGIONS"
	ErrCodeHistoryBadParent       = "HISTORY_BAD_PARENT"
	ErrCodeHistoryHasTransitions  = "HISTORY_HAS_TRANSITIONS"
	ErrCodeFinalHasTransitions    = "FINAL_HAS_TRANSITIONS"
	ErrCodeCompoundTooFewChildren = "COMPOUND_TOO_FEW_CHILDREN"
)

// Validate checks a MachineConfig against the structural invariants a
// well-formed state node must satisfy (initial state present, compound
// states with at least one child, history nodes whose default, when
// set, names an existing state, etc).
func Validate[C any](m *MachineConfig[C]) *ValidationError {
	errs := &ValidationError{}

	if m.Initial == "" {
		errs.AddIssue(ErrCodeMissingInitial, "initial state is required")
	}
	if len(m.States) == 0 {
		errs.AddIssue(ErrCodeNoStates, "at least one state is required")
	}
	if m.Initial != "" && len(m.States) > 0 {
		if _, ok := m.States[m.Initial]; !ok {
			errs.AddIssue(ErrCodeInitialNotFound,
				fmt.Sprintf("initial state %q not found in states", m.Initial))
		}
	}

	for stateID, state := range m.States {
		statePath := []string{"states", string(stateID)}
		validateStateShape(m, errs, stateID, state, statePath)
		validateParentage(m, errs, state, statePath)
		validateActionRefs(m, errs, state, statePath)
		validateTransitions(m, errs, state, statePath)
	}

	if errs.HasIssues() {
		return errs
	}
	return nil
}

func validateStateShape[C any](m *MachineConfig[C], errs *ValidationError, stateID StateID, state *StateConfig, statePath []string) {
	switch state.Type {
	case StateTypeCompound:
		if len(state.Children) == 0 {
			errs.AddIssue(ErrCodeCompoundTooFewChildren,
				fmt.Sprintf("compound state %q must have at least one non-history child", stateID), statePath...)
		}
		if state.Initial == "" {
			errs.AddIssue(ErrCodeCompoundMissingInitial,
				fmt.Sprintf("compound state %q must have an initial child state", stateID), statePath...)
		} else {
			isChild := false
			for _, childID := range state.Children {
				if childID == state.Initial {
					isChild = true
					break
				}
			}
			if !isChild {
				errs.AddIssue(ErrCodeCompoundInvalidInitial,
					fmt.Sprintf("initial state %q must be a child of compound state %q", state.Initial, stateID), statePath...)
			}
		}
		for i, childID := range state.Children {
			child, ok := m.States[childID]
			if !ok {
				errs.AddIssue(ErrCodeInvalidChild,
					fmt.Sprintf("child state %q not found", childID),
					append(append([]string{}, statePath...), "children", fmt.Sprintf("%d", i))...)
			} else if child.Parent != stateID {
				errs.AddIssue(ErrCodeInvalidChild,
					fmt.Sprintf("child state %q has incorrect parent %q, expected %q", childID, child.Parent, stateID),
					append(append([]string{}, statePath...), "children", fmt.Sprintf("%d", i))...)
			}
		}
	case StateTypeParallel:
		if state.Initial != "" {
			errs.AddIssue(ErrCodeParallelNoInitial,
				fmt.Sprintf("parallel state %q must not declare an initial child", stateID), statePath...)
		}
		if len(state.Children) < 2 {
			errs.AddIssue(ErrCodeParallelTooFewRegions,
				fmt.Sprintf("parallel state %q must have at least two region children", stateID), statePath...)
		}
		for _, childID := range state.Children {
			if child, ok := m.States[childID]; !ok || child.Parent != stateID {
				errs.AddIssue(ErrCodeInvalidChild,
					fmt.Sprintf("region %q not found or has wrong parent for %q", childID, stateID), statePath...)
			}
		}
	case StateTypeHistory:
		parent := m.Parent(stateID)
		if parent == nil || (parent.Type != StateTypeCompound && parent.Type != StateTypeParallel) {
			errs.AddIssue(ErrCodeHistoryBadParent,
				fmt.Sprintf("history state %q must be a child of a compound or parallel state", stateID), statePath...)
		}
		if len(state.Transitions) > 0 {
			errs.AddIssue(ErrCodeHistoryHasTransitions,
				fmt.Sprintf("history state %q must not declare outgoing transitions", stateID), statePath...)
		}
		if state.HistoryDefault != "" {
			if _, ok := m.States[state.HistoryDefault]; !ok {
				errs.AddIssue(ErrCodeInvalidTarget,
					fmt.Sprintf("history state %q default %q not found", stateID, state.HistoryDefault), statePath...)
			}
		}
	case StateTypeFinal:
		if len(state.Transitions) > 0 {
			errs.AddIssue(ErrCodeFinalHasTransitions,
				fmt.Sprintf("final state %q must not declare its own outgoing transitions", stateID), statePath...)
		}
	}
}

func validateParentage[C any](m *MachineConfig[C], errs *ValidationError, state *StateConfig, statePath []string) {
	if state.Parent == "" {
		return
	}
	parent, ok := m.States[state.Parent]
	if !ok {
		errs.AddIssue(ErrCodeInvalidParent, fmt.Sprintf("parent state %q not found", state.Parent), statePath...)
		return
	}
	if parent.Type != StateTypeCompound && parent.Type != StateTypeParallel {
		errs.AddIssue(ErrCodeInvalidParent,
			fmt.Sprintf("parent state %q is not a compound or parallel state", state.Parent), statePath...)
	}
}

func validateActionRefs[C any](m *MachineConfig[C], errs *ValidationError, state *StateConfig, statePath []string) {
	for i, name := range state.Entry {
		if _, ok := m.Actions[name]; !ok {
			errs.AddIssue(ErrCodeMissingAction, fmt.Sprintf("entry action %q is not defined", name),
				append(append([]string{}, statePath...), "entry", fmt.Sprintf("%d", i))...)
		}
	}
	for i, name := range state.Exit {
		if _, ok := m.Actions[name]; !ok {
			errs.AddIssue(ErrCodeMissingAction, fmt.Sprintf("exit action %q is not defined", name),
				append(append([]string{}, statePath...), "exit", fmt.Sprintf("%d", i))...)
		}
	}
}

func validateTransitions[C any](m *MachineConfig[C], errs *ValidationError, state *StateConfig, statePath []string) {
	all := append(append([]*TransitionConfig{}, state.Transitions...), state.After...)
	for i, trans := range all {
		transPath := append(append([]string{}, statePath...), "transitions", fmt.Sprintf("%d", i))
		if trans.Target != "" {
			if _, ok := m.States[trans.Target]; !ok {
				errs.AddIssue(ErrCodeInvalidTarget, fmt.Sprintf("transition target %q not found", trans.Target), transPath...)
			}
		}
		if trans.Guard != "" {
			if _, ok := m.Guards[trans.Guard]; !ok {
				errs.AddIssue(ErrCodeMissingGuard, fmt.Sprintf("guard %q is not defined", trans.Guard), transPath...)
			}
		}
		for j, actionName := range trans.Actions {
			if _, ok := m.Actions[actionName]; !ok {
				errs.AddIssue(ErrCodeMissingAction, fmt.Sprintf("transition action %q is not defined", actionName),
					append(append([]string{}, transPath...), "actions", fmt.Sprintf("%d", j))...)
			}
		}
	}
}
