package workflow

import (
	"fmt"
	"strings"

	"github.com/garyjia/formflow/internal/domain/entity"
)

// Normalize returns a copy of def with trimmed state names, normalized role
// sets and logical types, and the initial state defaulted to the first
// declared state when it is empty.
func Normalize(def *entity.WorkflowDefinition) *entity.WorkflowDefinition {
	out := *def

	out.States = make([]string, len(def.States))
	for i, s := range def.States {
		out.States[i] = strings.TrimSpace(s)
	}

	out.InitialState = strings.TrimSpace(def.InitialState)
	if out.InitialState == "" && len(out.States) > 0 {
		out.InitialState = out.States[0]
	}

	out.Transitions = make([]entity.Transition, len(def.Transitions))
	for i, t := range def.Transitions {
		t.FromState = strings.TrimSpace(t.FromState)
		t.ToState = strings.TrimSpace(t.ToState)
		t.AllowedRoles = NormalizeRoles(t.AllowedRoles)
		t.LogicalType = entity.ParseLogicalType(string(t.LogicalType))
		out.Transitions[i] = t
	}

	return &out
}

// Validate checks the structural invariants of a normalized definition
func Validate(def *entity.WorkflowDefinition) error {
	if def == nil {
		return fmt.Errorf("%w: definition is required", ErrInvalidDefinition)
	}
	if len(def.States) == 0 {
		return fmt.Errorf("%w: at least one state is required", ErrInvalidDefinition)
	}

	states := make(map[string]struct{}, len(def.States))
	for _, s := range def.States {
		if s == "" {
			return fmt.Errorf("%w: state names must be non-empty", ErrInvalidDefinition)
		}
		if _, dup := states[s]; dup {
			return fmt.Errorf("%w: duplicate state %q", ErrInvalidDefinition, s)
		}
		states[s] = struct{}{}
	}

	if _, ok := states[def.InitialState]; !ok {
		return fmt.Errorf("%w: initial state %q is not a declared state", ErrInvalidDefinition, def.InitialState)
	}

	edges := make(map[EdgeKey]struct{}, len(def.Transitions))
	for _, t := range def.Transitions {
		if _, ok := states[t.FromState]; !ok {
			return fmt.Errorf("%w: transition references unknown state %q", ErrInvalidDefinition, t.FromState)
		}
		if _, ok := states[t.ToState]; !ok {
			return fmt.Errorf("%w: transition references unknown state %q", ErrInvalidDefinition, t.ToState)
		}
		if t.FromState == t.ToState {
			return fmt.Errorf("%w: self transition on %q", ErrInvalidDefinition, t.FromState)
		}
		if len(t.AllowedRoles) == 0 {
			return fmt.Errorf("%w: transition %s -> %s has no allowed roles", ErrInvalidDefinition, t.FromState, t.ToState)
		}
		if !t.LogicalType.IsValid() {
			return fmt.Errorf("%w: unknown logical type %q", ErrInvalidDefinition, t.LogicalType)
		}

		key := EdgeKey{From: t.FromState, To: t.ToState}
		if _, dup := edges[key]; dup {
			return fmt.Errorf("%w: duplicate transition %s -> %s", ErrInvalidDefinition, t.FromState, t.ToState)
		}
		edges[key] = struct{}{}
	}

	return nil
}
