package workflow

import (
	"fmt"

	"github.com/garyjia/formflow/internal/domain/entity"
)

// DefinitionBuilder assembles a workflow definition fluently
type DefinitionBuilder interface {
	// Initial overrides the initial state (defaults to the first state)
	Initial(state string) DefinitionBuilder

	// Configure returns the configuration of outgoing transitions for a state
	Configure(state string) StateConfiguration

	// Build returns the definition bound to a form template
	Build(formTemplateID int64) *entity.WorkflowDefinition
}

// StateConfiguration configures the transitions leaving one state
type StateConfiguration interface {
	// PermitAny adds an OR transition: any one role commits it
	PermitAny(toState string, roles ...string) StateConfiguration

	// PermitAll adds an AND transition: every role must consent
	PermitAll(toState string, roles ...string) StateConfiguration
}

type definitionBuilder struct {
	states      []string
	declared    map[string]struct{}
	initial     string
	transitions []entity.Transition
}

type stateConfig struct {
	builder   *definitionBuilder
	fromState string
}

// NewBuilder creates a builder over the declared states
func NewBuilder(states ...string) DefinitionBuilder {
	b := &definitionBuilder{
		states:   append([]string{}, states...),
		declared: make(map[string]struct{}, len(states)),
	}
	for _, s := range states {
		b.declared[s] = struct{}{}
	}
	return b
}

func (b *definitionBuilder) Initial(state string) DefinitionBuilder {
	b.initial = state
	return b
}

// Configure panics on an undeclared state
func (b *definitionBuilder) Configure(state string) StateConfiguration {
	if _, ok := b.declared[state]; !ok {
		panic(fmt.Sprintf("undeclared state: %s", state))
	}
	return &stateConfig{builder: b, fromState: state}
}

func (b *definitionBuilder) Build(formTemplateID int64) *entity.WorkflowDefinition {
	def := &entity.WorkflowDefinition{
		FormTemplateID: formTemplateID,
		States:         append([]string{}, b.states...),
		InitialState:   b.initial,
		Transitions:    append([]entity.Transition{}, b.transitions...),
	}
	return Normalize(def)
}

func (c *stateConfig) PermitAny(toState string, roles ...string) StateConfiguration {
	return c.permit(toState, entity.LogicalTypeOR, roles)
}

func (c *stateConfig) PermitAll(toState string, roles ...string) StateConfiguration {
	return c.permit(toState, entity.LogicalTypeAND, roles)
}

func (c *stateConfig) permit(toState string, logicalType entity.LogicalType, roles []string) StateConfiguration {
	if _, ok := c.builder.declared[toState]; !ok {
		panic(fmt.Sprintf("undeclared target state: %s", toState))
	}

	c.builder.transitions = append(c.builder.transitions, entity.Transition{
		FromState:    c.fromState,
		ToState:      toState,
		AllowedRoles: append([]string{}, roles...),
		LogicalType:  logicalType,
	})
	return c
}
