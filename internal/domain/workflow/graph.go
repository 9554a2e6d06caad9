package workflow

import "github.com/garyjia/formflow/internal/domain/entity"

// EdgeKey identifies a transition by its endpoints
type EdgeKey struct {
	From string
	To   string
}

// Graph is the read-only adjacency view of a workflow definition
type Graph struct {
	definitionID int64
	initial      string
	states       map[string]struct{}
	edges        map[EdgeKey]entity.Transition
	outgoing     map[string][]entity.Transition
}

// NewGraph normalizes and validates def and indexes its transitions
func NewGraph(def *entity.WorkflowDefinition) (*Graph, error) {
	if def == nil {
		return nil, Validate(nil)
	}

	norm := Normalize(def)
	if err := Validate(norm); err != nil {
		return nil, err
	}

	g := &Graph{
		definitionID: norm.ID,
		initial:      norm.InitialState,
		states:       make(map[string]struct{}, len(norm.States)),
		edges:        make(map[EdgeKey]entity.Transition, len(norm.Transitions)),
		outgoing:     make(map[string][]entity.Transition),
	}

	for _, s := range norm.States {
		g.states[s] = struct{}{}
	}
	for _, t := range norm.Transitions {
		g.edges[EdgeKey{From: t.FromState, To: t.ToState}] = t
		g.outgoing[t.FromState] = append(g.outgoing[t.FromState], t)
	}

	return g, nil
}

// DefinitionID returns the id of the definition the graph was built from
func (g *Graph) DefinitionID() int64 {
	return g.definitionID
}

// InitialState returns the state new submissions start in
func (g *Graph) InitialState() string {
	return g.initial
}

// HasState reports whether the state is declared
func (g *Graph) HasState(state string) bool {
	_, ok := g.states[state]
	return ok
}

// Lookup returns the transition for (from, to), if any
func (g *Graph) Lookup(from, to string) (entity.Transition, bool) {
	t, ok := g.edges[EdgeKey{From: from, To: to}]
	return t, ok
}

// Outgoing returns the transitions leaving a state in declaration order
func (g *Graph) Outgoing(from string) []entity.Transition {
	out := g.outgoing[from]
	result := make([]entity.Transition, len(out))
	copy(result, out)
	return result
}

// StatesForRole returns the states that have an outgoing transition
// the role may act on
func (g *Graph) StatesForRole(role string) []string {
	var states []string
	for from, transitions := range g.outgoing {
		for _, t := range transitions {
			if ContainsRole(t.AllowedRoles, role) {
				states = append(states, from)
				break
			}
		}
	}
	return states
}
