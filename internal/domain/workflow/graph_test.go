package workflow

import (
	"errors"
	"reflect"
	"testing"

	"github.com/garyjia/formflow/internal/domain/entity"
)

func sampleDefinition() *entity.WorkflowDefinition {
	b := NewBuilder("Draft", "Reviewed", "Approved", "Rejected")
	b.Configure("Draft").
		PermitAny("Reviewed", "Manager")
	b.Configure("Reviewed").
		PermitAll("Approved", "Manager", "HR").
		PermitAny("Rejected", "Manager", "HR")
	b.Configure("Rejected").
		PermitAny("Draft", "Employee")
	return b.Build(1)
}

func TestNormalizeRoles(t *testing.T) {
	got := NormalizeRoles([]string{" Manager", "HR", "", "Manager", "Admin "})
	want := []string{"Admin", "HR", "Manager"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeRoles() = %v, want %v", got, want)
	}
}

func TestIntersect(t *testing.T) {
	got := Intersect([]string{"HR", "Manager"}, []string{"Employee", "Manager"})
	if !reflect.DeepEqual(got, []string{"Manager"}) {
		t.Errorf("Intersect() = %v, want [Manager]", got)
	}

	if got := Intersect([]string{"HR"}, []string{"Employee"}); len(got) != 0 {
		t.Errorf("Intersect() = %v, want empty", got)
	}
}

func TestBuilder_DefaultsInitialStateToFirstDeclared(t *testing.T) {
	def := sampleDefinition()
	if def.InitialState != "Draft" {
		t.Errorf("InitialState = %q, want Draft", def.InitialState)
	}
	if def.FormTemplateID != 1 {
		t.Errorf("FormTemplateID = %d, want 1", def.FormTemplateID)
	}
}

func TestBuilder_ExplicitInitialState(t *testing.T) {
	def := NewBuilder("Draft", "Open").Initial("Open").Build(2)
	if def.InitialState != "Open" {
		t.Errorf("InitialState = %q, want Open", def.InitialState)
	}
}

func TestBuilder_ConfigurePanicsOnUndeclaredState(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Configure() should panic on undeclared state")
		}
	}()

	NewBuilder("Draft").Configure("Missing")
}

func TestBuilder_PermitPanicsOnUndeclaredTarget(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("PermitAny() should panic on undeclared target")
		}
	}()

	NewBuilder("Draft").Configure("Draft").PermitAny("Missing", "Manager")
}

func TestNewGraph_Lookup(t *testing.T) {
	g, err := NewGraph(sampleDefinition())
	if err != nil {
		t.Fatalf("NewGraph() error = %v", err)
	}

	tr, ok := g.Lookup("Reviewed", "Approved")
	if !ok {
		t.Fatal("Lookup(Reviewed, Approved) not found")
	}
	if tr.LogicalType != entity.LogicalTypeAND {
		t.Errorf("LogicalType = %s, want AND", tr.LogicalType)
	}
	if !reflect.DeepEqual(tr.AllowedRoles, []string{"HR", "Manager"}) {
		t.Errorf("AllowedRoles = %v, want [HR Manager]", tr.AllowedRoles)
	}

	if _, ok := g.Lookup("Draft", "Approved"); ok {
		t.Error("Lookup(Draft, Approved) should not exist")
	}
	if _, ok := g.Lookup("Draft", "Draft"); ok {
		t.Error("self transition should never exist")
	}
}

func TestNewGraph_Outgoing(t *testing.T) {
	g, err := NewGraph(sampleDefinition())
	if err != nil {
		t.Fatalf("NewGraph() error = %v", err)
	}

	out := g.Outgoing("Reviewed")
	if len(out) != 2 {
		t.Fatalf("Outgoing(Reviewed) = %d transitions, want 2", len(out))
	}
	if out[0].ToState != "Approved" || out[1].ToState != "Rejected" {
		t.Errorf("Outgoing order = %s, %s", out[0].ToState, out[1].ToState)
	}

	if out := g.Outgoing("Approved"); len(out) != 0 {
		t.Errorf("Outgoing(Approved) = %v, want none", out)
	}
}

func TestNewGraph_AllowsCycles(t *testing.T) {
	g, err := NewGraph(sampleDefinition())
	if err != nil {
		t.Fatalf("NewGraph() error = %v", err)
	}
	if _, ok := g.Lookup("Rejected", "Draft"); !ok {
		t.Error("cyclic edge Rejected -> Draft should be kept")
	}
}

func TestGraph_StatesForRole(t *testing.T) {
	g, err := NewGraph(sampleDefinition())
	if err != nil {
		t.Fatalf("NewGraph() error = %v", err)
	}

	states := g.StatesForRole("HR")
	if !reflect.DeepEqual(states, []string{"Reviewed"}) {
		t.Errorf("StatesForRole(HR) = %v, want [Reviewed]", states)
	}
	if states := g.StatesForRole("Nobody"); len(states) != 0 {
		t.Errorf("StatesForRole(Nobody) = %v, want none", states)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		def  *entity.WorkflowDefinition
	}{
		{
			name: "no states",
			def:  &entity.WorkflowDefinition{},
		},
		{
			name: "empty state name",
			def:  &entity.WorkflowDefinition{States: []string{"Draft", " "}},
		},
		{
			name: "duplicate state",
			def:  &entity.WorkflowDefinition{States: []string{"Draft", "Draft"}},
		},
		{
			name: "initial state not declared",
			def:  &entity.WorkflowDefinition{States: []string{"Draft"}, InitialState: "Open"},
		},
		{
			name: "unknown target state",
			def: &entity.WorkflowDefinition{
				States: []string{"Draft"},
				Transitions: []entity.Transition{
					{FromState: "Draft", ToState: "Approved", AllowedRoles: []string{"Manager"}},
				},
			},
		},
		{
			name: "unknown source state",
			def: &entity.WorkflowDefinition{
				States: []string{"Draft"},
				Transitions: []entity.Transition{
					{FromState: "Ghost", ToState: "Draft", AllowedRoles: []string{"Manager"}},
				},
			},
		},
		{
			name: "self transition",
			def: &entity.WorkflowDefinition{
				States: []string{"Draft"},
				Transitions: []entity.Transition{
					{FromState: "Draft", ToState: "Draft", AllowedRoles: []string{"Manager"}},
				},
			},
		},
		{
			name: "empty allowed roles",
			def: &entity.WorkflowDefinition{
				States: []string{"Draft", "Done"},
				Transitions: []entity.Transition{
					{FromState: "Draft", ToState: "Done", AllowedRoles: []string{" "}},
				},
			},
		},
		{
			name: "unknown logical type",
			def: &entity.WorkflowDefinition{
				States: []string{"Draft", "Done"},
				Transitions: []entity.Transition{
					{FromState: "Draft", ToState: "Done", AllowedRoles: []string{"HR"}, LogicalType: "XOR"},
				},
			},
		},
		{
			name: "duplicate edge",
			def: &entity.WorkflowDefinition{
				States: []string{"Draft", "Done"},
				Transitions: []entity.Transition{
					{FromState: "Draft", ToState: "Done", AllowedRoles: []string{"HR"}},
					{FromState: "Draft", ToState: "Done", AllowedRoles: []string{"Manager"}, LogicalType: "and"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraph(tt.def)
			if err == nil {
				t.Fatal("expected error but got none")
			}
			if !errors.Is(err, ErrInvalidDefinition) {
				t.Errorf("error = %v, want ErrInvalidDefinition", err)
			}
		})
	}
}

func TestNormalize_ParsesLogicalType(t *testing.T) {
	def := Normalize(&entity.WorkflowDefinition{
		States: []string{" Draft ", "Done"},
		Transitions: []entity.Transition{
			{FromState: "Draft", ToState: "Done", AllowedRoles: []string{"HR"}, LogicalType: "and"},
			{FromState: "Done", ToState: "Draft", AllowedRoles: []string{"HR"}},
		},
	})

	if def.States[0] != "Draft" {
		t.Errorf("States[0] = %q, want trimmed Draft", def.States[0])
	}
	if def.Transitions[0].LogicalType != entity.LogicalTypeAND {
		t.Errorf("LogicalType = %s, want AND", def.Transitions[0].LogicalType)
	}
	if def.Transitions[1].LogicalType != entity.LogicalTypeOR {
		t.Errorf("empty LogicalType = %s, want OR", def.Transitions[1].LogicalType)
	}
}

func TestProgress(t *testing.T) {
	tr := entity.Transition{
		FromState:    "Reviewed",
		ToState:      "Approved",
		AllowedRoles: []string{"HR", "Manager"},
		LogicalType:  entity.LogicalTypeAND,
	}

	consented, remaining := Progress(tr, nil)
	if len(consented) != 0 || !reflect.DeepEqual(remaining, []string{"HR", "Manager"}) {
		t.Errorf("Progress(nil) = %v / %v", consented, remaining)
	}

	pending := &entity.PendingApproval{Consents: []entity.Consent{
		{Role: "HR", ActorID: "alice"},
		{Role: "Auditor", ActorID: "eve"},
	}}
	consented, remaining = Progress(tr, pending)
	if !reflect.DeepEqual(consented, []string{"HR"}) || !reflect.DeepEqual(remaining, []string{"Manager"}) {
		t.Errorf("Progress() = %v / %v", consented, remaining)
	}
	if Satisfied(tr, pending) {
		t.Error("Satisfied() should be false with Manager remaining")
	}

	pending.Consents = append(pending.Consents, entity.Consent{Role: "Manager", ActorID: "bob"})
	if !Satisfied(tr, pending) {
		t.Error("Satisfied() should be true once every role consented")
	}
}
