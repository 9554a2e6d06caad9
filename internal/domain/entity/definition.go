package entity

import (
	"strings"
	"time"
)

// LogicalType decides how the allowed roles of a transition are combined
type LogicalType string

// ParseLogicalType normalizes user input; an empty value means OR
func ParseLogicalType(s string) LogicalType {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return LogicalTypeOR
	}
	return LogicalType(s)
}

// IsValid reports whether the logical type is OR or AND
func (t LogicalType) IsValid() bool {
	return t == LogicalTypeOR || t == LogicalTypeAND
}

// String returns the string representation of the logical type
func (t LogicalType) String() string {
	return string(t)
}

// Transition is a role-gated edge between two workflow states
type Transition struct {
	ID           int64       `json:"id,omitempty"`
	WorkflowID   int64       `json:"workflow_id,omitempty"`
	FromState    string      `json:"from_state"`
	ToState      string      `json:"to_state"`
	AllowedRoles []string    `json:"allowed_roles"`
	LogicalType  LogicalType `json:"logical_type"`
}

// WorkflowDefinition is a versioned state graph bound to a form template.
// A definition referenced by at least one submission is never modified;
// edits produce a new version instead.
type WorkflowDefinition struct {
	ID             int64        `json:"id"`
	FormTemplateID int64        `json:"form_template_id"`
	Version        int          `json:"version"`
	States         []string     `json:"states"`
	InitialState   string       `json:"initial_state"`
	Transitions    []Transition `json:"transitions"`
	CreatedBy      string       `json:"created_by"`
	CreatedAt      time.Time    `json:"created_at"`
}
