package entity

import "time"

// TransitionRecord is an append-only audit entry for a submission
type TransitionRecord struct {
	ID           string      `json:"id"`
	SubmissionID int64       `json:"submission_id"`
	Action       string      `json:"action"`
	FromState    string      `json:"from_state"`
	ToState      string      `json:"to_state"`
	LogicalType  LogicalType `json:"logical_type,omitempty"`
	ActorID      string      `json:"actor_id"`
	ActorRoles   []string    `json:"actor_roles"`
	Consents     []Consent   `json:"consents,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}
