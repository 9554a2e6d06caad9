package workflow

import (
	"context"

	"github.com/garyjia/formflow/internal/domain/entity"
)

// Outcome tells whether a transition request moved the submission
type Outcome string

const (
	OutcomeCommitted Outcome = "COMMITTED"
	OutcomePending   Outcome = "PENDING"
)

// Actor is the verified identity behind a request
type Actor struct {
	ID    string
	Roles []string
}

// TransitionRequest asks the engine to move a submission to ToState.
// ExpectedState, when set, must equal the submission's current state.
type TransitionRequest struct {
	SubmissionID  int64
	ToState       string
	ExpectedState string
	Actor         Actor
}

// TransitionResult describes the effect of an accepted request
type TransitionResult struct {
	Outcome        Outcome  `json:"outcome"`
	SubmissionID   int64    `json:"submission_id"`
	FromState      string   `json:"from_state"`
	ToState        string   `json:"to_state"`
	CurrentState   string   `json:"current_state"`
	ConsentedRoles []string `json:"consented_roles"`
	RemainingRoles []string `json:"remaining_roles"`
}

// Engine validates and applies state transitions of submissions.
// It is the only writer of current_state and of the approval ledger.
type Engine interface {
	// RequestTransition applies or records consent for one transition.
	// Errors wrap ErrNotFound, ErrInvalidTransition, ErrUnauthorized or ErrConflict.
	RequestTransition(ctx context.Context, req TransitionRequest) (*TransitionResult, error)
}

// AvailableTransition is an outgoing transition annotated with ledger progress
type AvailableTransition struct {
	entity.Transition
	Consents       []entity.Consent `json:"consents"`
	ConsentedRoles []string         `json:"consented_roles"`
	RemainingRoles []string         `json:"remaining_roles"`
}

// ActionableBy reports whether holding roles lets the caller still act on
// the transition: some allowed role is held and has not consented yet
func (a AvailableTransition) ActionableBy(roles []string) bool {
	for _, r := range a.RemainingRoles {
		for _, held := range roles {
			if r == held {
				return true
			}
		}
	}
	return false
}

// TransitionOptions lists what a submission can do from its current state
type TransitionOptions struct {
	SubmissionID int64                 `json:"submission_id"`
	CurrentState string                `json:"current_state"`
	Transitions  []AvailableTransition `json:"transitions"`
}

// Query answers read-only questions about the workflow
type Query interface {
	// ListAvailableTransitions returns every transition out of the current state
	ListAvailableTransitions(ctx context.Context, submissionID int64) (*TransitionOptions, error)

	// ListPendingForRole returns submissions the role can still act on
	ListPendingForRole(ctx context.Context, role string) ([]*entity.Submission, error)

	// ListPendingForRoles is the de-duplicated union over roles, oldest first
	ListPendingForRoles(ctx context.Context, roles []string) ([]*entity.Submission, error)
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
