package port

import (
	"context"

	"github.com/garyjia/formflow/internal/domain/entity"
)

// Repositories return (nil, nil) when a single row lookup finds nothing.

// TemplateRepository defines persistence operations for FormTemplate
type TemplateRepository interface {
	Create(ctx context.Context, tmpl *entity.FormTemplate) error
	GetByID(ctx context.Context, id int64) (*entity.FormTemplate, error)
	List(ctx context.Context) ([]*entity.FormTemplate, error)
	Update(ctx context.Context, tmpl *entity.FormTemplate) error

	// IsReferenced reports whether any workflow definition points at the template
	IsReferenced(ctx context.Context, id int64) (bool, error)
}

// DefinitionRepository defines persistence operations for WorkflowDefinition.
// Transitions are stored and loaded together with their definition.
type DefinitionRepository interface {
	Create(ctx context.Context, def *entity.WorkflowDefinition) error
	GetByID(ctx context.Context, id int64) (*entity.WorkflowDefinition, error)

	// GetLatestForTemplate returns the highest version bound to a template
	GetLatestForTemplate(ctx context.Context, formTemplateID int64) (*entity.WorkflowDefinition, error)

	List(ctx context.Context) ([]*entity.WorkflowDefinition, error)

	// Replace overwrites states and transitions of an unreferenced definition
	Replace(ctx context.Context, def *entity.WorkflowDefinition) error

	// HasSubmissions reports whether any submission runs against the definition
	HasSubmissions(ctx context.Context, id int64) (bool, error)
}

// SubmissionRepository defines persistence operations for Submission
type SubmissionRepository interface {
	Create(ctx context.Context, sub *entity.Submission) error
	GetByID(ctx context.Context, id int64) (*entity.Submission, error)
	ListBySubmitter(ctx context.Context, submittedBy string) ([]*entity.Submission, error)

	// ListByStates returns submissions of a definition sitting in any of the states
	ListByStates(ctx context.Context, workflowID int64, states []string) ([]*entity.Submission, error)

	List(ctx context.Context, limit, offset int) ([]*entity.Submission, error)

	// CompareAndSetState moves the submission to newState and bumps its version
	// only if the stored version still equals expectedVersion
	CompareAndSetState(ctx context.Context, id, expectedVersion int64, newState string) (bool, error)

	// BumpVersion increments the version if it still equals expectedVersion
	BumpVersion(ctx context.Context, id, expectedVersion int64) (bool, error)
}

// ApprovalRepository defines persistence operations for the approval ledger
type ApprovalRepository interface {
	// Get returns the ledger entry for one transition attempt, or nil
	Get(ctx context.Context, submissionID int64, fromState, toState string) (*entity.PendingApproval, error)

	// ListBySubmission returns every open ledger entry of a submission
	ListBySubmission(ctx context.Context, submissionID int64) ([]*entity.PendingApproval, error)

	// AddConsent records a role's consent; a role already present is left untouched
	AddConsent(ctx context.Context, submissionID int64, fromState, toState string, consent entity.Consent) error

	// DeleteFromState drops every entry keyed to (submission, fromState, *)
	DeleteFromState(ctx context.Context, submissionID int64, fromState string) (int64, error)
}

// AuditRepository defines persistence operations for TransitionRecord
type AuditRepository interface {
	Create(ctx context.Context, record *entity.TransitionRecord) error
	ListBySubmission(ctx context.Context, submissionID int64) ([]*entity.TransitionRecord, error)
	List(ctx context.Context, limit, offset int) ([]*entity.TransitionRecord, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
