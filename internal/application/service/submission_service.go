package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/formflow/internal/application/dispatcher"
	"github.com/garyjia/formflow/internal/application/port"
	appwf "github.com/garyjia/formflow/internal/application/workflow"
	"github.com/garyjia/formflow/internal/domain/entity"
	"github.com/garyjia/formflow/internal/domain/event"
	domainwf "github.com/garyjia/formflow/internal/domain/workflow"
)

// SubmissionService creates submissions and reads them back
type SubmissionService interface {
	// Submit starts a submission at the initial state of the template's latest workflow
	Submit(ctx context.Context, actor appwf.Actor, formTemplateID int64, data map[string]interface{}) (*entity.Submission, error)

	Get(ctx context.Context, id int64) (*entity.Submission, error)
	ListMine(ctx context.Context, actor appwf.Actor) ([]*entity.Submission, error)

	// History returns the audit trail of a submission oldest first
	History(ctx context.Context, id int64) ([]*entity.TransitionRecord, error)
}

type submissionServiceImpl struct {
	templateRepo   port.TemplateRepository
	definitionRepo port.DefinitionRepository
	submissionRepo port.SubmissionRepository
	auditRepo      port.AuditRepository
	txManager      port.TransactionManager
	dispatcher     dispatcher.Dispatcher
	logger         Logger
}

// NewSubmissionService creates a new SubmissionService. The dispatcher may be nil.
func NewSubmissionService(
	templateRepo port.TemplateRepository,
	definitionRepo port.DefinitionRepository,
	submissionRepo port.SubmissionRepository,
	auditRepo port.AuditRepository,
	txManager port.TransactionManager,
	d dispatcher.Dispatcher,
	logger Logger,
) SubmissionService {
	return &submissionServiceImpl{
		templateRepo:   templateRepo,
		definitionRepo: definitionRepo,
		submissionRepo: submissionRepo,
		auditRepo:      auditRepo,
		txManager:      txManager,
		dispatcher:     d,
		logger:         orNop(logger),
	}
}

func (s *submissionServiceImpl) Submit(ctx context.Context, actor appwf.Actor, formTemplateID int64, data map[string]interface{}) (*entity.Submission, error) {
	if actor.ID == "" {
		return nil, fmt.Errorf("%w: actor identity is required", domainwf.ErrUnauthorized)
	}
	if data == nil {
		data = map[string]interface{}{}
	}

	now := time.Now().UTC()
	var sub *entity.Submission

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		tmpl, err := s.templateRepo.GetByID(txCtx, formTemplateID)
		if err != nil {
			return err
		}
		if tmpl == nil {
			return fmt.Errorf("%w: form template %d", domainwf.ErrNotFound, formTemplateID)
		}

		def, err := s.definitionRepo.GetLatestForTemplate(txCtx, formTemplateID)
		if err != nil {
			return err
		}
		if def == nil {
			return fmt.Errorf("%w: no workflow defined for form template %d", domainwf.ErrNotFound, formTemplateID)
		}

		sub = &entity.Submission{
			FormTemplateID: tmpl.ID,
			WorkflowID:     def.ID,
			Data:           data,
			SubmittedBy:    actor.ID,
			CurrentState:   def.InitialState,
			SubmittedAt:    now,
		}
		if err := s.submissionRepo.Create(txCtx, sub); err != nil {
			return err
		}

		return s.auditRepo.Create(txCtx, &entity.TransitionRecord{
			SubmissionID: sub.ID,
			Action:       entity.ActionSubmit,
			ToState:      sub.CurrentState,
			ActorID:      actor.ID,
			ActorRoles:   domainwf.NormalizeRoles(actor.Roles),
			CreatedAt:    now,
		})
	})
	if err != nil {
		s.logger.Error("Failed to submit form", "error", err, "form_template_id", formTemplateID, "actor_id", actor.ID)
		return nil, err
	}

	s.logger.Info("Form submitted",
		"submission_id", sub.ID,
		"form_template_id", formTemplateID,
		"workflow_id", sub.WorkflowID,
		"state", sub.CurrentState,
	)

	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.FromContext(ctx, event.TypeSubmissionCreated, sub.ID, map[string]interface{}{
			"form_template_id": sub.FormTemplateID,
			"workflow_id":      sub.WorkflowID,
			"state":            sub.CurrentState,
			"actor_id":         actor.ID,
		}))
	}

	return sub, nil
}

func (s *submissionServiceImpl) Get(ctx context.Context, id int64) (*entity.Submission, error) {
	sub, err := s.submissionRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get submission", "error", err, "id", id)
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("%w: submission %d", domainwf.ErrNotFound, id)
	}
	return sub, nil
}

func (s *submissionServiceImpl) ListMine(ctx context.Context, actor appwf.Actor) ([]*entity.Submission, error) {
	return s.submissionRepo.ListBySubmitter(ctx, actor.ID)
}

func (s *submissionServiceImpl) History(ctx context.Context, id int64) ([]*entity.TransitionRecord, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.auditRepo.ListBySubmission(ctx, id)
}
