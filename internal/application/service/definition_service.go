package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/formflow/internal/application/port"
	"github.com/garyjia/formflow/internal/domain/entity"
	domainwf "github.com/garyjia/formflow/internal/domain/workflow"
)

// DefinitionInput is the caller-supplied part of a workflow definition
type DefinitionInput struct {
	FormTemplateID int64
	States         []string
	InitialState   string
	Transitions    []entity.Transition
}

// DefinitionService manages workflow definitions
type DefinitionService interface {
	// Create binds the first workflow version to a template
	Create(ctx context.Context, createdBy string, input DefinitionInput) (*entity.WorkflowDefinition, error)

	Get(ctx context.Context, id int64) (*entity.WorkflowDefinition, error)
	List(ctx context.Context) ([]*entity.WorkflowDefinition, error)

	// Update replaces an unused definition in place; once submissions run
	// against it a new version is created and the old one stays untouched
	Update(ctx context.Context, id int64, updatedBy string, input DefinitionInput) (*entity.WorkflowDefinition, error)
}

type definitionServiceImpl struct {
	templateRepo   port.TemplateRepository
	definitionRepo port.DefinitionRepository
	txManager      port.TransactionManager
	logger         Logger
}

// NewDefinitionService creates a new DefinitionService
func NewDefinitionService(
	templateRepo port.TemplateRepository,
	definitionRepo port.DefinitionRepository,
	txManager port.TransactionManager,
	logger Logger,
) DefinitionService {
	return &definitionServiceImpl{
		templateRepo:   templateRepo,
		definitionRepo: definitionRepo,
		txManager:      txManager,
		logger:         orNop(logger),
	}
}

func (s *definitionServiceImpl) Create(ctx context.Context, createdBy string, input DefinitionInput) (*entity.WorkflowDefinition, error) {
	def, err := buildDefinition(input)
	if err != nil {
		return nil, err
	}
	def.Version = 1
	def.CreatedBy = createdBy
	def.CreatedAt = time.Now().UTC()

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		tmpl, err := s.templateRepo.GetByID(txCtx, input.FormTemplateID)
		if err != nil {
			return err
		}
		if tmpl == nil {
			return fmt.Errorf("%w: form template %d", domainwf.ErrNotFound, input.FormTemplateID)
		}

		existing, err := s.definitionRepo.GetLatestForTemplate(txCtx, input.FormTemplateID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: form template %d already has workflow %d; update it instead",
				domainwf.ErrConflict, input.FormTemplateID, existing.ID)
		}

		return s.definitionRepo.Create(txCtx, def)
	})
	if err != nil {
		s.logger.Error("Failed to create workflow definition", "error", err, "form_template_id", input.FormTemplateID)
		return nil, err
	}

	s.logger.Info("Workflow definition created",
		"id", def.ID,
		"form_template_id", def.FormTemplateID,
		"states", len(def.States),
		"transitions", len(def.Transitions),
	)
	return def, nil
}

func (s *definitionServiceImpl) Get(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	def, err := s.definitionRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get workflow definition", "error", err, "id", id)
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("%w: workflow definition %d", domainwf.ErrNotFound, id)
	}
	return def, nil
}

func (s *definitionServiceImpl) List(ctx context.Context) ([]*entity.WorkflowDefinition, error) {
	return s.definitionRepo.List(ctx)
}

func (s *definitionServiceImpl) Update(ctx context.Context, id int64, updatedBy string, input DefinitionInput) (*entity.WorkflowDefinition, error) {
	var result *entity.WorkflowDefinition
	var versioned bool

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := s.definitionRepo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("%w: workflow definition %d", domainwf.ErrNotFound, id)
		}

		if input.FormTemplateID != 0 && input.FormTemplateID != current.FormTemplateID {
			return fmt.Errorf("%w: a workflow cannot move to another form template", ErrInvalidInput)
		}
		input.FormTemplateID = current.FormTemplateID

		latest, err := s.definitionRepo.GetLatestForTemplate(txCtx, current.FormTemplateID)
		if err != nil {
			return err
		}
		if latest != nil && latest.ID != current.ID {
			return fmt.Errorf("%w: workflow definition %d was superseded by %d",
				domainwf.ErrConflict, current.ID, latest.ID)
		}

		def, err := buildDefinition(input)
		if err != nil {
			return err
		}

		inUse, err := s.definitionRepo.HasSubmissions(txCtx, id)
		if err != nil {
			return err
		}

		if !inUse {
			def.ID = current.ID
			def.Version = current.Version
			def.CreatedBy = current.CreatedBy
			def.CreatedAt = current.CreatedAt
			if err := s.definitionRepo.Replace(txCtx, def); err != nil {
				return err
			}
			result = def
			return nil
		}

		def.Version = current.Version + 1
		def.CreatedBy = updatedBy
		def.CreatedAt = time.Now().UTC()
		if err := s.definitionRepo.Create(txCtx, def); err != nil {
			return err
		}
		result = def
		versioned = true
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to update workflow definition", "error", err, "id", id)
		return nil, err
	}

	s.logger.Info("Workflow definition updated",
		"id", result.ID,
		"previous_id", id,
		"version", result.Version,
		"new_version", versioned,
	)
	return result, nil
}

// buildDefinition normalizes and validates caller input
func buildDefinition(input DefinitionInput) (*entity.WorkflowDefinition, error) {
	if input.FormTemplateID <= 0 {
		return nil, fmt.Errorf("%w: form_template_id is required", ErrInvalidInput)
	}

	def := domainwf.Normalize(&entity.WorkflowDefinition{
		FormTemplateID: input.FormTemplateID,
		States:         input.States,
		InitialState:   input.InitialState,
		Transitions:    input.Transitions,
	})
	if err := domainwf.Validate(def); err != nil {
		return nil, err
	}
	for i := range def.Transitions {
		def.Transitions[i].ID = 0
		def.Transitions[i].WorkflowID = 0
	}
	return def, nil
}
