package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/formflow/internal/application/port"
	"github.com/garyjia/formflow/internal/domain/entity"
	domainwf "github.com/garyjia/formflow/internal/domain/workflow"
)

// TemplateUpdate carries the fields to change; nil fields are kept
type TemplateUpdate struct {
	Name   *string
	Schema *entity.TemplateSchema
}

// TemplateService manages form templates
type TemplateService interface {
	Create(ctx context.Context, createdBy, name string, schema entity.TemplateSchema) (*entity.FormTemplate, error)
	Get(ctx context.Context, id int64) (*entity.FormTemplate, error)
	List(ctx context.Context) ([]*entity.FormTemplate, error)

	// Update fails with ErrConflict once a workflow definition uses the template
	Update(ctx context.Context, id int64, update TemplateUpdate) (*entity.FormTemplate, error)
}

type templateServiceImpl struct {
	templateRepo port.TemplateRepository
	txManager    port.TransactionManager
	logger       Logger
}

// NewTemplateService creates a new TemplateService
func NewTemplateService(
	templateRepo port.TemplateRepository,
	txManager port.TransactionManager,
	logger Logger,
) TemplateService {
	return &templateServiceImpl{
		templateRepo: templateRepo,
		txManager:    txManager,
		logger:       orNop(logger),
	}
}

func (s *templateServiceImpl) Create(ctx context.Context, createdBy, name string, schema entity.TemplateSchema) (*entity.FormTemplate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: template name is required", ErrInvalidInput)
	}
	schema, err := normalizeSchema(schema)
	if err != nil {
		return nil, err
	}

	tmpl := &entity.FormTemplate{
		Name:      name,
		Schema:    schema,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.templateRepo.Create(ctx, tmpl); err != nil {
		s.logger.Error("Failed to create template", "error", err, "name", name)
		return nil, err
	}

	s.logger.Info("Template created", "id", tmpl.ID, "name", name, "created_by", createdBy)
	return tmpl, nil
}

func (s *templateServiceImpl) Get(ctx context.Context, id int64) (*entity.FormTemplate, error) {
	tmpl, err := s.templateRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get template", "error", err, "id", id)
		return nil, err
	}
	if tmpl == nil {
		return nil, fmt.Errorf("%w: form template %d", domainwf.ErrNotFound, id)
	}
	return tmpl, nil
}

func (s *templateServiceImpl) List(ctx context.Context) ([]*entity.FormTemplate, error) {
	return s.templateRepo.List(ctx)
}

func (s *templateServiceImpl) Update(ctx context.Context, id int64, update TemplateUpdate) (*entity.FormTemplate, error) {
	var updated *entity.FormTemplate

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		tmpl, err := s.templateRepo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if tmpl == nil {
			return fmt.Errorf("%w: form template %d", domainwf.ErrNotFound, id)
		}

		referenced, err := s.templateRepo.IsReferenced(txCtx, id)
		if err != nil {
			return err
		}
		if referenced {
			return fmt.Errorf("%w: form template %d is used by a workflow", domainwf.ErrConflict, id)
		}

		if update.Name != nil {
			name := strings.TrimSpace(*update.Name)
			if name == "" {
				return fmt.Errorf("%w: template name is required", ErrInvalidInput)
			}
			tmpl.Name = name
		}
		if update.Schema != nil {
			schema, err := normalizeSchema(*update.Schema)
			if err != nil {
				return err
			}
			tmpl.Schema = schema
		}

		if err := s.templateRepo.Update(txCtx, tmpl); err != nil {
			return err
		}
		updated = tmpl
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to update template", "error", err, "id", id)
		return nil, err
	}

	s.logger.Info("Template updated", "id", id)
	return updated, nil
}

// normalizeSchema trims field names, defaults an empty type to text and
// rejects empty, duplicate or unknown fields
func normalizeSchema(schema entity.TemplateSchema) (entity.TemplateSchema, error) {
	out := entity.TemplateSchema{Fields: make([]entity.FieldDescriptor, 0, len(schema.Fields))}
	seen := make(map[string]struct{}, len(schema.Fields))

	for _, f := range schema.Fields {
		f.Name = strings.TrimSpace(f.Name)
		if f.Name == "" {
			return out, fmt.Errorf("%w: field name is required", ErrInvalidInput)
		}
		if _, dup := seen[f.Name]; dup {
			return out, fmt.Errorf("%w: duplicate field %q", ErrInvalidInput, f.Name)
		}
		seen[f.Name] = struct{}{}

		f.Type = entity.FieldType(strings.ToLower(strings.TrimSpace(string(f.Type))))
		if f.Type == "" {
			f.Type = entity.FieldTypeText
		}
		if !f.Type.IsValid() {
			return out, fmt.Errorf("%w: field %q has unknown type %q", ErrInvalidInput, f.Name, f.Type)
		}

		out.Fields = append(out.Fields, f)
	}

	return out, nil
}
