package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/formflow/internal/application/port"
	"github.com/garyjia/formflow/internal/domain/entity"
	"github.com/garyjia/formflow/internal/infrastructure/persistence/sqlite"
)

// TemplateRepository implements port.TemplateRepository
type TemplateRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *sqlite.DB, logger *zap.Logger) port.TemplateRepository {
	return &TemplateRepository{
		db:     db,
		logger: logger,
	}
}

const templateColumns = `id, name, schema, created_by, created_at`

// Create inserts a form template and sets its ID
func (r *TemplateRepository) Create(ctx context.Context, tmpl *entity.FormTemplate) error {
	schema, err := marshalText(tmpl.Schema)
	if err != nil {
		return fmt.Errorf("failed to encode template schema: %w", err)
	}

	result, err := r.db.Executor(ctx).ExecContext(ctx,
		`INSERT INTO form_templates (name, schema, created_by, created_at) VALUES (?, ?, ?, ?)`,
		tmpl.Name, schema, tmpl.CreatedBy, tmpl.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create template", zap.String("name", tmpl.Name), zap.Error(err))
		return wrapErr("create template", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	tmpl.ID = id
	return nil
}

// GetByID retrieves a template, or nil when it does not exist
func (r *TemplateRepository) GetByID(ctx context.Context, id int64) (*entity.FormTemplate, error) {
	row := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM form_templates WHERE id = ?`, id)

	tmpl, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get template by ID", zap.Int64("id", id), zap.Error(err))
		return nil, wrapErr("get template", err)
	}
	return tmpl, nil
}

// List returns every template ordered by ID
func (r *TemplateRepository) List(ctx context.Context) ([]*entity.FormTemplate, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx,
		`SELECT `+templateColumns+` FROM form_templates ORDER BY id`)
	if err != nil {
		r.logger.Error("Failed to list templates", zap.Error(err))
		return nil, wrapErr("list templates", err)
	}
	defer rows.Close()

	templates := []*entity.FormTemplate{}
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, wrapErr("scan template", err)
		}
		templates = append(templates, tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate templates", err)
	}

	return templates, nil
}

// Update overwrites name and schema
func (r *TemplateRepository) Update(ctx context.Context, tmpl *entity.FormTemplate) error {
	schema, err := marshalText(tmpl.Schema)
	if err != nil {
		return fmt.Errorf("failed to encode template schema: %w", err)
	}

	_, err = r.db.Executor(ctx).ExecContext(ctx,
		`UPDATE form_templates SET name = ?, schema = ? WHERE id = ?`,
		tmpl.Name, schema, tmpl.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update template", zap.Int64("id", tmpl.ID), zap.Error(err))
		return wrapErr("update template", err)
	}
	return nil
}

// IsReferenced reports whether any workflow definition is bound to the template
func (r *TemplateRepository) IsReferenced(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM workflow_definitions WHERE form_template_id = ?)`, id,
	).Scan(&exists)
	if err != nil {
		return false, wrapErr("check template references", err)
	}
	return exists, nil
}

func scanTemplate(row rowScanner) (*entity.FormTemplate, error) {
	var tmpl entity.FormTemplate
	var schema string

	if err := row.Scan(&tmpl.ID, &tmpl.Name, &schema, &tmpl.CreatedBy, &tmpl.CreatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalText(schema, &tmpl.Schema); err != nil {
		return nil, fmt.Errorf("invalid schema for template %d: %w", tmpl.ID, err)
	}
	if tmpl.Schema.Fields == nil {
		tmpl.Schema.Fields = []entity.FieldDescriptor{}
	}
	return &tmpl, nil
}

// Verify interface compliance
var _ port.TemplateRepository = (*TemplateRepository)(nil)
