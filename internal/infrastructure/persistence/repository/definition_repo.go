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

// DefinitionRepository implements port.DefinitionRepository.
// A definition row and its transition rows are always written together.
type DefinitionRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewDefinitionRepository creates a new workflow definition repository
func NewDefinitionRepository(db *sqlite.DB, logger *zap.Logger) port.DefinitionRepository {
	return &DefinitionRepository{
		db:     db,
		logger: logger,
	}
}

const definitionColumns = `id, form_template_id, version, states, initial_state, created_by, created_at`

// Create inserts the definition and its transitions and sets their IDs
func (r *DefinitionRepository) Create(ctx context.Context, def *entity.WorkflowDefinition) error {
	states, err := marshalText(def.States)
	if err != nil {
		return fmt.Errorf("failed to encode states: %w", err)
	}

	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		result, err := r.db.Executor(txCtx).ExecContext(txCtx, `
			INSERT INTO workflow_definitions (
				form_template_id, version, states, initial_state, created_by, created_at
			) VALUES (?, ?, ?, ?, ?, ?)`,
			def.FormTemplateID, def.Version, states, def.InitialState, def.CreatedBy, def.CreatedAt.UTC(),
		)
		if err != nil {
			r.logger.Error("Failed to create workflow definition",
				zap.Int64("form_template_id", def.FormTemplateID),
				zap.Int("version", def.Version),
				zap.Error(err))
			return wrapErr("create workflow definition", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		def.ID = id

		return r.insertTransitions(txCtx, def)
	})
}

// GetByID retrieves a definition with its transitions, or nil
func (r *DefinitionRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	row := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT `+definitionColumns+` FROM workflow_definitions WHERE id = ?`, id)
	return r.getOne(ctx, row)
}

// GetLatestForTemplate returns the highest version bound to a template, or nil
func (r *DefinitionRepository) GetLatestForTemplate(ctx context.Context, formTemplateID int64) (*entity.WorkflowDefinition, error) {
	row := r.db.Executor(ctx).QueryRowContext(ctx, `
		SELECT `+definitionColumns+`
		FROM workflow_definitions
		WHERE form_template_id = ?
		ORDER BY version DESC
		LIMIT 1`, formTemplateID)
	return r.getOne(ctx, row)
}

// List returns every definition ordered by template and version
func (r *DefinitionRepository) List(ctx context.Context) ([]*entity.WorkflowDefinition, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, `
		SELECT `+definitionColumns+`
		FROM workflow_definitions
		ORDER BY form_template_id, version`)
	if err != nil {
		r.logger.Error("Failed to list workflow definitions", zap.Error(err))
		return nil, wrapErr("list workflow definitions", err)
	}

	defs := []*entity.WorkflowDefinition{}
	byID := make(map[int64]*entity.WorkflowDefinition)
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			rows.Close()
			return nil, wrapErr("scan workflow definition", err)
		}
		defs = append(defs, def)
		byID[def.ID] = def
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, wrapErr("iterate workflow definitions", err)
	}
	rows.Close()

	transitions, err := r.loadTransitions(ctx, `ORDER BY workflow_id, position`)
	if err != nil {
		return nil, err
	}
	for _, t := range transitions {
		if def, ok := byID[t.WorkflowID]; ok {
			def.Transitions = append(def.Transitions, t)
		}
	}

	return defs, nil
}

// Replace overwrites states, initial state and transitions in place
func (r *DefinitionRepository) Replace(ctx context.Context, def *entity.WorkflowDefinition) error {
	states, err := marshalText(def.States)
	if err != nil {
		return fmt.Errorf("failed to encode states: %w", err)
	}

	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := r.db.Executor(txCtx)

		if _, err := exec.ExecContext(txCtx,
			`UPDATE workflow_definitions SET states = ?, initial_state = ? WHERE id = ?`,
			states, def.InitialState, def.ID,
		); err != nil {
			r.logger.Error("Failed to replace workflow definition", zap.Int64("id", def.ID), zap.Error(err))
			return wrapErr("replace workflow definition", err)
		}

		if _, err := exec.ExecContext(txCtx,
			`DELETE FROM workflow_transitions WHERE workflow_id = ?`, def.ID,
		); err != nil {
			return wrapErr("delete transitions", err)
		}

		return r.insertTransitions(txCtx, def)
	})
}

// HasSubmissions reports whether any submission runs against the definition
func (r *DefinitionRepository) HasSubmissions(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM submissions WHERE workflow_id = ?)`, id,
	).Scan(&exists)
	if err != nil {
		return false, wrapErr("check definition references", err)
	}
	return exists, nil
}

func (r *DefinitionRepository) getOne(ctx context.Context, row *sql.Row) (*entity.WorkflowDefinition, error) {
	def, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow definition", zap.Error(err))
		return nil, wrapErr("get workflow definition", err)
	}

	transitions, err := r.loadTransitions(ctx, `WHERE workflow_id = ? ORDER BY position`, def.ID)
	if err != nil {
		return nil, err
	}
	def.Transitions = transitions

	return def, nil
}

func (r *DefinitionRepository) insertTransitions(ctx context.Context, def *entity.WorkflowDefinition) error {
	for i := range def.Transitions {
		t := &def.Transitions[i]

		roles, err := marshalText(t.AllowedRoles)
		if err != nil {
			return fmt.Errorf("failed to encode allowed roles: %w", err)
		}

		result, err := r.db.Executor(ctx).ExecContext(ctx, `
			INSERT INTO workflow_transitions (
				workflow_id, position, from_state, to_state, allowed_roles, logical_type
			) VALUES (?, ?, ?, ?, ?, ?)`,
			def.ID, i, t.FromState, t.ToState, roles, t.LogicalType.String(),
		)
		if err != nil {
			r.logger.Error("Failed to create transition",
				zap.Int64("workflow_id", def.ID),
				zap.String("from_state", t.FromState),
				zap.String("to_state", t.ToState),
				zap.Error(err))
			return wrapErr("create transition", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		t.ID = id
		t.WorkflowID = def.ID
	}
	return nil
}

func (r *DefinitionRepository) loadTransitions(ctx context.Context, clause string, args ...interface{}) ([]entity.Transition, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, `
		SELECT id, workflow_id, from_state, to_state, allowed_roles, logical_type
		FROM workflow_transitions `+clause, args...)
	if err != nil {
		r.logger.Error("Failed to load transitions", zap.Error(err))
		return nil, wrapErr("load transitions", err)
	}
	defer rows.Close()

	transitions := []entity.Transition{}
	for rows.Next() {
		var t entity.Transition
		var roles, logicalType string
		if err := rows.Scan(&t.ID, &t.WorkflowID, &t.FromState, &t.ToState, &roles, &logicalType); err != nil {
			return nil, wrapErr("scan transition", err)
		}
		if err := unmarshalText(roles, &t.AllowedRoles); err != nil {
			return nil, fmt.Errorf("invalid allowed roles for transition %d: %w", t.ID, err)
		}
		t.LogicalType = entity.LogicalType(logicalType)
		transitions = append(transitions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate transitions", err)
	}

	return transitions, nil
}

func scanDefinition(row rowScanner) (*entity.WorkflowDefinition, error) {
	var def entity.WorkflowDefinition
	var states string

	if err := row.Scan(
		&def.ID,
		&def.FormTemplateID,
		&def.Version,
		&states,
		&def.InitialState,
		&def.CreatedBy,
		&def.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := unmarshalText(states, &def.States); err != nil {
		return nil, fmt.Errorf("invalid states for definition %d: %w", def.ID, err)
	}
	def.Transitions = []entity.Transition{}
	return &def, nil
}

// Verify interface compliance
var _ port.DefinitionRepository = (*DefinitionRepository)(nil)
