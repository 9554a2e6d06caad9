package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/formflow/internal/application/port"
	"github.com/garyjia/formflow/internal/domain/entity"
	"github.com/garyjia/formflow/internal/infrastructure/persistence/sqlite"
)

// SubmissionRepository implements port.SubmissionRepository
type SubmissionRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewSubmissionRepository creates a new submission repository
func NewSubmissionRepository(db *sqlite.DB, logger *zap.Logger) port.SubmissionRepository {
	return &SubmissionRepository{
		db:     db,
		logger: logger,
	}
}

const submissionColumns = `id, form_template_id, workflow_id, data, submitted_by,
	current_state, version, submitted_at, updated_at`

// Create inserts a submission at version 1 and sets its ID
func (r *SubmissionRepository) Create(ctx context.Context, sub *entity.Submission) error {
	if sub.Data == nil {
		sub.Data = map[string]interface{}{}
	}
	data, err := marshalText(sub.Data)
	if err != nil {
		return fmt.Errorf("failed to encode submission data: %w", err)
	}

	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now().UTC()
	}
	sub.UpdatedAt = sub.SubmittedAt
	sub.Version = 1

	result, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO submissions (
			form_template_id, workflow_id, data, submitted_by,
			current_state, version, submitted_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.FormTemplateID, sub.WorkflowID, data, sub.SubmittedBy,
		sub.CurrentState, sub.Version, sub.SubmittedAt.UTC(), sub.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create submission", zap.String("submitted_by", sub.SubmittedBy), zap.Error(err))
		return wrapErr("create submission", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	sub.ID = id
	return nil
}

// GetByID retrieves a submission, or nil when it does not exist
func (r *SubmissionRepository) GetByID(ctx context.Context, id int64) (*entity.Submission, error) {
	row := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)

	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get submission by ID", zap.Int64("id", id), zap.Error(err))
		return nil, wrapErr("get submission", err)
	}
	return sub, nil
}

// ListBySubmitter returns a user's submissions, newest first
func (r *SubmissionRepository) ListBySubmitter(ctx context.Context, submittedBy string) ([]*entity.Submission, error) {
	return r.query(ctx, "list submissions by submitter", `
		SELECT `+submissionColumns+`
		FROM submissions
		WHERE submitted_by = ?
		ORDER BY submitted_at DESC, id DESC`, submittedBy)
}

// ListByStates returns submissions of one definition in any of the states,
// oldest first
func (r *SubmissionRepository) ListByStates(ctx context.Context, workflowID int64, states []string) ([]*entity.Submission, error) {
	if len(states) == 0 {
		return []*entity.Submission{}, nil
	}

	args := make([]interface{}, 0, len(states)+1)
	args = append(args, workflowID)
	for _, s := range states {
		args = append(args, s)
	}

	return r.query(ctx, "list submissions by state", `
		SELECT `+submissionColumns+`
		FROM submissions
		WHERE workflow_id = ? AND current_state IN (`+placeholders(len(states))+`)
		ORDER BY submitted_at, id`, args...)
}

// List returns submissions with pagination, oldest first
func (r *SubmissionRepository) List(ctx context.Context, limit, offset int) ([]*entity.Submission, error) {
	return r.query(ctx, "list submissions", `
		SELECT `+submissionColumns+`
		FROM submissions
		ORDER BY id
		LIMIT ? OFFSET ?`, limit, offset)
}

// CompareAndSetState changes the state only if the version still matches
func (r *SubmissionRepository) CompareAndSetState(ctx context.Context, id, expectedVersion int64, newState string) (bool, error) {
	result, err := r.db.Executor(ctx).ExecContext(ctx, `
		UPDATE submissions
		SET current_state = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		newState, time.Now().UTC(), id, expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update submission state",
			zap.Int64("id", id),
			zap.String("state", newState),
			zap.Error(err))
		return false, wrapErr("update submission state", err)
	}
	return affectedOne(result)
}

// BumpVersion increments the version only if it still matches
func (r *SubmissionRepository) BumpVersion(ctx context.Context, id, expectedVersion int64) (bool, error) {
	result, err := r.db.Executor(ctx).ExecContext(ctx, `
		UPDATE submissions
		SET version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		time.Now().UTC(), id, expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to bump submission version", zap.Int64("id", id), zap.Error(err))
		return false, wrapErr("bump submission version", err)
	}
	return affectedOne(result)
}

func (r *SubmissionRepository) query(ctx context.Context, op, query string, args ...interface{}) ([]*entity.Submission, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query submissions", zap.String("op", op), zap.Error(err))
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	subs := []*entity.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, wrapErr("scan submission", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}

	return subs, nil
}

func affectedOne(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func scanSubmission(row rowScanner) (*entity.Submission, error) {
	var sub entity.Submission
	var data string

	if err := row.Scan(
		&sub.ID,
		&sub.FormTemplateID,
		&sub.WorkflowID,
		&data,
		&sub.SubmittedBy,
		&sub.CurrentState,
		&sub.Version,
		&sub.SubmittedAt,
		&sub.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := unmarshalText(data, &sub.Data); err != nil {
		return nil, fmt.Errorf("invalid data for submission %d: %w", sub.ID, err)
	}
	if sub.Data == nil {
		sub.Data = map[string]interface{}{}
	}
	return &sub, nil
}

// Verify interface compliance
var _ port.SubmissionRepository = (*SubmissionRepository)(nil)
