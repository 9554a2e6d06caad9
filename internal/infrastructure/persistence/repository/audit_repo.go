package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/formflow/internal/application/port"
	"github.com/garyjia/formflow/internal/domain/entity"
	"github.com/garyjia/formflow/internal/infrastructure/persistence/sqlite"
)

// AuditRepository implements port.AuditRepository. Records are never
// updated or deleted.
type AuditRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit trail repository
func NewAuditRepository(db *sqlite.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

const auditColumns = `id, submission_id, action, from_state, to_state, logical_type,
	actor_id, actor_roles, consents, created_at`

// Create appends a record, assigning a UUID when ID is empty
func (r *AuditRepository) Create(ctx context.Context, record *entity.TransitionRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.ActorRoles == nil {
		record.ActorRoles = []string{}
	}
	if record.Consents == nil {
		record.Consents = []entity.Consent{}
	}

	roles, err := marshalText(record.ActorRoles)
	if err != nil {
		return fmt.Errorf("failed to encode actor roles: %w", err)
	}
	consents, err := marshalText(record.Consents)
	if err != nil {
		return fmt.Errorf("failed to encode consents: %w", err)
	}

	_, err = r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO transition_audit (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.SubmissionID, record.Action, record.FromState, record.ToState,
		record.LogicalType.String(), record.ActorID, roles, consents, record.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create audit record",
			zap.Int64("submission_id", record.SubmissionID),
			zap.String("action", record.Action),
			zap.Error(err))
		return wrapErr("create audit record", err)
	}
	return nil
}

// ListBySubmission returns a submission's trail in the order it was written
func (r *AuditRepository) ListBySubmission(ctx context.Context, submissionID int64) ([]*entity.TransitionRecord, error) {
	return r.query(ctx, "list audit records by submission", `
		SELECT `+auditColumns+`
		FROM transition_audit
		WHERE submission_id = ?
		ORDER BY created_at, rowid`, submissionID)
}

// List returns audit records with pagination in write order
func (r *AuditRepository) List(ctx context.Context, limit, offset int) ([]*entity.TransitionRecord, error) {
	return r.query(ctx, "list audit records", `
		SELECT `+auditColumns+`
		FROM transition_audit
		ORDER BY created_at, rowid
		LIMIT ? OFFSET ?`, limit, offset)
}

func (r *AuditRepository) query(ctx context.Context, op, query string, args ...interface{}) ([]*entity.TransitionRecord, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query audit records", zap.String("op", op), zap.Error(err))
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	records := []*entity.TransitionRecord{}
	for rows.Next() {
		var rec entity.TransitionRecord
		var logicalType, roles, consents string
		if err := rows.Scan(
			&rec.ID,
			&rec.SubmissionID,
			&rec.Action,
			&rec.FromState,
			&rec.ToState,
			&logicalType,
			&rec.ActorID,
			&roles,
			&consents,
			&rec.CreatedAt,
		); err != nil {
			return nil, wrapErr("scan audit record", err)
		}
		rec.LogicalType = entity.LogicalType(logicalType)
		if err := unmarshalText(roles, &rec.ActorRoles); err != nil {
			return nil, fmt.Errorf("invalid actor roles in audit record %s: %w", rec.ID, err)
		}
		if err := unmarshalText(consents, &rec.Consents); err != nil {
			return nil, fmt.Errorf("invalid consents in audit record %s: %w", rec.ID, err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}

	return records, nil
}

// Verify interface compliance
var _ port.AuditRepository = (*AuditRepository)(nil)
