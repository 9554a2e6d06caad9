package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/formflow/internal/application/port"
	"github.com/garyjia/formflow/internal/domain/entity"
	"github.com/garyjia/formflow/internal/infrastructure/persistence/sqlite"
)

// ApprovalRepository implements port.ApprovalRepository.
// Each consent is one row; an entry is the group of rows sharing
// (submission_id, from_state, to_state).
type ApprovalRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval ledger repository
func NewApprovalRepository(db *sqlite.DB, logger *zap.Logger) port.ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

// Get returns the ledger entry for one transition attempt, or nil
func (r *ApprovalRepository) Get(ctx context.Context, submissionID int64, fromState, toState string) (*entity.PendingApproval, error) {
	entries, err := r.load(ctx, `
		WHERE submission_id = ? AND from_state = ? AND to_state = ?`,
		submissionID, fromState, toState)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0], nil
}

// ListBySubmission returns every open entry of a submission
func (r *ApprovalRepository) ListBySubmission(ctx context.Context, submissionID int64) ([]*entity.PendingApproval, error) {
	return r.load(ctx, `WHERE submission_id = ?`, submissionID)
}

// AddConsent records a consent; the first consent per role is kept
func (r *ApprovalRepository) AddConsent(ctx context.Context, submissionID int64, fromState, toState string, consent entity.Consent) error {
	_, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT OR IGNORE INTO pending_approvals (
			submission_id, from_state, to_state, role, actor_id, consented_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		submissionID, fromState, toState, consent.Role, consent.ActorID, consent.ConsentedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to record consent",
			zap.Int64("submission_id", submissionID),
			zap.String("from_state", fromState),
			zap.String("to_state", toState),
			zap.String("role", consent.Role),
			zap.Error(err))
		return wrapErr("record consent", err)
	}
	return nil
}

// DeleteFromState removes every entry leaving fromState and returns how many
// entries (not consent rows) were dropped
func (r *ApprovalRepository) DeleteFromState(ctx context.Context, submissionID int64, fromState string) (int64, error) {
	exec := r.db.Executor(ctx)

	var entries int64
	if err := exec.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT to_state) FROM pending_approvals
		WHERE submission_id = ? AND from_state = ?`,
		submissionID, fromState,
	).Scan(&entries); err != nil {
		return 0, wrapErr("count pending approvals", err)
	}

	if _, err := exec.ExecContext(ctx, `
		DELETE FROM pending_approvals WHERE submission_id = ? AND from_state = ?`,
		submissionID, fromState,
	); err != nil {
		r.logger.Error("Failed to delete pending approvals",
			zap.Int64("submission_id", submissionID),
			zap.String("from_state", fromState),
			zap.Error(err))
		return 0, wrapErr("delete pending approvals", err)
	}

	return entries, nil
}

func (r *ApprovalRepository) load(ctx context.Context, where string, args ...interface{}) ([]*entity.PendingApproval, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, `
		SELECT submission_id, from_state, to_state, role, actor_id, consented_at
		FROM pending_approvals `+where+`
		ORDER BY from_state, to_state, consented_at, rowid`, args...)
	if err != nil {
		r.logger.Error("Failed to load pending approvals", zap.Error(err))
		return nil, wrapErr("load pending approvals", err)
	}
	defer rows.Close()

	type key struct{ from, to string }
	index := make(map[key]*entity.PendingApproval)
	entries := []*entity.PendingApproval{}

	for rows.Next() {
		var submissionID int64
		var from, to string
		var c entity.Consent
		if err := rows.Scan(&submissionID, &from, &to, &c.Role, &c.ActorID, &c.ConsentedAt); err != nil {
			return nil, fmt.Errorf("failed to scan consent: %w", err)
		}

		k := key{from, to}
		entry, ok := index[k]
		if !ok {
			entry = &entity.PendingApproval{SubmissionID: submissionID, FromState: from, ToState: to}
			index[k] = entry
			entries = append(entries, entry)
		}
		entry.Consents = append(entry.Consents, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate pending approvals", err)
	}

	return entries, nil
}

// Verify interface compliance
var _ port.ApprovalRepository = (*ApprovalRepository)(nil)
