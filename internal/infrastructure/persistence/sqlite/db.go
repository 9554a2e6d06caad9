package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/garyjia/formflow/internal/application/port"
	domainwf "github.com/garyjia/formflow/internal/domain/workflow"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const txKey contextKey = "tx"

// DB wraps sql.DB and implements TransactionManager
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database wrapper
func NewDB(sqlDB *sql.DB, logger *zap.Logger) *DB {
	return &DB{
		DB:     sqlDB,
		logger: logger,
	}
}

// WithTransaction implements port.TransactionManager.
// Nested calls join the outer transaction.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx := extractTx(ctx); tx != nil {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.logger.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", TranslateError(err))
	}

	txCtx := context.WithValue(ctx, txKey, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return TranslateError(err)
	}

	if err := tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", TranslateError(err))
	}

	return nil
}

// Executor returns the transaction carried by ctx, or the pool
func (db *DB) Executor(ctx context.Context) Executor {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return db.DB
}

// extractTx retrieves transaction from context if present
func extractTx(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// Executor covers both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// TranslateError maps lock contention and uniqueness violations to
// ErrConflict. Errors that already carry a workflow sentinel pass through.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		domainwf.ErrNotFound,
		domainwf.ErrInvalidDefinition,
		domainwf.ErrInvalidTransition,
		domainwf.ErrUnauthorized,
		domainwf.ErrConflict,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}

	switch {
	case sqliteErr.Code == sqlite3.ErrBusy, sqliteErr.Code == sqlite3.ErrLocked:
		return &conflictError{detail: "database is busy, retry the request", cause: err}
	case sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
		return &conflictError{detail: "a record with the same key already exists", cause: err}
	default:
		return err
	}
}

// conflictError hides driver text from Error() but keeps it reachable
// through errors.As for logging.
type conflictError struct {
	detail string
	cause  error
}

func (e *conflictError) Error() string {
	return domainwf.ErrConflict.Error() + ": " + e.detail
}

func (e *conflictError) Unwrap() []error {
	return []error{domainwf.ErrConflict, e.cause}
}

// Verify interface compliance
var _ port.TransactionManager = (*DB)(nil)
