package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// AsyncOperationRepository persists AsyncOperation lifecycle records (C11),
// grounded on the original async_operation repository: every terminal write
// is a single guarded UPDATE so concurrent terminators are idempotent and
// never regress completed -> in_progress.
type AsyncOperationRepository struct {
	db *sqlx.DB
}

func NewAsyncOperationRepository(db *sqlx.DB) *AsyncOperationRepository {
	return &AsyncOperationRepository{db: db}
}

// Create inserts a new in_progress operation.
func (r *AsyncOperationRepository) Create(ctx context.Context, op *AsyncOperation) error {
	op.Status = StatusInProgress
	const query = `
		INSERT INTO async_operations
			(id, operation_type, status, progress_percent, user_id, estimated_completion, result)
		VALUES
			(:id, :operation_type, :status, :progress_percent, :user_id, :estimated_completion, :result)`
	_, err := r.db.NamedExecContext(ctx, query, op)
	if err != nil {
		return fmt.Errorf("creating async operation: %w", err)
	}
	return nil
}

// Get loads an operation by ID.
func (r *AsyncOperationRepository) Get(ctx context.Context, id string) (AsyncOperation, bool, error) {
	var op AsyncOperation
	if err := sqlx.GetContext(ctx, r.db, &op, `SELECT * FROM async_operations WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AsyncOperation{}, false, nil
		}
		return AsyncOperation{}, false, fmt.Errorf("loading async operation: %w", err)
	}
	return op, true, nil
}

// UpdateProgress sets progress_percent (and optionally estimated_completion)
// only while the operation is still in_progress.
func (r *AsyncOperationRepository) UpdateProgress(ctx context.Context, id string, percent float64, estimatedCompletion *time.Time) error {
	const query = `
		UPDATE async_operations
		SET progress_percent = $1, estimated_completion = COALESCE($2, estimated_completion)
		WHERE id = $3 AND status = 'in_progress'`
	_, err := r.db.ExecContext(ctx, query, percent, estimatedCompletion, id)
	if err != nil {
		return fmt.Errorf("updating async operation progress: %w", err)
	}
	return nil
}

// Complete transitions id to completed with the given result, idempotently
// (a second call is a no-op since the predicate no longer matches).
func (r *AsyncOperationRepository) Complete(ctx context.Context, id string, result JSONColumn[map[string]any]) error {
	const query = `
		UPDATE async_operations
		SET status = 'completed', progress_percent = 100, completed_at = NOW(),
		    estimated_completion = NULL, result = $1
		WHERE id = $2 AND status = 'in_progress'`
	_, err := r.db.ExecContext(ctx, query, result, id)
	if err != nil {
		return fmt.Errorf("completing async operation: %w", err)
	}
	return nil
}

// Fail transitions id to failed with the given error message.
func (r *AsyncOperationRepository) Fail(ctx context.Context, id string, errMsg string) error {
	const query = `
		UPDATE async_operations
		SET status = 'failed', completed_at = NOW(), error = $1
		WHERE id = $2 AND status = 'in_progress'`
	_, err := r.db.ExecContext(ctx, query, errMsg, id)
	if err != nil {
		return fmt.Errorf("failing async operation: %w", err)
	}
	return nil
}

// ListOptions filters AsyncOperation.List.
type ListOptions struct {
	ActiveOnly    bool
	OperationType string
	Limit         int
}

// List returns operations matching opts, most recently started first.
func (r *AsyncOperationRepository) List(ctx context.Context, opts ListOptions) ([]AsyncOperation, error) {
	query := `SELECT * FROM async_operations WHERE 1=1`
	var args []any
	argN := 1

	if opts.ActiveOnly {
		query += fmt.Sprintf(" AND status = $%d", argN)
		args = append(args, StatusInProgress)
		argN++
	}
	if opts.OperationType != "" {
		query += fmt.Sprintf(" AND operation_type = $%d", argN)
		args = append(args, opts.OperationType)
		argN++
	}
	query += " ORDER BY started_at DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argN)
		args = append(args, opts.Limit)
	}

	var rows []AsyncOperation
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing async operations: %w", err)
	}
	return rows, nil
}

// StatsByStatus returns a count of operations grouped by status, optionally
// filtered to one operation type.
func (r *AsyncOperationRepository) StatsByStatus(ctx context.Context, operationType string) (map[OperationStatus]int, error) {
	query := `SELECT status, COUNT(*) AS n FROM async_operations`
	var args []any
	if operationType != "" {
		query += ` WHERE operation_type = $1`
		args = append(args, operationType)
	}
	query += ` GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying async operation stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[OperationStatus]int)
	for rows.Next() {
		var status OperationStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning async operation stats: %w", err)
		}
		stats[status] = n
	}
	return stats, rows.Err()
}

// CleanupOld deletes completed/failed operations older than maxAge.
func (r *AsyncOperationRepository) CleanupOld(ctx context.Context, maxAge time.Duration) (int64, error) {
	const query = `
		DELETE FROM async_operations
		WHERE status IN ('completed', 'failed') AND started_at < $1`
	res, err := r.db.ExecContext(ctx, query, time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("cleaning up old async operations: %w", err)
	}
	return res.RowsAffected()
}

// CleanupStale marks in_progress operations older than staleAfter as failed
// with a timeout error, per spec.md §3's 2-hour stale rule.
func (r *AsyncOperationRepository) CleanupStale(ctx context.Context, staleAfter time.Duration) (int64, error) {
	const query = `
		UPDATE async_operations
		SET status = 'failed', completed_at = NOW(), error = 'operation timed out (stale)'
		WHERE status = 'in_progress' AND started_at < $1`
	res, err := r.db.ExecContext(ctx, query, time.Now().Add(-staleAfter))
	if err != nil {
		return 0, fmt.Errorf("cleaning up stale async operations: %w", err)
	}
	return res.RowsAffected()
}
