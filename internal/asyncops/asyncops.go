// Package asyncops implements AsyncOps (C11): the domain-facing lifecycle
// around long-running operations (chiefly map generation), backed by
// store.AsyncOperationRepository and reported to Prometheus via
// internal/monitoring.
package asyncops

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/remintz/mapalinear/internal/apperr"
	"github.com/remintz/mapalinear/internal/monitoring"
	"github.com/remintz/mapalinear/internal/store"
	"github.com/remintz/mapalinear/internal/tracing"
)

// StaleAfter is how long an in_progress operation may run before
// CleanupStale marks it failed, per the 2-hour stale rule.
const StaleAfter = 2 * time.Hour

// MaxAge is how long a terminal operation is retained before CleanupOld
// removes it.
const MaxAge = 24 * time.Hour

// Engine wraps the raw operation repository with the transition semantics
// and metrics the rest of the pipeline expects.
type Engine struct {
	ops *store.AsyncOperationRepository
}

func New(ops *store.AsyncOperationRepository) *Engine {
	return &Engine{ops: ops}
}

// Create starts a new in_progress operation of operationType.
func (e *Engine) Create(ctx context.Context, operationType string, userID string, estimatedCompletion *time.Time, initialResult map[string]any) (store.AsyncOperation, error) {
	ctx, span := tracing.StartSpan(ctx, "asyncops.create")
	defer span.End()

	op := store.AsyncOperation{
		ID:            uuid.New().String(),
		OperationType: operationType,
		Status:        store.StatusInProgress,
		Result:        store.NewJSONColumn[map[string]any](initialResult),
	}
	if userID != "" {
		op.UserID.String, op.UserID.Valid = userID, true
	}
	if estimatedCompletion != nil {
		op.EstimatedCompletion.Time, op.EstimatedCompletion.Valid = *estimatedCompletion, true
	}

	if err := e.ops.Create(ctx, &op); err != nil {
		return store.AsyncOperation{}, err
	}
	monitoring.RecordAsyncTransition(operationType, "created")
	return op, nil
}

// UpdateProgress reports percent complete; a no-op once the operation has
// already reached a terminal state (the repository's predicate absorbs the
// race rather than erroring).
func (e *Engine) UpdateProgress(ctx context.Context, id string, percent float64, estimatedCompletion *time.Time) error {
	ctx, span := tracing.StartPipelineSpan(ctx, "asyncops.update_progress", "", id)
	defer span.End()

	if percent < 0 || percent > 100 {
		return apperr.New(apperr.CodeInvalidInput, "asyncops: progress_percent must be within [0, 100]")
	}
	return e.ops.UpdateProgress(ctx, id, percent, estimatedCompletion)
}

// Complete transitions id to completed with result. Idempotent: a second
// call against an already-terminal operation matches no row and returns nil.
func (e *Engine) Complete(ctx context.Context, id string, operationType string, result map[string]any) error {
	ctx, span := tracing.StartSpan(ctx, "asyncops.complete")
	defer span.End()

	if err := e.ops.Complete(ctx, id, store.NewJSONColumn(result)); err != nil {
		return err
	}
	monitoring.RecordAsyncTransition(operationType, "completed")
	return nil
}

// Fail transitions id to failed with errMsg.
func (e *Engine) Fail(ctx context.Context, id string, operationType string, errMsg string) error {
	ctx, span := tracing.StartSpan(ctx, "asyncops.fail")
	defer span.End()

	if err := e.ops.Fail(ctx, id, errMsg); err != nil {
		return err
	}
	monitoring.RecordAsyncTransition(operationType, "failed")
	return nil
}

// List returns operations matching opts.
func (e *Engine) List(ctx context.Context, opts store.ListOptions) ([]store.AsyncOperation, error) {
	return e.ops.List(ctx, opts)
}

// Stats returns a count of operations by status, optionally scoped to one
// operation type.
func (e *Engine) Stats(ctx context.Context, operationType string) (map[store.OperationStatus]int, error) {
	return e.ops.StatsByStatus(ctx, operationType)
}

// CleanupOld removes terminal operations older than MaxAge.
func (e *Engine) CleanupOld(ctx context.Context) (int64, error) {
	return e.ops.CleanupOld(ctx, MaxAge)
}

// CleanupStale fails in_progress operations older than StaleAfter.
func (e *Engine) CleanupStale(ctx context.Context) (int64, error) {
	n, err := e.ops.CleanupStale(ctx, StaleAfter)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		monitoring.AsyncOperationsTotal.WithLabelValues("unknown", "stale_failed").Add(float64(n))
	}
	return n, nil
}

// ProgressReporter is the progress_cb RoadService drives its pipeline with;
// updates are best-effort and never abort the pipeline on error.
type ProgressReporter struct {
	engine        *Engine
	operationID   string
	operationType string
}

func NewProgressReporter(engine *Engine, operationID, operationType string) *ProgressReporter {
	return &ProgressReporter{engine: engine, operationID: operationID, operationType: operationType}
}

// Report publishes percent, swallowing errors (a dropped progress tick is
// not worth failing map generation over).
func (p *ProgressReporter) Report(ctx context.Context, percent float64) {
	if p == nil || p.engine == nil {
		return
	}
	_ = p.engine.UpdateProgress(ctx, p.operationID, percent, nil)
}
