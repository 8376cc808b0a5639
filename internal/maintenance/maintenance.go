// Package maintenance implements Maintenance (C12): orphan POI/segment
// garbage collection, is_referenced repair, stale-operation cleanup and
// cache expiry, exposed as idempotent, dry-run-capable commands.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/remintz/mapalinear/internal/asyncops"
	"github.com/remintz/mapalinear/internal/store"
	"github.com/remintz/mapalinear/internal/tracing"
)

// Engine runs the periodic/administered maintenance tasks.
type Engine struct {
	pois     *store.POIRepository
	segments *store.SegmentRepository
	cache    *store.CacheRepository
	ops      *asyncops.Engine
}

func New(pois *store.POIRepository, segments *store.SegmentRepository, cache *store.CacheRepository, ops *asyncops.Engine) *Engine {
	return &Engine{pois: pois, segments: segments, cache: cache, ops: ops}
}

// Stats summarizes the current state of the database for operators.
type Stats struct {
	TotalPOIs        int
	ReferencedPOIs   int
	UnreferencedPOIs int
	OrphanSegments   int
}

// DatabaseStats computes a point-in-time snapshot of POI/segment counts. Only
// UnreferencedPOIs and OrphanSegments are filled; TotalPOIs and
// ReferencedPOIs are left at zero.
func (e *Engine) DatabaseStats(ctx context.Context) (Stats, error) {
	orphanPOIs, err := e.pois.Orphans(ctx)
	if err != nil {
		return Stats{}, err
	}
	orphanSegments, err := e.segments.Orphans(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		UnreferencedPOIs: len(orphanPOIs),
		OrphanSegments:   len(orphanSegments),
	}, nil
}

// RunResult is the outcome of one RunFull pass, mirroring the source's
// MaintenanceStats dataclass.
type RunResult struct {
	OrphanPOIsFound        int
	OrphanPOIsDeleted      int
	IsReferencedFixed      int64
	OrphanSegmentsDeleted  int
	StaleOperationsCleaned int64
	ExpiredCacheCleaned    int64
	ExecutionTime          time.Duration
}

// RepairReferences sets is_referenced to match reality. The repository
// performs the repair as a single guarded UPDATE, so with dryRun=true the
// repair is skipped entirely: a warning is logged and 0 is returned. A dry
// run does not count the flags that would change (see DESIGN.md).
func (e *Engine) RepairReferences(ctx context.Context, dryRun bool) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "maintenance.repair_references")
	defer span.End()

	if dryRun {
		slog.Warn("maintenance: is_referenced repair does not support a true dry run, skipping")
		return 0, nil
	}

	n, err := e.pois.RepairReferences(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("fixed is_referenced flags", "count", n)
	}
	return n, nil
}

// OrphanPOIs finds POIs referenced by no MapPOI. When dryRun is false, they
// are deleted.
func (e *Engine) OrphanPOIs(ctx context.Context, dryRun bool) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "maintenance.orphan_pois")
	defer span.End()

	orphans, err := e.pois.Orphans(ctx)
	if err != nil {
		return 0, err
	}
	if len(orphans) == 0 {
		slog.Info("no orphan pois found")
		return 0, nil
	}
	if dryRun {
		slog.Info("dry run: would delete orphan pois", "count", len(orphans))
		return len(orphans), nil
	}

	ids := make([]string, len(orphans))
	for i, p := range orphans {
		ids[i] = p.ID
	}
	if err := e.pois.Delete(ctx, ids); err != nil {
		return 0, err
	}
	slog.Info("deleted orphan pois", "count", len(ids))
	return len(ids), nil
}

// OrphanSegments finds RouteSegments with usage_count = 0 and no MapSegment
// reference. When dryRun is false, they are deleted.
func (e *Engine) OrphanSegments(ctx context.Context, dryRun bool) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "maintenance.orphan_segments")
	defer span.End()

	orphans, err := e.segments.Orphans(ctx)
	if err != nil {
		return 0, err
	}
	if len(orphans) == 0 {
		slog.Info("no orphan segments found")
		return 0, nil
	}
	if dryRun {
		slog.Info("dry run: would delete orphan segments", "count", len(orphans))
		return len(orphans), nil
	}

	ids := make([]string, len(orphans))
	for i, s := range orphans {
		ids[i] = s.ID
	}
	if err := e.segments.Delete(ctx, ids); err != nil {
		return 0, err
	}
	slog.Info("deleted orphan segments", "count", len(ids))
	return len(ids), nil
}

// CleanupStaleOperations fails in_progress async operations older than
// asyncops.StaleAfter. Always runs regardless of dryRun, matching the
// source's cleanup_stale_operations (never gated by dry_run there either).
func (e *Engine) CleanupStaleOperations(ctx context.Context) (int64, error) {
	return e.ops.CleanupStale(ctx)
}

// CleanupExpiredCache deletes cache rows past their expiry.
func (e *Engine) CleanupExpiredCache(ctx context.Context) (int64, error) {
	return e.cache.CleanupExpired(ctx)
}

// RunFull runs every maintenance task in sequence, matching the source's
// run_full_maintenance ordering: orphan POIs -> is_referenced repair ->
// orphan segments -> stale operations (always) -> cache expiry (always; an
// addition beyond the source,
// since this repo's cache_entries table has no Python-side maintenance
// counterpart but does have expires_at).
func (e *Engine) RunFull(ctx context.Context, dryRun bool) (RunResult, error) {
	ctx, span := tracing.StartSpan(ctx, "maintenance.run_full")
	defer span.End()

	start := time.Now()
	slog.Info("starting database maintenance", "dry_run", dryRun)

	orphans, err := e.pois.Orphans(ctx)
	if err != nil {
		return RunResult{}, err
	}
	found := len(orphans)

	deleted, err := e.OrphanPOIs(ctx, dryRun)
	if err != nil {
		return RunResult{}, err
	}

	fixed, err := e.RepairReferences(ctx, dryRun)
	if err != nil {
		return RunResult{}, err
	}

	segmentsDeleted, err := e.OrphanSegments(ctx, dryRun)
	if err != nil {
		return RunResult{}, err
	}

	staleOps, err := e.CleanupStaleOperations(ctx)
	if err != nil {
		return RunResult{}, err
	}

	expiredCache, err := e.CleanupExpiredCache(ctx)
	if err != nil {
		return RunResult{}, err
	}

	result := RunResult{
		OrphanPOIsFound:        found,
		OrphanPOIsDeleted:      deleted,
		IsReferencedFixed:      fixed,
		OrphanSegmentsDeleted:  segmentsDeleted,
		StaleOperationsCleaned: staleOps,
		ExpiredCacheCleaned:    expiredCache,
		ExecutionTime:          time.Since(start),
	}

	slog.Info("maintenance completed",
		"duration_ms", result.ExecutionTime.Milliseconds(),
		"orphans_deleted", result.OrphanPOIsDeleted,
		"flags_fixed", result.IsReferencedFixed,
		"stale_ops", result.StaleOperationsCleaned,
	)

	return result, nil
}
