package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SegmentRepository persists RouteSegments (C5).
type SegmentRepository struct {
	db *sqlx.DB
}

func NewSegmentRepository(db *sqlx.DB) *SegmentRepository {
	return &SegmentRepository{db: db}
}

// GetByHashes returns the RouteSegments whose segment_hash is in hashes,
// keyed by hash. Missing hashes are simply absent from the result.
func (r *SegmentRepository) GetByHashes(ctx context.Context, hashes []string) (map[string]RouteSegment, error) {
	if len(hashes) == 0 {
		return map[string]RouteSegment{}, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM route_segments WHERE segment_hash IN (?)`, hashes)
	if err != nil {
		return nil, fmt.Errorf("building hash lookup query: %w", err)
	}
	query = r.db.Rebind(query)

	var rows []RouteSegment
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("loading segments by hash: %w", err)
	}

	result := make(map[string]RouteSegment, len(rows))
	for _, row := range rows {
		result[row.SegmentHash] = row
	}
	return result, nil
}

// Create inserts a new RouteSegment. On a segment_hash collision (a
// concurrent writer won the race), the insert is skipped (ON CONFLICT DO
// NOTHING): no error is returned and seg is not updated from the existing
// row; the caller re-fetches by hash to get the row that landed.
func (r *SegmentRepository) Create(ctx context.Context, seg *RouteSegment) error {
	const query = `
		INSERT INTO route_segments
			(id, segment_hash, start_lat, start_lon, end_lat, end_lon, length_km,
			 road_name, geometry, search_points, usage_count, pois_fetched_at)
		VALUES
			(:id, :segment_hash, :start_lat, :start_lon, :end_lat, :end_lon, :length_km,
			 :road_name, :geometry, :search_points, :usage_count, :pois_fetched_at)
		ON CONFLICT (segment_hash) DO NOTHING`

	_, err := r.db.NamedExecContext(ctx, query, seg)
	if err != nil {
		return fmt.Errorf("creating route segment: %w", err)
	}
	return nil
}

// IncrementUsage atomically bumps usage_count by delta for the segment with
// the given hash, per spec.md §5's "no read-modify-write" ordering guarantee.
func (r *SegmentRepository) IncrementUsage(ctx context.Context, hash string, delta int) error {
	const query = `UPDATE route_segments SET usage_count = usage_count + $1 WHERE segment_hash = $2`
	_, err := r.db.ExecContext(ctx, query, delta, hash)
	if err != nil {
		return fmt.Errorf("incrementing segment usage: %w", err)
	}
	return nil
}

// BulkDecrementUsage atomically decrements usage_count for each segment ID,
// never letting it go below zero.
func (r *SegmentRepository) BulkDecrementUsage(ctx context.Context, segmentIDs []string) error {
	if len(segmentIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(
		`UPDATE route_segments SET usage_count = GREATEST(usage_count - 1, 0) WHERE id IN (?)`,
		segmentIDs,
	)
	if err != nil {
		return fmt.Errorf("building bulk decrement query: %w", err)
	}
	query = r.db.Rebind(query)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("bulk decrementing segment usage: %w", err)
	}
	return nil
}

// MarkPOIsFetched sets pois_fetched_at = now() for the given segment.
func (r *SegmentRepository) MarkPOIsFetched(ctx context.Context, segmentID string) error {
	const query = `UPDATE route_segments SET pois_fetched_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, segmentID)
	if err != nil {
		return fmt.Errorf("marking segment pois_fetched_at: %w", err)
	}
	return nil
}

// Orphans returns segments with usage_count = 0 and no MapSegment references.
func (r *SegmentRepository) Orphans(ctx context.Context) ([]RouteSegment, error) {
	const query = `
		SELECT rs.* FROM route_segments rs
		LEFT JOIN map_segments ms ON ms.segment_id = rs.id
		WHERE rs.usage_count = 0 AND ms.segment_id IS NULL`

	var rows []RouteSegment
	if err := sqlx.SelectContext(ctx, r.db, &rows, query); err != nil {
		return nil, fmt.Errorf("loading orphan segments: %w", err)
	}
	return rows, nil
}

// Delete removes the given segments by ID.
func (r *SegmentRepository) Delete(ctx context.Context, segmentIDs []string) error {
	if len(segmentIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM route_segments WHERE id IN (?)`, segmentIDs)
	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}
	query = r.db.Rebind(query)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting segments: %w", err)
	}
	return nil
}
