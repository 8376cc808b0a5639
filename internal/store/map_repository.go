package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// MapRepository persists Map, MapSegment and MapPOI rows (C10).
type MapRepository struct {
	db *sqlx.DB
}

func NewMapRepository(db *sqlx.DB) *MapRepository {
	return &MapRepository{db: db}
}

// Create inserts a new Map row.
func (r *MapRepository) Create(ctx context.Context, m *Map) error {
	const query = `
		INSERT INTO maps (id, origin, destination, total_length_km, road_id, metadata, created_by_user_id)
		VALUES (:id, :origin, :destination, :total_length_km, :road_id, :metadata, :created_by_user_id)`
	_, err := r.db.NamedExecContext(ctx, query, m)
	if err != nil {
		return fmt.Errorf("creating map: %w", err)
	}
	return nil
}

// Get loads a Map by ID.
func (r *MapRepository) Get(ctx context.Context, id string) (Map, error) {
	var m Map
	if err := sqlx.GetContext(ctx, r.db, &m, `SELECT * FROM maps WHERE id = $1`, id); err != nil {
		return Map{}, fmt.Errorf("loading map: %w", err)
	}
	return m, nil
}

// ListForUser returns maps created by userID, most recent first.
func (r *MapRepository) ListForUser(ctx context.Context, userID string) ([]Map, error) {
	var maps []Map
	const query = `SELECT * FROM maps WHERE created_by_user_id = $1 ORDER BY created_at DESC`
	if err := sqlx.SelectContext(ctx, r.db, &maps, query, userID); err != nil {
		return nil, fmt.Errorf("listing maps: %w", err)
	}
	return maps, nil
}

// Delete removes a Map and, via ON DELETE CASCADE, its MapSegments/MapPOIs.
func (r *MapRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM maps WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting map: %w", err)
	}
	return nil
}

// CreateMapSegments bulk-inserts MapSegment rows for one map, in the given
// (already sequence-ordered) order.
func (r *MapRepository) CreateMapSegments(ctx context.Context, segments []MapSegment) error {
	if len(segments) == 0 {
		return nil
	}
	const query = `
		INSERT INTO map_segments (map_id, segment_id, sequence_order, distance_from_origin_km)
		VALUES (:map_id, :segment_id, :sequence_order, :distance_from_origin_km)`
	_, err := r.db.NamedExecContext(ctx, query, segments)
	if err != nil {
		return fmt.Errorf("creating map segments: %w", err)
	}
	return nil
}

// MapSegmentsForMap returns the MapSegments of a map in sequence order.
func (r *MapRepository) MapSegmentsForMap(ctx context.Context, mapID string) ([]MapSegment, error) {
	var rows []MapSegment
	const query = `SELECT * FROM map_segments WHERE map_id = $1 ORDER BY sequence_order`
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, mapID); err != nil {
		return nil, fmt.Errorf("loading map segments: %w", err)
	}
	return rows, nil
}

// CreateMapPOIs bulk-inserts the surviving junction results as MapPOI rows.
func (r *MapRepository) CreateMapPOIs(ctx context.Context, pois []MapPOI) error {
	if len(pois) == 0 {
		return nil
	}
	const query = `
		INSERT INTO map_pois
			(id, map_id, poi_id, segment_index, distance_from_origin_km, distance_from_road_meters,
			 side, junction_lat, junction_lon, junction_distance_km, requires_detour, quality_score)
		VALUES
			(:id, :map_id, :poi_id, :segment_index, :distance_from_origin_km, :distance_from_road_meters,
			 :side, :junction_lat, :junction_lon, :junction_distance_km, :requires_detour, :quality_score)
		ON CONFLICT (map_id, poi_id) DO UPDATE SET
			distance_from_origin_km = EXCLUDED.distance_from_origin_km,
			distance_from_road_meters = EXCLUDED.distance_from_road_meters,
			side = EXCLUDED.side,
			junction_lat = EXCLUDED.junction_lat,
			junction_lon = EXCLUDED.junction_lon,
			junction_distance_km = EXCLUDED.junction_distance_km,
			requires_detour = EXCLUDED.requires_detour,
			quality_score = EXCLUDED.quality_score`
	_, err := r.db.NamedExecContext(ctx, query, pois)
	if err != nil {
		return fmt.Errorf("creating map pois: %w", err)
	}
	return nil
}

// MapPOIsForMap returns a map's MapPOIs ordered by distance from origin.
func (r *MapRepository) MapPOIsForMap(ctx context.Context, mapID string) ([]MapPOI, error) {
	var rows []MapPOI
	const query = `SELECT * FROM map_pois WHERE map_id = $1 ORDER BY distance_from_origin_km`
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, mapID); err != nil {
		return nil, fmt.Errorf("loading map pois: %w", err)
	}
	return rows, nil
}
