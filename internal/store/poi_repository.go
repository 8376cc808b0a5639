package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// POIRepository persists canonical POIs (C7) and their per-segment
// discovery records.
type POIRepository struct {
	db *sqlx.DB
}

func NewPOIRepository(db *sqlx.DB) *POIRepository {
	return &POIRepository{db: db}
}

// GetByProviderID returns the canonical POI matching the given provider
// (osm_id, here_id or google_place_id), or the zero value with ok=false and
// a nil error if none exists.
func (r *POIRepository) GetByProviderID(ctx context.Context, column, providerID string) (POI, bool, error) {
	query := fmt.Sprintf(`SELECT * FROM pois WHERE %s = $1`, column)
	var poi POI
	if err := sqlx.GetContext(ctx, r.db, &poi, query, providerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return POI{}, false, nil
		}
		return POI{}, false, fmt.Errorf("loading poi by provider id: %w", err)
	}
	return poi, true, nil
}

// Upsert inserts a new canonical POI or updates the mutable fields of an
// existing one in place — matching the source's "update-in-place" behavior
// for provider-id collisions. The conflict target is the id column, so an
// update happens only when the caller reuses the existing row's ID.
func (r *POIRepository) Upsert(ctx context.Context, poi *POI) error {
	const query = `
		INSERT INTO pois
			(id, osm_id, here_id, google_place_id, name, poi_type, latitude, longitude,
			 city, operator, brand, opening_hours, phone, website, cuisine,
			 amenities, tags, quality_score, quality_issues, is_low_quality,
			 is_disabled, is_referenced, enriched_by, updated_at)
		VALUES
			(:id, :osm_id, :here_id, :google_place_id, :name, :poi_type, :latitude, :longitude,
			 :city, :operator, :brand, :opening_hours, :phone, :website, :cuisine,
			 :amenities, :tags, :quality_score, :quality_issues, :is_low_quality,
			 :is_disabled, :is_referenced, :enriched_by, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			city = EXCLUDED.city,
			operator = EXCLUDED.operator,
			brand = EXCLUDED.brand,
			opening_hours = EXCLUDED.opening_hours,
			phone = EXCLUDED.phone,
			website = EXCLUDED.website,
			cuisine = EXCLUDED.cuisine,
			amenities = EXCLUDED.amenities,
			tags = EXCLUDED.tags,
			quality_score = EXCLUDED.quality_score,
			quality_issues = EXCLUDED.quality_issues,
			is_low_quality = EXCLUDED.is_low_quality,
			is_referenced = EXCLUDED.is_referenced,
			enriched_by = EXCLUDED.enriched_by,
			updated_at = NOW()`

	_, err := r.db.NamedExecContext(ctx, query, poi)
	if err != nil {
		return fmt.Errorf("upserting poi: %w", err)
	}
	return nil
}

// AssociateWithSegment records that poiID was discovered from segmentID at
// the given search point index and straight-line distance.
func (r *POIRepository) AssociateWithSegment(ctx context.Context, assoc SegmentPOI) error {
	const query = `
		INSERT INTO segment_pois (segment_id, poi_id, search_point_index, straight_line_distance_m)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (segment_id, poi_id) DO UPDATE SET
			search_point_index = EXCLUDED.search_point_index,
			straight_line_distance_m = EXCLUDED.straight_line_distance_m
		WHERE segment_pois.straight_line_distance_m > EXCLUDED.straight_line_distance_m`

	_, err := r.db.ExecContext(ctx, query,
		assoc.SegmentID, assoc.POIID, assoc.SearchPointIndex, assoc.StraightLineDistanceM)
	if err != nil {
		return fmt.Errorf("associating poi with segment: %w", err)
	}
	return nil
}

// SegmentPOIsForSegments returns, for each given segment ID, its
// (SegmentPOI, POI) pairs, used by MapAssembly to collect candidates.
func (r *POIRepository) SegmentPOIsForSegments(ctx context.Context, segmentIDs []string) ([]SegmentPOIWithPOI, error) {
	if len(segmentIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT sp.segment_id, sp.poi_id, sp.search_point_index, sp.straight_line_distance_m,
		       p.*
		FROM segment_pois sp
		JOIN pois p ON p.id = sp.poi_id
		WHERE sp.segment_id IN (?)`, segmentIDs)
	if err != nil {
		return nil, fmt.Errorf("building segment pois query: %w", err)
	}
	query = r.db.Rebind(query)

	var rows []SegmentPOIWithPOI
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("loading segment pois: %w", err)
	}
	return rows, nil
}

// SegmentPOIWithPOI is a SegmentPOI joined with its canonical POI row.
type SegmentPOIWithPOI struct {
	SegmentID             string `db:"segment_id"`
	POIID                 string `db:"poi_id"`
	SearchPointIndex      int    `db:"search_point_index"`
	StraightLineDistanceM float64 `db:"straight_line_distance_m"`
	POI
}

// GetByIDs returns the canonical POIs matching the given IDs, keyed by ID.
// Used by MapAssembly's distance recalculation to reload each MapPOI's
// coordinates without a per-row round trip.
func (r *POIRepository) GetByIDs(ctx context.Context, poiIDs []string) (map[string]POI, error) {
	if len(poiIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM pois WHERE id IN (?)`, poiIDs)
	if err != nil {
		return nil, fmt.Errorf("building get-by-ids query: %w", err)
	}
	query = r.db.Rebind(query)

	var rows []POI
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("loading pois by id: %w", err)
	}
	result := make(map[string]POI, len(rows))
	for _, p := range rows {
		result[p.ID] = p
	}
	return result, nil
}

// SetReferenced sets is_referenced for the given POI IDs.
func (r *POIRepository) SetReferenced(ctx context.Context, poiIDs []string, referenced bool) error {
	if len(poiIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE pois SET is_referenced = ? WHERE id IN (?)`, referenced, poiIDs)
	if err != nil {
		return fmt.Errorf("building set-referenced query: %w", err)
	}
	query = r.db.Rebind(query)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("updating is_referenced: %w", err)
	}
	return nil
}

// RepairReferences sets is_referenced = true for every POI pointed to by at
// least one MapPOI, and false for every other POI (C12 maintenance task).
func (r *POIRepository) RepairReferences(ctx context.Context) (int64, error) {
	const query = `
		UPDATE pois SET is_referenced = (id IN (SELECT DISTINCT poi_id FROM map_pois))
		WHERE is_referenced != (id IN (SELECT DISTINCT poi_id FROM map_pois))`

	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("repairing poi references: %w", err)
	}
	return res.RowsAffected()
}

// Orphans returns POIs with no MapPOI pointing to them.
func (r *POIRepository) Orphans(ctx context.Context) ([]POI, error) {
	const query = `SELECT * FROM pois WHERE id NOT IN (SELECT DISTINCT poi_id FROM map_pois)`
	var rows []POI
	if err := sqlx.SelectContext(ctx, r.db, &rows, query); err != nil {
		return nil, fmt.Errorf("loading orphan pois: %w", err)
	}
	return rows, nil
}

// Delete removes the given POIs by ID.
func (r *POIRepository) Delete(ctx context.Context, poiIDs []string) error {
	if len(poiIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM pois WHERE id IN (?)`, poiIDs)
	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}
	query = r.db.Rebind(query)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting pois: %w", err)
	}
	return nil
}
