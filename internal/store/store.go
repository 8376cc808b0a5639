// Package store provides the PostgreSQL persistence layer for MapaLinear,
// following the teacher repo's connect/migrate pattern (adapted from
// ropacal-backend's internal/database/database.go) with sqlx for scanning
// and lib/pq as the driver.
package store

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens a pooled connection to PostgreSQL and verifies it with Ping.
func Connect(dsn string, poolMinSize, poolMaxSize int) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	db.SetMaxOpenConns(poolMaxSize)
	db.SetMaxIdleConns(poolMinSize)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	slog.Info("connected to postgresql database")
	return db, nil
}

// Migrate applies the schema described in spec.md §3 and §6: route_segments,
// segment_pois, pois, maps, map_segments, map_pois, cache_entries and
// async_operations, plus their representative indexes.
func Migrate(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS route_segments (
			id UUID PRIMARY KEY,
			segment_hash TEXT NOT NULL,
			start_lat DOUBLE PRECISION NOT NULL,
			start_lon DOUBLE PRECISION NOT NULL,
			end_lat DOUBLE PRECISION NOT NULL,
			end_lon DOUBLE PRECISION NOT NULL,
			length_km DOUBLE PRECISION NOT NULL,
			road_name TEXT,
			geometry JSONB NOT NULL,
			search_points JSONB NOT NULL,
			usage_count INT NOT NULL DEFAULT 0 CHECK (usage_count >= 0),
			pois_fetched_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_route_segments_hash ON route_segments(segment_hash)`,

		`CREATE TABLE IF NOT EXISTS pois (
			id UUID PRIMARY KEY,
			osm_id TEXT,
			here_id TEXT,
			google_place_id TEXT,
			name TEXT,
			poi_type TEXT NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			city TEXT,
			operator TEXT,
			brand TEXT,
			opening_hours TEXT,
			phone TEXT,
			website TEXT,
			cuisine TEXT,
			amenities JSONB NOT NULL DEFAULT '[]',
			tags JSONB NOT NULL DEFAULT '{}',
			quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			quality_issues JSONB NOT NULL DEFAULT '[]',
			is_low_quality BOOLEAN NOT NULL DEFAULT FALSE,
			is_disabled BOOLEAN NOT NULL DEFAULT FALSE,
			is_referenced BOOLEAN NOT NULL DEFAULT FALSE,
			enriched_by JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_pois_osm_id ON pois(osm_id) WHERE osm_id IS NOT NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_pois_here_id ON pois(here_id) WHERE here_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_pois_is_referenced ON pois(is_referenced)`,

		`CREATE TABLE IF NOT EXISTS segment_pois (
			segment_id UUID NOT NULL REFERENCES route_segments(id) ON DELETE CASCADE,
			poi_id UUID NOT NULL REFERENCES pois(id) ON DELETE CASCADE,
			search_point_index INT NOT NULL,
			straight_line_distance_m DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (segment_id, poi_id)
		)`,

		`CREATE TABLE IF NOT EXISTS maps (
			id UUID PRIMARY KEY,
			origin TEXT NOT NULL,
			destination TEXT NOT NULL,
			total_length_km DOUBLE PRECISION NOT NULL,
			road_id TEXT,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_by_user_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS map_segments (
			map_id UUID NOT NULL REFERENCES maps(id) ON DELETE CASCADE,
			segment_id UUID NOT NULL REFERENCES route_segments(id),
			sequence_order INT NOT NULL,
			distance_from_origin_km DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (map_id, segment_id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_map_segments_sequence ON map_segments(map_id, sequence_order)`,

		`CREATE TABLE IF NOT EXISTS map_pois (
			id UUID PRIMARY KEY,
			map_id UUID NOT NULL REFERENCES maps(id) ON DELETE CASCADE,
			poi_id UUID NOT NULL REFERENCES pois(id),
			segment_index INT NOT NULL,
			distance_from_origin_km DOUBLE PRECISION NOT NULL,
			distance_from_road_meters DOUBLE PRECISION NOT NULL,
			side TEXT NOT NULL CHECK (side IN ('left', 'right', 'center')),
			junction_lat DOUBLE PRECISION NOT NULL,
			junction_lon DOUBLE PRECISION NOT NULL,
			junction_distance_km DOUBLE PRECISION NOT NULL,
			requires_detour BOOLEAN NOT NULL DEFAULT FALSE,
			quality_score DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_map_pois_unique ON map_pois(map_id, poi_id)`,
		`CREATE INDEX IF NOT EXISTS idx_map_pois_distance ON map_pois(map_id, distance_from_origin_km)`,

		`CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			data JSONB NOT NULL,
			provider TEXT NOT NULL,
			operation TEXT NOT NULL,
			params JSONB NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			hit_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_entries_operation_expires ON cache_entries(operation, expires_at)`,

		`CREATE TABLE IF NOT EXISTS async_operations (
			id UUID PRIMARY KEY,
			operation_type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'in_progress' CHECK (status IN ('in_progress', 'completed', 'failed')),
			progress_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
			user_id TEXT,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ,
			estimated_completion TIMESTAMPTZ,
			result JSONB,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_async_op_status_started ON async_operations(status, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_async_op_type_status ON async_operations(operation_type, status)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	slog.Info("database migrations completed")
	return nil
}
