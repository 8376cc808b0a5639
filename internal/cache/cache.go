package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/remintz/mapalinear/internal/monitoring"
	"github.com/remintz/mapalinear/internal/store"
	"github.com/remintz/mapalinear/internal/tracing"
)

// MatchKind records how a cache hit was found — exact key match, semantic
// address similarity, or spatial POI-search proximity.
type MatchKind string

const (
	MatchExact    MatchKind = "exact"
	MatchSemantic MatchKind = "semantic"
	MatchSpatial  MatchKind = "spatial"
)

// Stats is a running count of cache activity, mirroring get_stats() in the
// source.
type Stats struct {
	Hits   int64
	Misses int64
}

// UnifiedCache is the provider/operation-scoped cache described in spec.md
// §4.2: a small in-process LRU sits in front of the DB-backed cache_entries
// table as a first tier (new relative to the source, which had none — see
// SPEC_FULL.md §11), with the same exact/semantic/spatial lookup policy on
// the DB tier.
type UnifiedCache struct {
	repo *store.CacheRepository
	lru  *lru.Cache[string, []byte]

	mu          sync.Mutex
	writesSince int
	stats       Stats
}

// New constructs a UnifiedCache backed by repo, with an in-process LRU of
// lruSize entries as its first tier.
func New(repo *store.CacheRepository, lruSize int) (*UnifiedCache, error) {
	if lruSize <= 0 {
		lruSize = 1024
	}
	cache, err := lru.New[string, []byte](lruSize)
	if err != nil {
		return nil, fmt.Errorf("constructing lru cache: %w", err)
	}
	return &UnifiedCache{repo: repo, lru: cache}, nil
}

// Get looks up (provider, operation, params), first by exact key, then by
// semantic (geocode) or spatial (poi_search) fallback depending on
// operation. A nil result with ok=false means a genuine miss; cache errors
// are swallowed and treated as a miss, per spec.md §4.2's failure policy.
func (c *UnifiedCache) Get(ctx context.Context, provider, operation string, params map[string]any) (json.RawMessage, bool) {
	ctx, span := tracing.StartSpan(ctx, "cache.get")
	defer span.End()

	key := GenerateKey(provider, operation, params)

	if raw, ok := c.lru.Get(key); ok {
		c.recordHit(operation, MatchExact)
		tracing.SetAttributes(ctx, tracing.CacheAttributes("lru", true, key)...)
		return json.RawMessage(raw), true
	}

	entry, ok, err := c.repo.GetExact(ctx, key)
	if err != nil {
		slog.Warn("cache exact lookup failed, treating as miss", "error", err, "key", key)
	} else if ok {
		c.lru.Add(key, entry.Data.Value)
		_ = c.repo.IncrementHitCount(ctx, key)
		c.recordHit(operation, MatchExact)
		return entry.Data.Value, true
	}

	switch operation {
	case "geocode", "reverse_geocode":
		if address, ok := params["address"].(string); ok {
			if raw, found := c.findSimilarGeocode(ctx, address); found {
				c.recordHit(operation, MatchSemantic)
				return raw, true
			}
		}
	case "poi_search":
		if raw, found := c.findSpatialPOIMatch(ctx, params); found {
			c.recordHit(operation, MatchSpatial)
			return raw, true
		}
	}

	c.recordMiss(operation)
	return nil, false
}

// Set writes data for (provider, operation, params) with the given TTL. It
// upserts (resetting hit_count to 0) and opportunistically sweeps expired
// rows every ~100 writes. Write failures are logged, never surfaced.
func (c *UnifiedCache) Set(ctx context.Context, provider, operation string, params map[string]any, data json.RawMessage, ttl time.Duration) {
	ctx, span := tracing.StartSpan(ctx, "cache.set")
	defer span.End()

	key := GenerateKey(provider, operation, params)
	c.lru.Add(key, data)

	entry := &store.CacheEntry{
		Key:       key,
		Data:      store.NewJSONColumn(data),
		Provider:  provider,
		Operation: operation,
		Params:    store.NewJSONColumn(params),
		ExpiresAt: store.NewExpiresAt(ttl),
	}

	if err := c.repo.Upsert(ctx, entry); err != nil {
		slog.Warn("cache write failed, proceeding without caching", "error", err, "key", key)
		return
	}

	c.maybeCleanup(ctx)
}

func (c *UnifiedCache) maybeCleanup(ctx context.Context) {
	c.mu.Lock()
	c.writesSince++
	due := c.writesSince >= 100
	if due {
		c.writesSince = 0
	}
	c.mu.Unlock()

	if !due {
		return
	}

	go func() {
		n, err := c.repo.CleanupExpired(context.WithoutCancel(ctx))
		if err != nil {
			slog.Warn("opportunistic cache cleanup failed", "error", err)
			return
		}
		if n > 0 {
			slog.Debug("opportunistic cache cleanup removed expired rows", "count", n)
		}
	}()
}

// findSimilarGeocode scans live geocode rows for one whose address
// normalizes to > 0.7 Jaccard similarity with address.
func (c *UnifiedCache) findSimilarGeocode(ctx context.Context, address string) (json.RawMessage, bool) {
	rows, err := c.repo.LiveRowsForOperation(ctx, "geocode")
	if err != nil {
		slog.Warn("semantic geocode scan failed, treating as miss", "error", err)
		return nil, false
	}

	for _, row := range rows {
		candidate, ok := row.Params.Value["address"].(string)
		if !ok {
			continue
		}
		if addressesSimilar(address, candidate) {
			return row.Data.Value, true
		}
	}
	return nil, false
}

// findSpatialPOIMatch scans live poi_search rows for one whose center is
// within (r_req+r_cached)/2 of the requested center and shares the same
// category set.
func (c *UnifiedCache) findSpatialPOIMatch(ctx context.Context, params map[string]any) (json.RawMessage, bool) {
	lat, latOK := asFloat(params["latitude"])
	lon, lonOK := asFloat(params["longitude"])
	radius, radiusOK := asFloat(params["radius"])
	if !latOK || !lonOK || !radiusOK {
		return nil, false
	}
	categories := stringSet(params["categories"])

	rows, err := c.repo.LiveRowsForOperation(ctx, "poi_search")
	if err != nil {
		slog.Warn("spatial poi_search scan failed, treating as miss", "error", err)
		return nil, false
	}

	for _, row := range rows {
		cLat, cLatOK := asFloat(row.Params.Value["latitude"])
		cLon, cLonOK := asFloat(row.Params.Value["longitude"])
		cRadius, cRadiusOK := asFloat(row.Params.Value["radius"])
		if !cLatOK || !cLonOK || !cRadiusOK {
			continue
		}

		if !sameCategorySet(categories, stringSet(row.Params.Value["categories"])) {
			continue
		}

		dist := approxDistanceMeters(lat, lon, cLat, cLon)
		if dist < (radius+cRadius)/2 {
			return row.Data.Value, true
		}
	}
	return nil, false
}

func (c *UnifiedCache) recordHit(operation string, kind MatchKind) {
	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
	monitoring.RecordCacheHit(operation, string(kind))
}

func (c *UnifiedCache) recordMiss(operation string) {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
	monitoring.RecordCacheMiss(operation)
}

// Stats returns a snapshot of hit/miss counters.
func (c *UnifiedCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// CleanupExpired deletes expired DB rows immediately (used by maintenance).
func (c *UnifiedCache) CleanupExpired(ctx context.Context) (int64, error) {
	return c.repo.CleanupExpired(ctx)
}

// Clear empties both the LRU tier and the DB tier.
func (c *UnifiedCache) Clear(ctx context.Context) error {
	c.lru.Purge()
	return c.repo.Clear(ctx)
}

// InvalidatePattern deletes keys matching a glob pattern (e.g. "osm:geocode:*").
func (c *UnifiedCache) InvalidatePattern(ctx context.Context, glob string) (int64, error) {
	return c.repo.InvalidatePattern(ctx, globToLike(glob))
}

func globToLike(glob string) string {
	var b strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func asFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func stringSet(v any) map[string]bool {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			set[s] = true
		}
	}
	return set
}

func sameCategorySet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// approxDistanceMeters is a cheap lat/lon distance in meters, matching the
// source's simplified (non-Haversine) spatial-match comparator — "good
// enough for determining if POI search areas overlap" per the original
// comment. 1 degree is treated as ~111km, with longitude scaled by
// cos(lat1) to account for meridian convergence.
func approxDistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	latDiff := math.Abs(lat1 - lat2)
	lonDiff := math.Abs(lon1 - lon2)

	latMeters := latDiff * 111000
	lonMeters := lonDiff * 111000 * math.Abs(math.Cos(lat1*math.Pi/180))

	return math.Sqrt(latMeters*latMeters + lonMeters*lonMeters)
}
