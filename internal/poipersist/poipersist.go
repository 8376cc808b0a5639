// Package poipersist implements POIPersistence (C7): reconciling POIs
// returned by a provider adapter into the canonical, provider-agnostic pois
// table, and tracking which of them are actually referenced by a map.
package poipersist

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"

	"github.com/remintz/mapalinear/internal/provider"
	"github.com/remintz/mapalinear/internal/store"
	"github.com/remintz/mapalinear/internal/tracing"
)

// Engine upserts provider POIs into canonical storage.
type Engine struct {
	pois *store.POIRepository
}

// New builds an Engine backed by the given POIRepository.
func New(pois *store.POIRepository) *Engine {
	return &Engine{pois: pois}
}

// categoryToType collapses a handful of near-synonymous provider categories
// down to the canonical type recorded on a POI, the same reduction the
// source applies when turning a provider category into a milestone type.
var categoryToType = map[provider.POICategory]string{
	provider.CategoryGasStation:        "gas_station",
	provider.CategoryFuel:              "gas_station",
	provider.CategoryServices:          "gas_station",
	provider.CategoryMechanic:          "gas_station",
	provider.CategoryRestaurant:        "restaurant",
	provider.CategoryFood:              "restaurant",
	provider.CategoryFastFood:          "restaurant",
	provider.CategoryCafe:              "restaurant",
	provider.CategoryHotel:             "hotel",
	provider.CategoryLodging:           "hotel",
	provider.CategoryHospital:          "hospital",
	provider.CategoryPharmacy:          "pharmacy",
	provider.CategoryBank:              "bank",
	provider.CategoryATM:               "bank",
	provider.CategoryShopping:          "shopping",
	provider.CategorySupermarket:       "shopping",
	provider.CategoryTouristAttraction: "tourist_attraction",
	provider.CategoryRestArea:          "rest_area",
	provider.CategoryParking:           "rest_area",
	provider.CategoryPolice:            "services",
}

func categoryToPOIType(c provider.POICategory) string {
	if t, ok := categoryToType[c]; ok {
		return t
	}
	return "services"
}

// providerColumn returns the pois column a given provider's native ID is
// stored under.
func providerColumn(kind provider.Kind) string {
	if kind == provider.KindHERE {
		return "here_id"
	}
	return "osm_id"
}

// PersistBatch upserts each of pois into canonical storage, looking up an
// existing row by the provider's native ID and updating it in place on a
// match, creating a new row otherwise. referenced marks which provider IDs
// should be flagged is_referenced=true on this pass (RoadService passes
// every POI discovered for the segment, before any map is assembled); an
// already-set flag is never cleared here. It returns a map from each POI's
// ProviderID to its canonical database ID.
func (e *Engine) PersistBatch(ctx context.Context, pois []provider.ProviderPOI, referenced map[string]bool) (map[string]string, error) {
	ctx, span := tracing.StartSpan(ctx, "poipersist.persist_batch")
	defer span.End()

	result := make(map[string]string, len(pois))
	created, existing := 0, 0

	for _, p := range pois {
		column := providerColumn(p.Provider)

		existingRow, found, err := e.pois.GetByProviderID(ctx, column, p.ProviderID)
		if err != nil {
			slog.Error("error loading poi by provider id", "provider_id", p.ProviderID, "error", err)
			continue
		}

		row := toCanonical(p)
		if found {
			row.ID = existingRow.ID
			row.IsReferenced = existingRow.IsReferenced || referenced[p.ProviderID]
			existing++
		} else {
			row.ID = uuid.New().String()
			row.IsReferenced = referenced[p.ProviderID]
			created++
		}

		if err := e.pois.Upsert(ctx, &row); err != nil {
			slog.Error("error persisting poi", "name", p.Name, "error", err)
			continue
		}

		result[p.ProviderID] = row.ID
	}

	slog.Info("persisted pois", "created", created, "existing", existing)
	return result, nil
}

// MarkReferenced flags the given canonical POI IDs as referenced by a map.
func (e *Engine) MarkReferenced(ctx context.Context, poiIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "poipersist.mark_referenced")
	defer span.End()
	return e.pois.SetReferenced(ctx, poiIDs, true)
}

func toCanonical(p provider.ProviderPOI) store.POI {
	row := store.POI{
		Type:          categoryToPOIType(p.Category),
		Latitude:      p.Latitude,
		Longitude:     p.Longitude,
		QualityScore:  p.QualityScore,
		IsLowQuality:  p.IsAbandoned,
		Amenities:     store.NewJSONColumn(p.Amenities),
		Tags:          store.NewJSONColumn(p.Tags),
		QualityIssues: store.NewJSONColumn(p.QualityIssues),
		EnrichedBy:    store.NewJSONColumn([]string{string(p.Provider)}),
	}

	if p.Provider == provider.KindHERE {
		row.HereID = nullString(p.ProviderID)
	} else {
		row.OSMID = nullString(p.ProviderID)
	}

	row.Name = nullString(p.Name)
	row.City = nullString(p.City)
	row.Operator = nullString(p.Operator)
	row.Brand = nullString(p.Brand)
	row.OpeningHours = nullString(p.OpeningHours)
	row.Phone = nullString(p.Phone)
	row.Website = nullString(p.Website)
	row.Cuisine = nullString(p.Cuisine)

	return row
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
