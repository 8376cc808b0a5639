// Package provider defines the geo-provider contract (C3/C4): geocoding,
// routing and POI search, implemented by the OSM and HERE adapters.
package provider

import "context"

// Kind identifies a provider implementation.
type Kind string

const (
	KindOSM  Kind = "osm"
	KindHERE Kind = "here"
)

// GeoLocation is a resolved address with coordinates.
type GeoLocation struct {
	Latitude    float64
	Longitude   float64
	Address     string
	City        string
	State       string
	Country     string
	PostalCode  string
}

// RouteStep is one leg of a calculated route, matching an OSRM step.
type RouteStep struct {
	DistanceM   float64
	DurationS   float64
	Geometry    [][2]float64 // [lat, lon] pairs
	RoadName    string
	ManeuverType string
}

// Route is a calculated path between two locations.
type Route struct {
	TotalDistanceKm float64
	TotalDurationMin float64
	Geometry        [][2]float64
	Steps           []RouteStep
	RoadNames       []string
}

// POICategory is a provider-agnostic POI category, mapped to provider-
// specific tags/category IDs by each adapter. The base set matches the
// source's POICategory enum (providers/models.py); a handful of categories
// only the HERE category table and OSM amenity mapping use (providers/
// here/provider.py, providers/osm/provider.py) are appended.
type POICategory string

const (
	CategoryGasStation        POICategory = "gas_station"
	CategoryRestaurant        POICategory = "restaurant"
	CategoryHotel             POICategory = "hotel"
	CategoryHospital          POICategory = "hospital"
	CategoryPharmacy          POICategory = "pharmacy"
	CategoryBank              POICategory = "bank"
	CategoryATM               POICategory = "atm"
	CategoryShopping          POICategory = "shopping"
	CategoryTouristAttraction POICategory = "tourist_attraction"
	CategoryRestArea          POICategory = "rest_area"
	CategoryParking           POICategory = "parking"
	CategoryFuel              POICategory = "fuel"
	CategoryFood              POICategory = "food"
	CategoryLodging           POICategory = "lodging"
	CategoryServices          POICategory = "services"
	CategoryPolice            POICategory = "police"
	CategoryMechanic          POICategory = "mechanic"
	CategorySupermarket       POICategory = "supermarket"
	CategoryCafe              POICategory = "cafe"
	CategoryFastFood          POICategory = "fast_food"
	CategoryOther             POICategory = "other"
)

// ProviderPOI is a point of interest as returned by a provider adapter,
// before it has been reconciled into a canonical store.POI.
type ProviderPOI struct {
	ProviderID   string
	Provider     Kind
	Name         string
	Category     POICategory
	Latitude     float64
	Longitude    float64
	City         string
	Operator     string
	Brand        string
	OpeningHours string
	Phone        string
	Website      string
	Cuisine      string
	Amenities    []string
	Tags         map[string]string
	IsAbandoned  bool
	QualityScore float64
	QualityIssues []string
}

// GeoProvider is the capability set every provider adapter implements.
type GeoProvider interface {
	Geocode(ctx context.Context, address string) (*GeoLocation, error)
	ReverseGeocode(ctx context.Context, lat, lon float64, poiName string) (*GeoLocation, error)
	CalculateRoute(ctx context.Context, origin, destination GeoLocation, waypoints []GeoLocation, avoid []string) (*Route, error)
	SearchPOIs(ctx context.Context, center GeoLocation, radiusM float64, categories []POICategory, limit int) ([]ProviderPOI, error)
	GetPOIDetails(ctx context.Context, poiID string) (*ProviderPOI, error)

	ProviderType() Kind
	SupportsOfflineExport() bool
	RateLimitPerSecond() float64
}
