// Package here implements the HERE-backed GeoProvider (C4): geocoding,
// reverse geocoding and POI search via the HERE REST APIs, grounded on
// providers/here/provider.py. Routing is not implemented — the source
// itself raises NotImplementedError there, and spec.md routes exclusively
// through the OSM/OSRM adapter regardless of POI_PROVIDER.
package here

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/remintz/mapalinear/internal/apperr"
	"github.com/remintz/mapalinear/internal/cache"
	"github.com/remintz/mapalinear/internal/httpclient"
	"github.com/remintz/mapalinear/internal/provider"
	"github.com/remintz/mapalinear/internal/ratelimit"
	"github.com/remintz/mapalinear/internal/tracing"
)

const rateLimitService = "here"

// categoryToHERE maps a POICategory to HERE's place category system.
// https://developer.here.com/documentation/geocoding-search-api/dev_guide/topics-places/places-category-system-full.html
var categoryToHERE = map[provider.POICategory]string{
	provider.CategoryGasStation:        "700-7600-0116",
	provider.CategoryRestaurant:        "100-1000",
	provider.CategoryHotel:             "500-5000,500-5100",
	provider.CategoryHospital:          "800-8000-0159",
	provider.CategoryPharmacy:          "600-6400-0000",
	provider.CategoryATM:               "700-7010-0108",
	provider.CategoryPolice:            "700-7300-0000",
	provider.CategoryMechanic:          "700-7850-0000",
	provider.CategoryRestArea:          "700-7600-0000",
	provider.CategorySupermarket:       "600-6300-0066",
	provider.CategoryShopping:          "600-6000",
	provider.CategoryTouristAttraction: "300-3000",
	provider.CategoryCafe:              "100-1100",
	provider.CategoryFastFood:          "100-1000-0001",
}

// herePrefixToCategory is the reverse of categoryToHERE, keyed by the first
// two dotted groups of a HERE category ID.
var herePrefixToCategory = map[string]provider.POICategory{
	"700-7600": provider.CategoryGasStation,
	"100-1000": provider.CategoryRestaurant,
	"100-1100": provider.CategoryCafe,
	"500-5000": provider.CategoryHotel,
	"500-5100": provider.CategoryHotel,
	"800-8000": provider.CategoryHospital,
	"600-6400": provider.CategoryPharmacy,
	"700-7010": provider.CategoryATM,
	"700-7300": provider.CategoryPolice,
	"700-7850": provider.CategoryMechanic,
	"600-6300": provider.CategorySupermarket,
	"600-6000": provider.CategoryShopping,
	"300-3000": provider.CategoryTouristAttraction,
}

func categoryFromHEREID(id string) provider.POICategory {
	for prefix, cat := range herePrefixToCategory {
		if strings.HasPrefix(id, prefix) {
			return cat
		}
	}
	return provider.CategoryOther
}

// Provider is the HERE GeoProvider implementation. Constructing one without
// an API key is a configuration error, matching the source's constructor.
type Provider struct {
	apiKey       string
	client       *http.Client
	retryOptions httpclient.RetryOptions
	limiter      *ratelimit.Registry
	cache        *cache.UnifiedCache

	geocodeURL    string
	reverseURL    string
	browseURL     string
	lookupURL     string

	// inflight collapses concurrent callers asking for the same geocode or
	// reverse-geocode lookup into a single HERE request, same rationale as
	// the OSM provider's equivalent group.
	inflight singleflight.Group
}

// New constructs a HERE provider. Returns an error if apiKey is empty,
// matching the source's "HERE_API_KEY is required" guard.
func New(apiKey string, limiter *ratelimit.Registry, c *cache.UnifiedCache) (*Provider, error) {
	if apiKey == "" {
		return nil, apperr.New(apperr.CodeProviderUnavailable, "here: HERE_API_KEY is required for the HERE provider")
	}
	return &Provider{
		apiKey:       apiKey,
		client:       httpclient.DefaultClient,
		retryOptions: httpclient.DefaultRetryOptions,
		limiter:      limiter,
		cache:        c,
		geocodeURL:   "https://geocode.search.hereapi.com/v1/geocode",
		reverseURL:   "https://revgeocode.search.hereapi.com/v1/revgeocode",
		browseURL:    "https://browse.search.hereapi.com/v1/browse",
		lookupURL:    "https://lookup.search.hereapi.com/v1/lookup",
	}, nil
}

func (p *Provider) ProviderType() provider.Kind { return provider.KindHERE }
func (p *Provider) SupportsOfflineExport() bool { return true }
func (p *Provider) RateLimitPerSecond() float64 { return 5.0 }

func (p *Provider) waitRateLimit(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx, rateLimitService)
}

type herePosition struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type hereAddress struct {
	Label       string `json:"label"`
	City        string `json:"city"`
	State       string `json:"state"`
	CountryName string `json:"countryName"`
	PostalCode  string `json:"postalCode"`
}

type hereGeocodeItem struct {
	Title    string       `json:"title"`
	Position herePosition `json:"position"`
	Address  hereAddress  `json:"address"`
}

type hereGeocodeResponse struct {
	Items []hereGeocodeItem `json:"items"`
}

// Geocode resolves address via the HERE Geocoding API.
func (p *Provider) Geocode(ctx context.Context, address string) (*provider.GeoLocation, error) {
	ctx, span := tracing.StartSpan(ctx, "here.geocode")
	defer span.End()

	v, err, _ := p.inflight.Do("geocode:"+address, func() (any, error) {
		return p.geocode(ctx, address)
	})
	if err != nil {
		return nil, err
	}
	loc, _ := v.(*provider.GeoLocation)
	return loc, nil
}

func (p *Provider) geocode(ctx context.Context, address string) (*provider.GeoLocation, error) {
	params := map[string]any{"address": address}
	if p.cache != nil {
		if raw, ok := p.cache.Get(ctx, "here", "geocode", params); ok {
			var loc provider.GeoLocation
			if err := json.Unmarshal(raw, &loc); err == nil {
				return &loc, nil
			}
		}
	}

	q := url.Values{"q": {address}, "apiKey": {p.apiKey}, "limit": {"1"}, "lang": {"pt-BR"}}
	var resp hereGeocodeResponse
	if err := p.get(ctx, p.geocodeURL, q, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}

	item := resp.Items[0]
	loc := provider.GeoLocation{
		Latitude:   item.Position.Lat,
		Longitude:  item.Position.Lng,
		Address:    item.Title,
		City:       item.Address.City,
		State:      item.Address.State,
		Country:    firstNonEmpty(item.Address.CountryName, "Brasil"),
		PostalCode: item.Address.PostalCode,
	}

	if p.cache != nil {
		if raw, err := json.Marshal(loc); err == nil {
			p.cache.Set(ctx, "here", "geocode", params, raw, 7*24*time.Hour)
		}
	}
	return &loc, nil
}

// ReverseGeocode resolves coordinates via the HERE Reverse Geocoding API.
func (p *Provider) ReverseGeocode(ctx context.Context, lat, lon float64, poiName string) (*provider.GeoLocation, error) {
	ctx, span := tracing.StartSpan(ctx, "here.reverse_geocode")
	defer span.End()

	v, err, _ := p.inflight.Do(fmt.Sprintf("reverse:%f,%f", lat, lon), func() (any, error) {
		return p.reverseGeocode(ctx, lat, lon, poiName)
	})
	if err != nil {
		return nil, err
	}
	loc, _ := v.(*provider.GeoLocation)
	return loc, nil
}

func (p *Provider) reverseGeocode(ctx context.Context, lat, lon float64, poiName string) (*provider.GeoLocation, error) {
	params := map[string]any{"latitude": lat, "longitude": lon}
	if poiName != "" {
		params["poi_name"] = poiName
	}
	if p.cache != nil {
		if raw, ok := p.cache.Get(ctx, "here", "reverse_geocode", params); ok {
			var loc provider.GeoLocation
			if err := json.Unmarshal(raw, &loc); err == nil {
				return &loc, nil
			}
		}
	}

	q := url.Values{"at": {fmt.Sprintf("%f,%f", lat, lon)}, "apiKey": {p.apiKey}, "lang": {"pt-BR"}}
	var resp hereGeocodeResponse
	if err := p.get(ctx, p.reverseURL, q, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}

	item := resp.Items[0]
	loc := provider.GeoLocation{
		Latitude:   lat,
		Longitude:  lon,
		Address:    item.Title,
		City:       item.Address.City,
		State:      item.Address.State,
		Country:    firstNonEmpty(item.Address.CountryName, "Brasil"),
		PostalCode: item.Address.PostalCode,
	}

	if p.cache != nil {
		if raw, err := json.Marshal(loc); err == nil {
			p.cache.Set(ctx, "here", "reverse_geocode", params, raw, 7*24*time.Hour)
		}
	}
	return &loc, nil
}

// CalculateRoute is not implemented by the HERE provider, matching the
// source (Phase 3 TODO there). spec.md §4.3 always routes via OSM/OSRM.
func (p *Provider) CalculateRoute(ctx context.Context, origin, destination provider.GeoLocation, waypoints []provider.GeoLocation, avoid []string) (*provider.Route, error) {
	return nil, apperr.New(apperr.CodeProviderUnavailable, "here: HERE routing is not implemented, use the OSM provider")
}

type hereContact struct {
	Phone []struct {
		Value string `json:"value"`
	} `json:"phone"`
	WWW []struct {
		Value string `json:"value"`
	} `json:"www"`
}

type hereOpeningHours struct {
	Text   any  `json:"text"`
	IsOpen bool `json:"isOpen"`
}

type herePlace struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Position herePosition      `json:"position"`
	Address  hereAddress       `json:"address"`
	Contacts []hereContact     `json:"contacts"`
	OpeningHours []hereOpeningHours `json:"openingHours"`
	Categories []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"categories"`
	Distance float64 `json:"distance"`
}

type hereBrowseResponse struct {
	Items []herePlace `json:"items"`
}

// SearchPOIs queries the HERE Browse API within a circle of radiusM around
// center, restricted to the HERE category IDs mapped from categories.
func (p *Provider) SearchPOIs(ctx context.Context, center provider.GeoLocation, radiusM float64, categories []provider.POICategory, limit int) ([]provider.ProviderPOI, error) {
	ctx, span := tracing.StartSpan(ctx, "here.search_pois")
	defer span.End()

	hereCategories := mapCategoriesToHERE(categories)
	if hereCategories == "" {
		return nil, nil
	}

	categoryValues := make([]any, len(categories))
	for i, c := range categories {
		categoryValues[i] = string(c)
	}
	params := map[string]any{
		"location":   fmt.Sprintf("%f,%f", center.Latitude, center.Longitude),
		"radius":     radiusM,
		"categories": categoryValues,
		"limit":      limit,
	}
	if p.cache != nil {
		if raw, ok := p.cache.Get(ctx, "here", "poi_search", params); ok {
			var pois []provider.ProviderPOI
			if err := json.Unmarshal(raw, &pois); err == nil {
				return pois, nil
			}
		}
	}

	if limit <= 0 || limit > 100 {
		limit = 100
	}
	q := url.Values{
		"at":         {fmt.Sprintf("%f,%f", center.Latitude, center.Longitude)},
		"categories": {hereCategories},
		"limit":      {fmt.Sprintf("%d", limit)},
		"apiKey":     {p.apiKey},
		"lang":       {"pt-BR"},
		"in":         {fmt.Sprintf("circle:%f,%f;r=%d", center.Latitude, center.Longitude, int(radiusM))},
	}

	var resp hereBrowseResponse
	if err := p.get(ctx, p.browseURL, q, &resp); err != nil {
		return nil, err
	}

	pois := make([]provider.ProviderPOI, 0, len(resp.Items))
	for _, item := range resp.Items {
		pois = append(pois, placeToPOI(item))
	}

	if p.cache != nil {
		if raw, err := json.Marshal(pois); err == nil {
			p.cache.Set(ctx, "here", "poi_search", params, raw, 24*time.Hour)
		}
	}
	return pois, nil
}

// GetPOIDetails fetches a single place via the HERE Lookup API. poiID may
// carry a "here/" prefix, stripped before the lookup call.
func (p *Provider) GetPOIDetails(ctx context.Context, poiID string) (*provider.ProviderPOI, error) {
	ctx, span := tracing.StartSpan(ctx, "here.get_poi_details")
	defer span.End()

	hereID := strings.TrimPrefix(poiID, "here/")

	params := map[string]any{"poi_id": poiID}
	if p.cache != nil {
		if raw, ok := p.cache.Get(ctx, "here", "poi_details", params); ok {
			var poi provider.ProviderPOI
			if err := json.Unmarshal(raw, &poi); err == nil {
				return &poi, nil
			}
		}
	}

	q := url.Values{"id": {hereID}, "apiKey": {p.apiKey}, "lang": {"pt-BR"}}
	var place herePlace
	if err := p.get(ctx, p.lookupURL, q, &place); err != nil {
		return nil, err
	}
	if place.ID == "" {
		return nil, nil
	}

	poi := placeToPOI(place)
	if p.cache != nil {
		if raw, err := json.Marshal(poi); err == nil {
			p.cache.Set(ctx, "here", "poi_details", params, raw, 12*time.Hour)
		}
	}
	return &poi, nil
}

func mapCategoriesToHERE(categories []provider.POICategory) string {
	var ids []string
	for _, c := range categories {
		if id, ok := categoryToHERE[c]; ok && id != "" {
			ids = append(ids, id)
		}
	}
	return strings.Join(ids, ",")
}

func placeToPOI(place herePlace) provider.ProviderPOI {
	category := provider.CategoryOther
	if len(place.Categories) > 0 {
		category = categoryFromHEREID(place.Categories[0].ID)
	}

	var phone, website string
	for _, c := range place.Contacts {
		if phone == "" && len(c.Phone) > 0 {
			phone = c.Phone[0].Value
		}
		if website == "" && len(c.WWW) > 0 {
			website = c.WWW[0].Value
		}
	}

	var openingHours string
	for _, oh := range place.OpeningHours {
		switch text := oh.Text.(type) {
		case string:
			openingHours = text
		case []any:
			parts := make([]string, 0, len(text))
			for _, t := range text {
				if s, ok := t.(string); ok {
					parts = append(parts, s)
				}
			}
			openingHours = strings.Join(parts, "; ")
		}
		if openingHours != "" {
			break
		}
	}

	name := place.Title
	if name == "" {
		name = "Unknown"
	}

	return provider.ProviderPOI{
		ProviderID:   fmt.Sprintf("here/%s", place.ID),
		Provider:     provider.KindHERE,
		Name:         name,
		Category:     category,
		Latitude:     place.Position.Lat,
		Longitude:    place.Position.Lng,
		City:         place.Address.City,
		OpeningHours: openingHours,
		Phone:        phone,
		Website:      website,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (p *Provider) get(ctx context.Context, base string, q url.Values, out any) error {
	if err := p.waitRateLimit(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+q.Encode(), nil)
	if err != nil {
		return apperr.Wrap(apperr.CodeProviderUnavailable, "here: building here request", err)
	}

	resp, err := httpclient.WithRetry(ctx, req, p.client, p.retryOptions)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.CodeProviderUnavailable, "here: decoding here response", err)
	}
	return nil
}
