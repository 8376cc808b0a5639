// Package osm implements the OSM-backed GeoProvider (C4): geocoding via
// Nominatim, routing via OSRM, and POI search via Overpass, grounded on
// providers/osm/provider.py and the teacher's pkg/core/osrm.go client
// pattern.
package osm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
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

const (
	nominatimBaseURL = "https://nominatim.openstreetmap.org"
	osrmBaseURL      = "https://router.project-osrm.org"
	userAgent        = "mapalinear/1.0"

	rateLimitService = "osm"
)

// overpassEndpoints mirrors the source's fallback list: on timeout/5xx the
// next endpoint is tried, round-robin.
var overpassEndpoints = []string{
	"https://overpass-api.de/api/interpreter",
	"https://overpass.kumi.systems/api/interpreter",
}

// Provider is the OSM GeoProvider implementation.
type Provider struct {
	client       *http.Client
	retryOptions httpclient.RetryOptions
	limiter      *ratelimit.Registry
	cache        *cache.UnifiedCache

	nominatimBaseURL  string
	osrmBaseURL       string
	overpassEndpoints []string

	nextOverpassEndpoint int

	// inflight collapses concurrent callers asking for the exact same
	// geocode or route while the first request is still in flight
	// (ReverseGeocode does not go through it), so a burst of callers for the same address only costs one
	// Nominatim/OSRM round trip instead of one each.
	inflight singleflight.Group
}

// New constructs an OSM provider. cache may be nil to disable caching
// (primarily for tests). Base URLs default to the real OSM services;
// tests override them to point at httptest servers.
func New(limiter *ratelimit.Registry, c *cache.UnifiedCache) *Provider {
	return &Provider{
		client:            httpclient.DefaultClient,
		retryOptions:      httpclient.DefaultRetryOptions,
		limiter:           limiter,
		cache:             c,
		nominatimBaseURL:  nominatimBaseURL,
		osrmBaseURL:       osrmBaseURL,
		overpassEndpoints: append([]string(nil), overpassEndpoints...),
	}
}

func (p *Provider) ProviderType() provider.Kind  { return provider.KindOSM }
func (p *Provider) SupportsOfflineExport() bool  { return true }
func (p *Provider) RateLimitPerSecond() float64  { return 1.0 }

func (p *Provider) waitRateLimit(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx, rateLimitService)
}

// Geocode resolves address to coordinates via Nominatim, retrying with a
// ", Brasil" suffix first as the source does (Brazilian addresses resolve
// more reliably that way), falling back to the bare address.
func (p *Provider) Geocode(ctx context.Context, address string) (*provider.GeoLocation, error) {
	ctx, span := tracing.StartSpan(ctx, "osm.geocode")
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
		if raw, ok := p.cache.Get(ctx, "osm", "geocode", params); ok {
			var loc provider.GeoLocation
			if err := json.Unmarshal(raw, &loc); err == nil {
				return &loc, nil
			}
		}
	}

	var result *nominatimResult
	var err error
	for _, term := range []string{address + ", Brasil", address} {
		result, err = p.nominatimSearch(ctx, term)
		if err != nil {
			return nil, err
		}
		if result != nil {
			break
		}
	}
	if result == nil {
		return nil, nil
	}

	loc := result.toGeoLocation()
	if p.cache != nil {
		if raw, err := json.Marshal(loc); err == nil {
			p.cache.Set(ctx, "osm", "geocode", params, raw, 7*24*time.Hour)
		}
	}
	return &loc, nil
}

// ReverseGeocode resolves coordinates to an address via Nominatim.
// poi_name is never sent upstream; it only distinguishes the cache entry,
// matching the source's reverse_geocode cache key.
func (p *Provider) ReverseGeocode(ctx context.Context, lat, lon float64, poiName string) (*provider.GeoLocation, error) {
	ctx, span := tracing.StartSpan(ctx, "osm.reverse_geocode")
	defer span.End()

	params := map[string]any{"latitude": lat, "longitude": lon}
	if poiName != "" {
		params["poi_name"] = poiName
	}
	if p.cache != nil {
		if raw, ok := p.cache.Get(ctx, "osm", "reverse_geocode", params); ok {
			var loc provider.GeoLocation
			if err := json.Unmarshal(raw, &loc); err == nil {
				return &loc, nil
			}
		}
	}

	if err := p.waitRateLimit(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("format", "jsonv2")
	q.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.nominatimBaseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeProviderUnavailable, "osm: building nominatim reverse request", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpclient.WithRetry(ctx, req, p.client, p.retryOptions)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperr.Wrap(apperr.CodeProviderUnavailable, "osm: decoding nominatim reverse response", err)
	}

	loc := provider.GeoLocation{
		Latitude:  lat,
		Longitude: lon,
		Address:   result.DisplayName,
		City:      result.Address.city(),
		State:     result.Address.State,
		Country:   "Brasil",
	}

	if p.cache != nil {
		if raw, err := json.Marshal(loc); err == nil {
			p.cache.Set(ctx, "osm", "reverse_geocode", params, raw, 7*24*time.Hour)
		}
	}
	return &loc, nil
}

func (p *Provider) nominatimSearch(ctx context.Context, query string) (*nominatimResult, error) {
	if err := p.waitRateLimit(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "jsonv2")
	q.Set("addressdetails", "1")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.nominatimBaseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeProviderUnavailable, "osm: building nominatim search request", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpclient.WithRetry(ctx, req, p.client, p.retryOptions)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, apperr.Wrap(apperr.CodeProviderUnavailable, "osm: decoding nominatim search response", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

type nominatimAddress struct {
	City         string `json:"city"`
	Town         string `json:"town"`
	Village      string `json:"village"`
	Municipality string `json:"municipality"`
	County       string `json:"county"`
	State        string `json:"state"`
}

// city extracts the city the way the source does: try city, then town,
// village, municipality, county in order, never string-parsed.
func (a nominatimAddress) city() string {
	for _, v := range []string{a.City, a.Town, a.Village, a.Municipality, a.County} {
		if v != "" {
			return v
		}
	}
	return ""
}

type nominatimResult struct {
	Lat         string           `json:"lat"`
	Lon         string           `json:"lon"`
	DisplayName string           `json:"display_name"`
	Address     nominatimAddress `json:"address"`
}

func (r nominatimResult) toGeoLocation() provider.GeoLocation {
	lat, _ := strconv.ParseFloat(r.Lat, 64)
	lon, _ := strconv.ParseFloat(r.Lon, 64)
	return provider.GeoLocation{
		Latitude:  lat,
		Longitude: lon,
		Address:   r.DisplayName,
		City:      r.Address.city(),
		State:     r.Address.State,
		Country:   "Brasil",
	}
}

// CalculateRoute calls OSRM's driving profile with overview=full and
// geometries=geojson, as spec.md §4.3 requires. waypoints/avoid are accepted
// for interface parity with HERE but the source's OSM path ignores them
// (OSRM demo server routing is origin/destination only).
func (p *Provider) CalculateRoute(ctx context.Context, origin, destination provider.GeoLocation, waypoints []provider.GeoLocation, avoid []string) (*provider.Route, error) {
	ctx, span := tracing.StartSpan(ctx, "osm.calculate_route")
	defer span.End()

	key := fmt.Sprintf("route:%f,%f-%f,%f", origin.Latitude, origin.Longitude, destination.Latitude, destination.Longitude)
	v, err, _ := p.inflight.Do(key, func() (any, error) {
		return p.calculateRoute(ctx, origin, destination, waypoints, avoid)
	})
	if err != nil {
		return nil, err
	}
	route, _ := v.(*provider.Route)
	return route, nil
}

func (p *Provider) calculateRoute(ctx context.Context, origin, destination provider.GeoLocation, waypoints []provider.GeoLocation, avoid []string) (*provider.Route, error) {
	params := map[string]any{
		"origin_lat": origin.Latitude, "origin_lon": origin.Longitude,
		"dest_lat": destination.Latitude, "dest_lon": destination.Longitude,
		"waypoints": waypointStrings(waypoints),
		"avoid":     avoid,
	}
	if p.cache != nil {
		if raw, ok := p.cache.Get(ctx, "osm", "route", params); ok {
			var route provider.Route
			if err := json.Unmarshal(raw, &route); err == nil {
				return &route, nil
			}
		}
	}

	coords := fmt.Sprintf("%f,%f;%f,%f", origin.Longitude, origin.Latitude, destination.Longitude, destination.Latitude)
	reqURL := fmt.Sprintf("%s/route/v1/driving/%s?overview=full&geometries=geojson&annotations=true&steps=true", p.osrmBaseURL, coords)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeProviderUnavailable, "osm: building osrm request", err)
	}

	resp, err := httpclient.WithRetry(ctx, req, p.client, p.retryOptions)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result osrmResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperr.Wrap(apperr.CodeProviderUnavailable, "osm: decoding osrm response", err)
	}
	if result.Code != "Ok" || len(result.Routes) == 0 {
		return nil, apperr.New(apperr.CodeProviderUnavailable, fmt.Sprintf("osm: osrm returned no route: %s", result.Message))
	}

	osrmRoute := result.Routes[0]
	geometry := make([][2]float64, len(osrmRoute.Geometry.Coordinates))
	for i, c := range osrmRoute.Geometry.Coordinates {
		geometry[i] = [2]float64{c[1], c[0]} // [lon,lat] -> [lat,lon]
	}

	route := provider.Route{
		TotalDistanceKm:  osrmRoute.Distance / 1000.0,
		TotalDurationMin: osrmRoute.Duration / 60.0,
		Geometry:         geometry,
	}

	roadNames := make(map[string]bool)
	for _, leg := range osrmRoute.Legs {
		for _, step := range leg.Steps {
			stepGeom := make([][2]float64, len(step.Geometry.Coordinates))
			for i, c := range step.Geometry.Coordinates {
				stepGeom[i] = [2]float64{c[1], c[0]}
			}
			route.Steps = append(route.Steps, provider.RouteStep{
				DistanceM:    step.Distance,
				DurationS:    step.Duration,
				Geometry:     stepGeom,
				RoadName:     step.Name,
				ManeuverType: step.Maneuver.Type,
			})
			if step.Name != "" {
				roadNames[step.Name] = true
			}
		}
	}
	for name := range roadNames {
		route.RoadNames = append(route.RoadNames, name)
	}
	sort.Strings(route.RoadNames)

	if p.cache != nil {
		if raw, err := json.Marshal(route); err == nil {
			p.cache.Set(ctx, "osm", "route", params, raw, 6*time.Hour)
		}
	}
	return &route, nil
}

func waypointStrings(waypoints []provider.GeoLocation) []string {
	out := make([]string, len(waypoints))
	for i, w := range waypoints {
		out[i] = fmt.Sprintf("%f,%f", w.Latitude, w.Longitude)
	}
	return out
}

type osrmGeometry struct {
	Coordinates [][2]float64 `json:"coordinates"`
}

type osrmManeuver struct {
	Type string `json:"type"`
}

type osrmStep struct {
	Distance float64      `json:"distance"`
	Duration float64      `json:"duration"`
	Name     string       `json:"name"`
	Geometry osrmGeometry `json:"geometry"`
	Maneuver osrmManeuver `json:"maneuver"`
}

type osrmLeg struct {
	Steps []osrmStep `json:"steps"`
}

type osrmRoute struct {
	Distance float64      `json:"distance"`
	Duration float64      `json:"duration"`
	Geometry osrmGeometry `json:"geometry"`
	Legs     []osrmLeg    `json:"legs"`
}

type osrmResult struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Routes  []osrmRoute `json:"routes"`
}

// SearchPOIs queries Overpass for amenity/tourism/place nodes within radiusM
// of center, mapping them into ProviderPOI with a quality score.
func (p *Provider) SearchPOIs(ctx context.Context, center provider.GeoLocation, radiusM float64, categories []provider.POICategory, limit int) ([]provider.ProviderPOI, error) {
	ctx, span := tracing.StartSpan(ctx, "osm.search_pois")
	defer span.End()

	categoryValues := make([]string, len(categories))
	for i, c := range categories {
		categoryValues[i] = string(c)
	}
	params := map[string]any{
		"latitude": center.Latitude, "longitude": center.Longitude,
		"radius": radiusM, "categories": toAnySlice(categoryValues), "limit": limit,
	}
	if p.cache != nil {
		if raw, ok := p.cache.Get(ctx, "osm", "poi_search", params); ok {
			var pois []provider.ProviderPOI
			if err := json.Unmarshal(raw, &pois); err == nil {
				return pois, nil
			}
		}
	}

	query := buildOverpassQuery(center, radiusM, categories)
	data, err := p.overpassRequest(ctx, query)
	if err != nil {
		return nil, err
	}

	var pois []provider.ProviderPOI
	for _, el := range data.Elements {
		poi, ok := elementToPOI(el)
		if !ok {
			continue
		}
		pois = append(pois, poi)
		if limit > 0 && len(pois) >= limit {
			break
		}
	}

	if p.cache != nil {
		if raw, err := json.Marshal(pois); err == nil {
			p.cache.Set(ctx, "osm", "poi_search", params, raw, 24*time.Hour)
		}
	}
	return pois, nil
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// GetPOIDetails fetches a single OSM element by its "type/id" poiID.
func (p *Provider) GetPOIDetails(ctx context.Context, poiID string) (*provider.ProviderPOI, error) {
	ctx, span := tracing.StartSpan(ctx, "osm.get_poi_details")
	defer span.End()

	parts := strings.SplitN(poiID, "/", 2)
	if len(parts) != 2 {
		return nil, apperr.New(apperr.CodeProviderUnavailable, "osm: invalid poi id, expected type/id")
	}

	query := fmt.Sprintf("[out:json];%s(%s);out meta;", parts[0], parts[1])
	data, err := p.overpassRequest(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(data.Elements) == 0 {
		return nil, nil
	}
	poi, ok := elementToPOI(data.Elements[0])
	if !ok {
		return nil, nil
	}
	return &poi, nil
}

// buildOverpassQuery mirrors _generate_overpass_query: regular amenity/
// tourism tags get a radius/111000-degree bbox; place=city|town|village gets
// a 5x larger bbox since city centers can sit far from the highway.
func buildOverpassQuery(center provider.GeoLocation, radiusM float64, categories []provider.POICategory) string {
	radiusDeg := radiusM / 111000
	placeDeg := (radiusM * 5) / 111000

	bbox := fmt.Sprintf("%f,%f,%f,%f", center.Latitude-radiusDeg, center.Longitude-radiusDeg, center.Latitude+radiusDeg, center.Longitude+radiusDeg)
	placeBBox := fmt.Sprintf("%f,%f,%f,%f", center.Latitude-placeDeg, center.Longitude-placeDeg, center.Latitude+placeDeg, center.Longitude+placeDeg)

	amenities := make(map[string]bool)
	tourisms := make(map[string]bool)
	includePlaces := false
	for _, cat := range categories {
		if cat == provider.CategoryServices {
			includePlaces = true
		}
		for _, a := range amenitiesForCategory(cat) {
			amenities[a] = true
		}
		for _, t := range tourismForCategory(cat) {
			tourisms[t] = true
		}
	}

	var b strings.Builder
	b.WriteString("[out:json];(")
	for a := range amenities {
		fmt.Fprintf(&b, `node["amenity"="%s"](%s);way["amenity"="%s"](%s);`, a, bbox, a, bbox)
	}
	for t := range tourisms {
		fmt.Fprintf(&b, `node["tourism"="%s"](%s);way["tourism"="%s"](%s);`, t, bbox, t, bbox)
	}
	if includePlaces {
		for _, placeType := range []string{"city", "town", "village"} {
			fmt.Fprintf(&b, `node["place"="%s"](%s);way["place"="%s"](%s);`, placeType, placeBBox, placeType, placeBBox)
		}
	}
	b.WriteString(");out meta;")
	return b.String()
}

func amenitiesForCategory(c provider.POICategory) []string {
	switch c {
	case provider.CategoryGasStation, provider.CategoryFuel:
		return []string{"fuel"}
	case provider.CategoryRestaurant:
		return []string{"restaurant", "fast_food"}
	case provider.CategoryFood:
		return []string{"restaurant", "fast_food", "cafe", "food_court"}
	case provider.CategoryHotel:
		return []string{"hotel"}
	case provider.CategoryLodging:
		return []string{"hotel", "motel", "hostel", "guest_house"}
	case provider.CategoryHospital:
		return []string{"hospital"}
	case provider.CategoryPharmacy:
		return []string{"pharmacy"}
	case provider.CategoryBank:
		return []string{"bank"}
	case provider.CategoryATM:
		return []string{"atm"}
	case provider.CategoryShopping:
		return []string{"shop"}
	case provider.CategoryParking:
		return []string{"parking"}
	case provider.CategoryServices:
		return []string{"police"}
	default:
		return nil
	}
}

func tourismForCategory(c provider.POICategory) []string {
	switch c {
	case provider.CategoryHotel:
		return []string{"hotel", "motel"}
	case provider.CategoryLodging:
		return []string{"hotel", "motel", "hostel", "guest_house", "apartment"}
	case provider.CategoryTouristAttraction:
		return []string{"attraction", "museum", "viewpoint"}
	default:
		return nil
	}
}

type overpassElement struct {
	Type string            `json:"type"`
	ID   int64             `json:"id"`
	Lat  float64           `json:"lat"`
	Lon  float64           `json:"lon"`
	Tags map[string]string `json:"tags"`
	Center *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"center"`
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

// overpassRequest posts query to the current endpoint, failing over to the
// next one round-robin on timeout/5xx, matching _make_overpass_request.
func (p *Provider) overpassRequest(ctx context.Context, query string) (*overpassResponse, error) {
	if err := p.waitRateLimit(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < len(p.overpassEndpoints); attempt++ {
		endpoint := p.overpassEndpoints[p.nextOverpassEndpoint]

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(url.Values{"data": {query}}.Encode()))
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeProviderUnavailable, "osm: building overpass request", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("User-Agent", userAgent)

		resp, err := p.client.Do(req)
		p.nextOverpassEndpoint = (p.nextOverpassEndpoint + 1) % len(p.overpassEndpoints)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = apperr.New(apperr.CodeProviderUnavailable, fmt.Sprintf("osm: overpass endpoint %s returned %d", endpoint, resp.StatusCode))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, apperr.New(apperr.CodeProviderUnavailable, fmt.Sprintf("osm: overpass endpoint %s returned %d", endpoint, resp.StatusCode))
		}

		var result overpassResponse
		err = json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeProviderUnavailable, "osm: decoding overpass response", err)
		}
		return &result, nil
	}
	return nil, apperr.Wrap(apperr.CodeProviderUnavailable, "osm: all overpass endpoints failed", lastErr)
}

var abandonmentIndicators = []string{
	"abandoned", "disused", "demolished", "razed", "removed", "ruins", "former", "closed", "destroyed",
}

func isAbandoned(tags map[string]string) bool {
	for _, indicator := range abandonmentIndicators {
		if v := tags[indicator]; v == "yes" || v == "true" || v == "1" {
			return true
		}
		for key := range tags {
			if strings.HasPrefix(key, indicator+":") {
				return true
			}
		}
	}
	return tags["opening_hours"] == "closed" || tags["opening_hours"] == "no"
}

// qualityScore mirrors _calculate_poi_quality_score's 7-criterion scoring.
func qualityScore(tags map[string]string) float64 {
	score := 0.0
	if tags["name"] != "" {
		score++
	}
	if tags["operator"] != "" || tags["brand"] != "" {
		score++
	}
	if tags["phone"] != "" || tags["contact:phone"] != "" {
		score++
	}
	if tags["opening_hours"] != "" {
		score++
	}
	if tags["website"] != "" || tags["contact:website"] != "" {
		score++
	}
	if tags["amenity"] == "restaurant" {
		if tags["cuisine"] != "" {
			score++
		}
	} else {
		score++
	}
	if tags["addr:street"] != "" || tags["addr:housenumber"] != "" || tags["addr:city"] != "" {
		score++
	}
	return score / 7.0
}

func qualityIssues(tags map[string]string, score float64) []string {
	var issues []string
	if isAbandoned(tags) {
		issues = append(issues, "abandoned")
	}
	if tags["name"] == "" {
		issues = append(issues, "missing_name")
	}
	if tags["amenity"] == "fuel" && tags["brand"] == "" && tags["operator"] == "" {
		issues = append(issues, "missing_brand")
	}
	if score < 0.3 {
		issues = append(issues, "low_score")
	}
	if tags["phone"] == "" && tags["contact:phone"] == "" && tags["website"] == "" && tags["contact:website"] == "" {
		issues = append(issues, "missing_contact")
	}
	if tags["opening_hours"] == "" {
		issues = append(issues, "missing_hours")
	}
	return issues
}

var tourismToCategory = map[string]provider.POICategory{
	"hotel":       provider.CategoryHotel,
	"motel":       provider.CategoryHotel,
	"hostel":      provider.CategoryLodging,
	"guest_house": provider.CategoryLodging,
	"apartment":   provider.CategoryLodging,
}

var amenityToCategory = map[string]provider.POICategory{
	"fuel":       provider.CategoryGasStation,
	"restaurant": provider.CategoryRestaurant,
	"hotel":      provider.CategoryHotel,
	"hospital":   provider.CategoryHospital,
	"pharmacy":   provider.CategoryPharmacy,
	"bank":       provider.CategoryBank,
	"atm":        provider.CategoryATM,
	"shop":       provider.CategoryShopping,
	"tourism":    provider.CategoryTouristAttraction,
	"parking":    provider.CategoryParking,
	"food_court": provider.CategoryFood,
	"fast_food":  provider.CategoryFood,
	"cafe":       provider.CategoryFood,
}

// elementToPOI mirrors _parse_osm_element_to_poi: elements without a name,
// amenity, or place tag are dropped.
func elementToPOI(el overpassElement) (provider.ProviderPOI, bool) {
	tags := el.Tags
	if tags["name"] == "" && tags["amenity"] == "" && tags["place"] == "" {
		return provider.ProviderPOI{}, false
	}

	lat, lon := el.Lat, el.Lon
	if el.Center != nil {
		lat, lon = el.Center.Lat, el.Center.Lon
	}
	if lat == 0 && lon == 0 && el.Center == nil {
		return provider.ProviderPOI{}, false
	}

	var category provider.POICategory
	placeType := tags["place"]
	if placeType == "city" || placeType == "town" || placeType == "village" {
		category = provider.CategoryServices
	} else if c, ok := tourismToCategory[tags["tourism"]]; ok {
		category = c
	} else if c, ok := amenityToCategory[tags["amenity"]]; ok {
		category = c
	} else {
		category = provider.CategoryServices
	}

	name := tags["name"]
	if name == "" {
		if placeType != "" {
			name = titleCase(placeType) + " sem nome"
		} else if tags["amenity"] != "" {
			name = tags["amenity"]
		} else {
			name = "Unknown POI"
		}
	}

	score := qualityScore(tags)
	issues := qualityIssues(tags, score)

	return provider.ProviderPOI{
		ProviderID:    fmt.Sprintf("%s/%d", el.Type, el.ID),
		Provider:      provider.KindOSM,
		Name:          name,
		Category:      category,
		Latitude:      lat,
		Longitude:     lon,
		Operator:      tags["operator"],
		Brand:         tags["brand"],
		OpeningHours:  tags["opening_hours"],
		Phone:         firstNonEmpty(tags["phone"], tags["contact:phone"]),
		Website:       firstNonEmpty(tags["website"], tags["contact:website"]),
		Cuisine:       tags["cuisine"],
		Amenities:     extractAmenities(tags),
		Tags:          tags,
		IsAbandoned:   isAbandoned(tags),
		QualityScore:  score,
		QualityIssues: issues,
	}, true
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var amenityTagMappings = map[string]string{
	"internet_access":      "internet",
	"wifi":                 "wifi",
	"parking":              "estacionamento",
	"wheelchair":           "acessível",
	"payment:cash":         "dinheiro",
	"payment:cards":        "cartão",
	"payment:contactless":  "contactless",
	"payment:credit_cards": "cartão de crédito",
	"payment:debit_cards":  "cartão de débito",
	"fuel:diesel":          "diesel",
	"fuel:octane_91":       "gasolina comum",
	"fuel:octane_95":       "gasolina aditivada",
	"fuel:lpg":             "GNV",
	"fuel:ethanol":         "etanol",
	"toilets":              "banheiro",
	"shower":               "chuveiro",
	"outdoor_seating":      "área externa",
	"air_conditioning":     "ar condicionado",
	"takeaway":             "delivery",
	"delivery":             "delivery",
	"drive_through":        "drive-thru",
}

// extractAmenities mirrors _extract_amenities_from_tags: boolean-valued tags
// are translated to a Portuguese amenity label set, deduped and sorted.
func extractAmenities(tags map[string]string) []string {
	set := make(map[string]bool)
	for key, value := range tags {
		v := strings.ToLower(value)
		if v != "yes" && v != "true" && v != "1" && v != "available" {
			continue
		}
		if label, ok := amenityTagMappings[key]; ok {
			set[label] = true
		}
	}

	if tags["amenity"] == "fuel" && tags["toilets"] != "no" {
		set["banheiro"] = true
	}

	hours := tags["opening_hours"]
	if strings.Contains(hours, "24/7") || strings.Contains(hours, "Mo-Su 00:00-24:00") {
		set["24h"] = true
	}

	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
