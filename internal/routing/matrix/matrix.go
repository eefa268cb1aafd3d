// Package matrix implements MatrixProvider (§4.1): fetching
// distance/duration matrices for an ordered list of points, with a real
// HTTP backend (OSRM table API), a deterministic haversine-based fallback
// provider, and caching keyed by the point set's fingerprint.
package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"logistics/internal/routing/domain"
	"logistics/pkg/cache"
	"logistics/pkg/logger"
)

// earthRadiusMiles is Earth's radius in miles, used by the haversine
// formula (matches the original provider's constant).
const earthRadiusMiles = 3959.0

// milesToMeters is the miles-to-meters conversion factor.
const milesToMeters = 1609.34

// Source tags a matrix's origin, used to tag the response (§7
// MatrixBackendError: "fallback result is tagged").
type Source string

const (
	SourceReal     Source = "real"
	SourceFallback Source = "fallback"
)

// Result is the outcome of MatrixProvider.GetMatrix.
type Result struct {
	DistanceMeters  [][]int
	DurationMinutes [][]int
	Source          Source
}

// Provider is the §4.1 contract: returns (D[N][N] meters, T[N][N] minutes)
// for an ordered list of points; deterministic for a fixed input and never
// reorders the points.
type Provider interface {
	GetMatrix(ctx context.Context, points []domain.Point) (Result, error)
}

// HaversineProvider is the fallback provider based on great-circle
// distance (§4.1 "HaversineProvider (fallback)"). Stateless, safe for
// concurrent use.
type HaversineProvider struct {
	SpeedMPH float64
}

// NewHaversineProvider creates the fallback provider with the given
// average speed.
func NewHaversineProvider(speedMPH float64) *HaversineProvider {
	if speedMPH <= 0 {
		speedMPH = 30.0
	}
	return &HaversineProvider{SpeedMPH: speedMPH}
}

// GetMatrix implements Provider for HaversineProvider. The matrix is
// always symmetric with a zero diagonal.
func (p *HaversineProvider) GetMatrix(_ context.Context, points []domain.Point) (Result, error) {
	n := len(points)
	dist := make([][]int, n)
	dur := make([][]int, n)

	for i := range dist {
		dist[i] = make([]int, n)
		dur[i] = make([]int, n)
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			miles := haversineMiles(points[i], points[j])
			dist[i][j] = int(miles * milesToMeters)
			dur[i][j] = int(miles / p.SpeedMPH * 60)
		}
	}

	return Result{DistanceMeters: dist, DurationMinutes: dur, Source: SourceFallback}, nil
}

// haversineMiles computes the great-circle distance between two points, in
// miles.
func haversineMiles(a, b domain.Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	deltaLat := (b.Lat - a.Lat) * math.Pi / 180
	deltaLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMiles * c
}

// RealProvider is an HTTP client for an external OSRM-style route table
// service (§4.1 "RealProvider"). On any failure (non-2xx, timeout, bad
// response body, location limit exceeded), the caller (CachingProvider)
// must fall back to HaversineProvider — RealProvider itself only reports
// the failure through an MatrixBackendError-like sentinel; it never
// panics or retries.
type RealProvider struct {
	BaseURL        string
	MaxLocations   int
	RequestTimeout time.Duration
	httpClient     *http.Client
}

// ErrBackendUnavailable is the internal sentinel for §7 MatrixBackendError:
// "never surfaced - always downgrades to fallback matrices".
var ErrBackendUnavailable = errors.New("matrix backend unavailable")

// NewRealProvider creates the HTTP matrix provider.
func NewRealProvider(baseURL string, maxLocations int, timeout time.Duration) *RealProvider {
	if maxLocations <= 0 {
		maxLocations = 100
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RealProvider{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		MaxLocations:   maxLocations,
		RequestTimeout: timeout,
		httpClient:     &http.Client{Timeout: timeout},
	}
}

// osrmTableResponse is the shape of OSRM's
// /table/v1/driving/... ?annotations=distance,duration response.
type osrmTableResponse struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Distances [][]float64 `json:"distances"`
	Durations [][]float64 `json:"durations"`
}

// GetMatrix implements Provider for RealProvider. Returns
// ErrBackendUnavailable on any failure so the caller can transparently
// switch to HaversineProvider (§4.1 "Failure modes").
func (p *RealProvider) GetMatrix(ctx context.Context, points []domain.Point) (Result, error) {
	if len(points) > p.MaxLocations {
		return Result{}, fmt.Errorf("%w: %d locations exceeds max %d", ErrBackendUnavailable, len(points), p.MaxLocations)
	}

	coords := make([]string, len(points))
	for i, pt := range points {
		coords[i] = fmt.Sprintf("%g,%g", pt.Lng, pt.Lat)
	}

	url := fmt.Sprintf("%s/table/v1/driving/%s?annotations=distance,duration", p.BaseURL, strings.Join(coords, ";"))

	ctx, cancel := context.WithTimeout(ctx, p.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%w: HTTP %d", ErrBackendUnavailable, resp.StatusCode)
	}

	var body osrmTableResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if body.Code != "Ok" {
		return Result{}, fmt.Errorf("%w: %s", ErrBackendUnavailable, body.Message)
	}

	n := len(points)
	if len(body.Distances) != n || len(body.Durations) != n {
		return Result{}, fmt.Errorf("%w: table size does not match %d locations", ErrBackendUnavailable, n)
	}
	for i := 0; i < n; i++ {
		if len(body.Distances[i]) != n || len(body.Durations[i]) != n {
			return Result{}, fmt.Errorf("%w: table row %d does not match %d locations", ErrBackendUnavailable, i, n)
		}
	}
	dist := make([][]int, n)
	dur := make([][]int, n)
	for i := 0; i < n; i++ {
		dist[i] = make([]int, n)
		dur[i] = make([]int, n)
		for j := 0; j < n; j++ {
			dist[i][j] = int(body.Distances[i][j])
			if i == j {
				continue
			}
			// Seconds -> minutes, rounded down, but never below 1 minute
			// for any pair of distinct points (§4.1 "floor 1 ... to avoid
			// zero-cost arcs").
			minutes := int(body.Durations[i][j] / 60)
			if minutes < 1 {
				minutes = 1
			}
			dur[i][j] = minutes
		}
	}

	return Result{DistanceMeters: dist, DurationMinutes: dur, Source: SourceReal}, nil
}

// CachingProvider wraps RealProvider+HaversineProvider with a cache keyed
// by the point set's fingerprint and a transparent fallback switch (§4.1
// "Caching" and "Failure modes").
type CachingProvider struct {
	real      Provider
	fallback  *HaversineProvider
	cache     *cache.MatrixCache
	ttl       time.Duration
	precision int
}

// NewCachingProvider creates the composite provider. real may be nil, in
// which case fallback is always used (useful for tests and offline
// environments).
func NewCachingProvider(real Provider, fallback *HaversineProvider, matrixCache *cache.MatrixCache, ttl time.Duration, precision int) *CachingProvider {
	if precision <= 0 {
		precision = 6
	}
	return &CachingProvider{real: real, fallback: fallback, cache: matrixCache, ttl: ttl, precision: precision}
}

// GetMatrix implements Provider: tries the cache first, otherwise calls the
// real provider, falls back on error, and caches the result under the same
// key.
func (p *CachingProvider) GetMatrix(ctx context.Context, points []domain.Point) (Result, error) {
	fingerprint := p.fingerprint(points)

	if p.cache != nil {
		if cached, found, err := p.cache.Get(ctx, fingerprint); err == nil && found {
			return Result{
				DistanceMeters:  cached.DistanceMeters,
				DurationMinutes: cached.DurationMinutes,
				Source:          Source(cached.Source),
			}, nil
		}
	}

	result, err := p.solve(ctx, points)
	if err != nil {
		return Result{}, err
	}

	if p.cache != nil {
		_ = p.cache.Set(ctx, fingerprint, &cache.CachedMatrixResult{
			DistanceMeters:  result.DistanceMeters,
			DurationMinutes: result.DurationMinutes,
			Source:          string(result.Source),
		}, p.ttl)
	}

	return result, nil
}

func (p *CachingProvider) solve(ctx context.Context, points []domain.Point) (Result, error) {
	if p.real != nil {
		result, err := p.real.GetMatrix(ctx, points)
		if err == nil {
			return result, nil
		}
		logger.Log.Warn("matrix backend unavailable, falling back to haversine", "error", err)
	}

	return p.fallback.GetMatrix(ctx, points)
}

func (p *CachingProvider) fingerprint(points []domain.Point) string {
	lats := make([]float64, len(points))
	lngs := make([]float64, len(points))
	for i, pt := range points {
		lats[i] = pt.Lat
		lngs[i] = pt.Lng
	}
	return cache.PointFingerprint(lats, lngs, p.precision)
}
