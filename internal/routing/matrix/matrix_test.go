package matrix

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logistics/internal/routing/domain"
	"logistics/pkg/cache"
)

func TestHaversineProvider_Diagonal(t *testing.T) {
	p := NewHaversineProvider(30)
	points := []domain.Point{{Lat: 37.00, Lng: -121.00}, {Lat: 37.01, Lng: -121.01}}

	result, err := p.GetMatrix(context.Background(), points)
	require.NoError(t, err)

	assert.Equal(t, 0, result.DistanceMeters[0][0])
	assert.Equal(t, 0, result.DistanceMeters[1][1])
	assert.Equal(t, 0, result.DurationMinutes[0][0])
	assert.Equal(t, SourceFallback, result.Source)
}

func TestHaversineProvider_Symmetric(t *testing.T) {
	p := NewHaversineProvider(30)
	points := []domain.Point{{Lat: 37.00, Lng: -121.00}, {Lat: 37.05, Lng: -121.05}, {Lat: 37.10, Lng: -121.02}}

	result, err := p.GetMatrix(context.Background(), points)
	require.NoError(t, err)

	for i := range points {
		for j := range points {
			assert.Equal(t, result.DistanceMeters[i][j], result.DistanceMeters[j][i], "distance symmetric for (%d,%d)", i, j)
		}
	}
}

type failingProvider struct{}

func (failingProvider) GetMatrix(context.Context, []domain.Point) (Result, error) {
	return Result{}, errors.New("simulated backend failure")
}

func TestCachingProvider_FallsBackOnRealError(t *testing.T) {
	memCache := cache.NewMemoryCache(nil)
	matrixCache := cache.NewMatrixCache(memCache, 0)

	provider := NewCachingProvider(failingProvider{}, NewHaversineProvider(30), matrixCache, 0, 6)

	points := []domain.Point{{Lat: 37.0, Lng: -121.0}, {Lat: 37.01, Lng: -121.01}}
	result, err := provider.GetMatrix(context.Background(), points)

	require.NoError(t, err)
	assert.Equal(t, SourceFallback, result.Source, "real backend failure must downgrade to fallback, never surface as an error")
}

type fixedProvider struct {
	calls int
}

func (f *fixedProvider) GetMatrix(context.Context, []domain.Point) (Result, error) {
	f.calls++
	return Result{
		DistanceMeters:  [][]int{{0, 10}, {10, 0}},
		DurationMinutes: [][]int{{0, 1}, {1, 0}},
		Source:          SourceReal,
	}, nil
}

func TestCachingProvider_CachesResult(t *testing.T) {
	memCache := cache.NewMemoryCache(nil)
	matrixCache := cache.NewMatrixCache(memCache, 0)
	real := &fixedProvider{}

	provider := NewCachingProvider(real, NewHaversineProvider(30), matrixCache, 0, 6)
	points := []domain.Point{{Lat: 1, Lng: 2}, {Lat: 3, Lng: 4}}

	_, err := provider.GetMatrix(context.Background(), points)
	require.NoError(t, err)
	_, err = provider.GetMatrix(context.Background(), points)
	require.NoError(t, err)

	assert.Equal(t, 1, real.calls, "second call for the same point set must be served from cache")
}

func TestRealProvider_RejectsTooManyLocations(t *testing.T) {
	p := NewRealProvider("http://example.invalid", 2, 0)

	points := []domain.Point{{Lat: 1}, {Lat: 2}, {Lat: 3}}
	_, err := p.GetMatrix(context.Background(), points)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}
