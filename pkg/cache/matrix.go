package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// MatrixCache caches distance/duration matrices for MatrixProvider
// (routing core §4.1). The key is built from the fingerprint of the
// ordered point set, rounded to a fixed precision, so repeated requests
// for the same point set in the same order never create new cache
// entries.
type MatrixCache struct {
	cache      Cache
	defaultTTL time.Duration
}

// CachedMatrixPoint is a point that participated in the fingerprint (for
// debugging/logs).
type CachedMatrixPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// CachedMatrixResult is a cached MatrixProvider.GetMatrix result.
type CachedMatrixResult struct {
	DistanceMeters  [][]int   `json:"distance_meters"`
	DurationMinutes [][]int   `json:"duration_minutes"`
	Source          string    `json:"source"` // "real" or "fallback"
	ComputedAt      time.Time `json:"computed_at"`
}

// NewMatrixCache creates a matrix cache.
func NewMatrixCache(cache Cache, defaultTTL time.Duration) *MatrixCache {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &MatrixCache{cache: cache, defaultTTL: defaultTTL}
}

// PointFingerprint builds a deterministic fingerprint of an ordered point
// set, rounded to precision decimal digits (the spec requires 6 digits by
// default). Point order is part of the fingerprint, since MatrixProvider
// guarantees it preserves order on output (§4.1 "Ordering guarantee") —
// sets with the same points in a different order must be treated as
// distinct matrices.
func PointFingerprint(lats, lngs []float64, precision int) string {
	scale := math.Pow(10, float64(precision))

	var buf []byte
	for i := range lats {
		lat := math.Round(lats[i]*scale) / scale
		lng := math.Round(lngs[i]*scale) / scale
		buf = append(buf, []byte(fmt.Sprintf("%.*f,%.*f;", precision, lat, precision, lng))...)
	}

	hash := sha256.Sum256(buf)
	return hex.EncodeToString(hash[:16])
}

// buildMatrixKey builds the cache key for a fingerprint.
func buildMatrixKey(fingerprint string) string {
	return fmt.Sprintf("matrix:%s", fingerprint)
}

// Get returns the cached matrix for a point fingerprint.
func (mc *MatrixCache) Get(ctx context.Context, fingerprint string) (*CachedMatrixResult, bool, error) {
	key := buildMatrixKey(fingerprint)

	data, err := mc.cache.Get(ctx, key)
	if err != nil {
		if err == ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}

	var result CachedMatrixResult
	if err := json.Unmarshal(data, &result); err != nil {
		// Corrupt cache entry — drop it, deletion error ignored intentionally.
		_ = mc.cache.Delete(ctx, key) //nolint:errcheck // best effort cleanup
		return nil, false, nil
	}

	return &result, true, nil
}

// Set stores a matrix in the cache.
func (mc *MatrixCache) Set(ctx context.Context, fingerprint string, result *CachedMatrixResult, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = mc.defaultTTL
	}

	result.ComputedAt = time.Now()

	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return mc.cache.Set(ctx, buildMatrixKey(fingerprint), data, ttl)
}

// InvalidateAll deletes the entire matrix cache.
func (mc *MatrixCache) InvalidateAll(ctx context.Context) (int64, error) {
	return mc.cache.DeleteByPattern(ctx, "matrix:*")
}
