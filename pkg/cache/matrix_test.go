package cache

import (
	"context"
	"testing"
)

func TestPointFingerprint(t *testing.T) {
	t.Run("same points produce same fingerprint", func(t *testing.T) {
		lats := []float64{37.0, 37.1}
		lngs := []float64{-121.0, -121.1}

		fp1 := PointFingerprint(lats, lngs, 6)
		fp2 := PointFingerprint(lats, lngs, 6)

		if fp1 != fp2 {
			t.Errorf("same points should produce same fingerprint: %v != %v", fp1, fp2)
		}
	})

	t.Run("different order produces different fingerprint", func(t *testing.T) {
		fp1 := PointFingerprint([]float64{37.0, 37.1}, []float64{-121.0, -121.1}, 6)
		fp2 := PointFingerprint([]float64{37.1, 37.0}, []float64{-121.1, -121.0}, 6)

		if fp1 == fp2 {
			t.Error("reordered point sets should not collide (MatrixProvider preserves order)")
		}
	})

	t.Run("rounding collapses sub-precision noise", func(t *testing.T) {
		fp1 := PointFingerprint([]float64{37.0000001}, []float64{-121.0}, 6)
		fp2 := PointFingerprint([]float64{37.0000002}, []float64{-121.0}, 6)

		if fp1 != fp2 {
			t.Error("points within 6-decimal precision should fingerprint identically")
		}
	})
}

func TestMatrixCache_SetGet(t *testing.T) {
	memCache := NewMemoryCache(nil)
	mc := NewMatrixCache(memCache, 0)
	ctx := context.Background()

	fp := PointFingerprint([]float64{37.0, 37.1}, []float64{-121.0, -121.1}, 6)

	result := &CachedMatrixResult{
		DistanceMeters:  [][]int{{0, 100}, {100, 0}},
		DurationMinutes: [][]int{{0, 2}, {2, 0}},
		Source:          "real",
	}

	if err := mc.Set(ctx, fp, result, 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, found, err := mc.Get(ctx, fp)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Fatal("expected cache hit")
	}
	if got.Source != "real" {
		t.Errorf("Source = %v, want real", got.Source)
	}
	if got.DistanceMeters[0][1] != 100 {
		t.Errorf("DistanceMeters[0][1] = %v, want 100", got.DistanceMeters[0][1])
	}
}

func TestMatrixCache_GetNotFound(t *testing.T) {
	memCache := NewMemoryCache(nil)
	mc := NewMatrixCache(memCache, 0)

	_, found, err := mc.Get(context.Background(), "missing-fingerprint")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected cache miss")
	}
}

func TestMatrixCache_InvalidateAll(t *testing.T) {
	memCache := NewMemoryCache(nil)
	mc := NewMatrixCache(memCache, 0)
	ctx := context.Background()

	fp := PointFingerprint([]float64{1, 2}, []float64{3, 4}, 6)
	_ = mc.Set(ctx, fp, &CachedMatrixResult{Source: "real"}, 0)

	n, err := mc.InvalidateAll(ctx)
	if err != nil {
		t.Fatalf("InvalidateAll failed: %v", err)
	}
	if n != 1 {
		t.Errorf("InvalidateAll removed %d keys, want 1", n)
	}

	_, found, _ := mc.Get(ctx, fp)
	if found {
		t.Error("expected cache miss after InvalidateAll")
	}
}
