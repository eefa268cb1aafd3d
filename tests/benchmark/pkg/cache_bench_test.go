package benchmark

import (
	"context"
	"fmt"
	"testing"
	"time"

	"logistics/pkg/cache"
)

func BenchmarkMemoryCache_Set(b *testing.B) {
	c := cache.NewMemoryCache(nil)
	defer c.Close()

	ctx := context.Background()
	value := make([]byte, 1024) // 1KB value

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set(ctx, fmt.Sprintf("key-%d", i%10000), value, time.Minute)
	}
}

func BenchmarkMemoryCache_Get(b *testing.B) {
	c := cache.NewMemoryCache(nil)
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, "benchmark-key", []byte("benchmark-value"), time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get(ctx, "benchmark-key")
	}
}

func BenchmarkMemoryCache_SetGet(b *testing.B) {
	c := cache.NewMemoryCache(nil)
	defer c.Close()

	ctx := context.Background()
	value := []byte("test-value")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("key-%d", i%1000)
		c.Set(ctx, key, value, time.Minute)
		c.Get(ctx, key)
	}
}

func BenchmarkMemoryCache_Concurrent(b *testing.B) {
	c := cache.NewMemoryCache(nil)
	defer c.Close()

	ctx := context.Background()
	value := []byte("test-value")

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := fmt.Sprintf("key-%d", i%1000)
			c.Set(ctx, key, value, time.Minute)
			c.Get(ctx, key)
			i++
		}
	})
}

func BenchmarkMemoryCache_MSet(b *testing.B) {
	c := cache.NewMemoryCache(nil)
	defer c.Close()

	ctx := context.Background()
	entries := make(map[string][]byte)
	for i := 0; i < 100; i++ {
		entries[fmt.Sprintf("mset-key-%d", i)] = []byte("value")
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.MSet(ctx, entries, time.Minute)
	}
}

func BenchmarkMemoryCache_MGet(b *testing.B) {
	c := cache.NewMemoryCache(nil)
	defer c.Close()

	ctx := context.Background()
	keys := make([]string, 100)
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("mget-key-%d", i)
		keys[i] = key
		c.Set(ctx, key, []byte("value"), time.Hour)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.MGet(ctx, keys)
	}
}

func BenchmarkMemoryCache_ValueSizes(b *testing.B) {
	sizes := []int{64, 256, 1024, 4096, 16384, 65536}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("size_%d", size), func(b *testing.B) {
			c := cache.NewMemoryCache(nil)
			defer c.Close()

			ctx := context.Background()
			value := make([]byte, size)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				c.Set(ctx, "key", value, time.Minute)
				c.Get(ctx, "key")
			}
		})
	}
}

func BenchmarkMemoryCache_Eviction(b *testing.B) {
	c := cache.NewMemoryCache(&cache.Options{
		MaxEntries: 1000,
		DefaultTTL: time.Minute,
	})
	defer c.Close()

	ctx := context.Background()
	value := []byte("test-value")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set(ctx, fmt.Sprintf("evict-key-%d", i), value, time.Minute)
	}
}

