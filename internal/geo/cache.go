package geo

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"fieldops/internal/metrics"
	"fieldops/internal/model"
)

// Cached wraps a Provider with a process-local memo and an optional Redis
// lookaside. The memo is safe for concurrent readers; Warm populates it
// before the parallel per-technician phase so the phase itself is read-only.
type Cached struct {
	inner Provider
	rdb   *redis.Client
	ttl   time.Duration

	mu   sync.RWMutex
	memo map[string]float64
}

func NewCached(inner Provider, rdb *redis.Client) *Cached {
	return &Cached{inner: inner, rdb: rdb, ttl: 24 * time.Hour, memo: map[string]float64{}}
}

// pairKey is symmetric: the lexically smaller endpoint comes first.
// Coordinates round to 5 decimals (~1 m), enough to share cache hits between
// runs without conflating distinct addresses.
func pairKey(a, b *model.Coordinate) string {
	ka := fmt.Sprintf("%.5f,%.5f", a.Lat, a.Lng)
	kb := fmt.Sprintf("%.5f,%.5f", b.Lat, b.Lng)
	if kb < ka {
		ka, kb = kb, ka
	}
	return "dist:" + ka + "|" + kb
}

func (c *Cached) Distance(ctx context.Context, a, b *model.Coordinate) float64 {
	if a == nil || b == nil {
		return UnknownDistance
	}
	key := pairKey(a, b)
	c.mu.RLock()
	d, ok := c.memo[key]
	c.mu.RUnlock()
	if ok {
		metrics.DistanceCacheHits.WithLabelValues("memo").Inc()
		return d
	}
	if c.rdb != nil {
		if s, err := c.rdb.Get(ctx, key).Result(); err == nil {
			if v, perr := strconv.ParseFloat(s, 64); perr == nil {
				metrics.DistanceCacheHits.WithLabelValues("redis").Inc()
				c.store(ctx, key, v, false)
				return v
			}
		}
	}
	metrics.DistanceCacheHits.WithLabelValues("miss").Inc()
	d = c.inner.Distance(ctx, a, b)
	c.store(ctx, key, d, true)
	return d
}

func (c *Cached) store(ctx context.Context, key string, d float64, toRedis bool) {
	c.mu.Lock()
	c.memo[key] = d
	c.mu.Unlock()
	if toRedis && c.rdb != nil && d < UnknownDistance {
		_ = c.rdb.Set(ctx, key, strconv.FormatFloat(d, 'f', 1, 64), c.ttl).Err()
	}
}

func (c *Cached) Matrix(ctx context.Context, points []*model.Coordinate) [][]float64 {
	return symmetricMatrix(ctx, c, points)
}

// Warm precomputes all pairwise distances so later concurrent reads hit the
// memo only.
func (c *Cached) Warm(ctx context.Context, points []*model.Coordinate) {
	for i := 0; i < len(points); i++ {
		for j := i + 1; j < len(points); j++ {
			if points[i] == nil || points[j] == nil {
				continue
			}
			c.Distance(ctx, points[i], points[j])
		}
	}
}
