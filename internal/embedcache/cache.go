// Package embedcache caches embeddings by exact text.
package embedcache

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/forPelevin/nledit/internal/domain/semantic"
	"github.com/forPelevin/nledit/internal/ports"
)

type ComputeFunc func(ctx context.Context) ([]float32, error)

// Cache returns the vector stored under key, computing and inserting it when
// absent. Inserts are idempotent: recomputing a key is wasteful, never wrong.
type Cache interface {
	GetOrCompute(ctx context.Context, key string, compute ComputeFunc) ([]float32, error)
}

// Memory is an unbounded process-wide cache. Concurrent misses for the same
// key share one computation.
type Memory struct {
	m     sync.Map
	group singleflight.Group
}

func NewMemory() *Memory { return &Memory{} }

func (c *Memory) GetOrCompute(ctx context.Context, key string, compute ComputeFunc) ([]float32, error) {
	if v, ok := c.m.Load(key); ok {
		return v.([]float32), nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.m.Load(key); ok {
			return v, nil
		}
		vec, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		actual, _ := c.m.LoadOrStore(key, vec)
		return actual, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

func (c *Memory) Len() int {
	n := 0
	c.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Embedder wraps an embedding provider with a cache and unit-normalizes vectors.
type Embedder struct {
	next   ports.Embedder
	cache  Cache
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

func NewEmbedder(next ports.Embedder, cache Cache, logger *zap.Logger) *Embedder {
	if cache == nil {
		cache = NewMemory()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{next: next, cache: cache, logger: logger.Named("embedcache")}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	computed := false
	v, err := e.cache.GetOrCompute(ctx, text, func(ctx context.Context) ([]float32, error) {
		computed = true
		raw, err := e.next.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		return semantic.Normalize(raw), nil
	})
	if err != nil {
		return nil, err
	}
	if computed {
		e.misses.Add(1)
		e.logger.Debug("embedding computed", zap.Int("chars", len(text)), zap.Int("dims", len(v)))
	} else {
		e.hits.Add(1)
	}
	return v, nil
}

// Stats reports cache hits and misses served by this embedder.
func (e *Embedder) Stats() (hits, misses int64) {
	return e.hits.Load(), e.misses.Load()
}
