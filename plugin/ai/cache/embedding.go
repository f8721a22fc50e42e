package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"
)

// Embedder produces a dense vector for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingConfig bounds the embedding cache.
type EmbeddingConfig struct {
	Capacity int           `mapstructure:"capacity"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// DefaultEmbeddingConfig returns the default embedding cache bounds.
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Capacity: 2048,
		TTL:      time.Hour,
	}
}

// EmbeddingCache memoizes an Embedder by text content.
// Reference answers are embedded once per TTL instead of once per evaluation.
type EmbeddingCache struct {
	next Embedder
	lru  *LRU[[]float32]
	ttl  time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewEmbeddingCache wraps next.
func NewEmbeddingCache(next Embedder, cfg EmbeddingConfig) *EmbeddingCache {
	return &EmbeddingCache{
		next: next,
		lru:  NewLRU[[]float32](cfg.Capacity, cfg.TTL),
		ttl:  cfg.TTL,
	}
}

// Embed returns the cached vector for text, calling the wrapped embedder on a miss.
// Errors are not cached.
func (c *EmbeddingCache) Embed(ctx context.Context, text string) ([]float32, error) {
	key := contentKey(text)
	if vec, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		return vec, nil
	}
	c.misses.Add(1)

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.lru.Set(key, vec, c.ttl)
	return vec, nil
}

// Sweep drops expired vectors. The idle argument is ignored; entries carry their own TTL.
func (c *EmbeddingCache) Sweep(_ time.Duration) int {
	return c.lru.Sweep()
}

// Stats returns hit and miss counts.
func (c *EmbeddingCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func contentKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
