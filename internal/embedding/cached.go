package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/matome/pkg/utils"
)

// Store persists embeddings across restarts, keyed by model and text.
// Get returns only the texts it has; missing texts are simply absent from the map.
type Store interface {
	GetEmbeddings(ctx context.Context, model string, texts []string) (map[string][]float32, error)
	PutEmbeddings(ctx context.Context, model string, embeddings map[string][]float32) error
}

// CachedEmbedder consults an in-memory LRU and an optional Store before
// delegating the remaining texts to the wrapped embedder in a single batch.
// Store failures are logged and treated as misses. Store entries are keyed by
// model and, for Versioned embedders, by weights version, so reloaded weights
// never reuse vectors from the previous ones.
type CachedEmbedder struct {
	inner  Embedder
	lru    *EmbeddingCache
	store  Store
	logger *zap.Logger
}

// NewCachedEmbedder wraps inner. store and logger may be nil.
func NewCachedEmbedder(inner Embedder, cacheSize int, store Store, logger *zap.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		lru:    NewEmbeddingCache(cacheSize),
		store:  store,
		logger: utils.NopIfNil(logger),
	}
}

// Embed returns the embedding for text.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch returns one embedding per text, embedding only cache misses.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	pending := make(map[string][]int)
	var misses []string
	for i, text := range texts {
		if v, ok := c.lru.Get(text); ok {
			out[i] = v
			continue
		}
		if _, seen := pending[text]; !seen {
			misses = append(misses, text)
		}
		pending[text] = append(pending[text], i)
	}
	if len(misses) == 0 {
		return out, nil
	}

	model := cacheModelKey(c.inner)
	if c.store != nil {
		found, err := c.store.GetEmbeddings(ctx, model, misses)
		if err != nil {
			c.logger.Warn("embedding store lookup failed", zap.String("model", model), zap.Error(err))
		}
		remaining := misses[:0:0]
		for _, text := range misses {
			if v, ok := found[text]; ok {
				c.fill(out, pending[text], v)
				c.lru.Set(text, v)
				continue
			}
			remaining = append(remaining, text)
		}
		misses = remaining
		if len(misses) == 0 {
			return out, nil
		}
	}

	embeddings, err := c.inner.EmbedBatch(ctx, misses)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(misses) {
		return nil, fmt.Errorf("embedder %s returned %d embeddings for %d texts", model, len(embeddings), len(misses))
	}
	fresh := make(map[string][]float32, len(misses))
	for i, text := range misses {
		c.fill(out, pending[text], embeddings[i])
		c.lru.Set(text, embeddings[i])
		fresh[text] = embeddings[i]
	}
	if c.store != nil {
		if err := c.store.PutEmbeddings(ctx, model, fresh); err != nil {
			c.logger.Warn("embedding store write failed", zap.String("model", model), zap.Error(err))
		}
	}
	return out, nil
}

func (c *CachedEmbedder) fill(out [][]float32, indices []int, v []float32) {
	for _, i := range indices {
		out[i] = v
	}
}

// Dimensions returns the wrapped embedder's dimension.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// Model returns the wrapped embedder's model identifier.
func (c *CachedEmbedder) Model() string { return c.inner.Model() }

// Close closes the wrapped embedder. The store is owned by the caller.
func (c *CachedEmbedder) Close() error { return c.inner.Close() }
