// Package storage defines the persistence interface for cached embeddings.
package storage

import (
	"context"
)

// EmbeddingStore persists embeddings keyed by model and text. It satisfies
// embedding.Store. Clustering results are never stored.
type EmbeddingStore interface {
	GetEmbeddings(ctx context.Context, model string, texts []string) (map[string][]float32, error)
	PutEmbeddings(ctx context.Context, model string, embeddings map[string][]float32) error

	// Stats
	CountEmbeddings(ctx context.Context) (int64, error)
	SizeBytes() (int64, error)

	Purge(ctx context.Context, model string) (int64, error)
	Close() error
}
