// Package embedding provides text embedding providers, caching, and the
// readiness-gated Provider handle shared by request handlers.
package embedding

import "context"

// Embedder produces vector embeddings for text.
// EmbedBatch returns exactly one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
	Close() error
}

// Versioned is implemented by embedders whose weights can change while Model stays the
// same, such as a model file replaced in place. Version identifies the loaded weights.
type Versioned interface {
	Version() string
}

// cacheModelKey is the model identifier persisted embeddings are stored under.
func cacheModelKey(e Embedder) string {
	if v, ok := e.(Versioned); ok {
		if ver := v.Version(); ver != "" {
			return e.Model() + "@" + ver
		}
	}
	return e.Model()
}

// embedEach implements EmbedBatch for embedders that only embed one text at a time.
// It stops early when ctx is done.
func embedEach(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
