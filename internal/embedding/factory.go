package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/matome/internal/config"
	"go.uber.org/zap"
)

// NewLoader returns a Loader that builds the configured provider wrapped in a
// CachedEmbedder. store may be nil to disable the persistent cache.
func NewLoader(cfg *config.EmbeddingConfig, store Store, logger *zap.Logger) Loader {
	return func(ctx context.Context) (Embedder, error) {
		base, err := NewEmbedder(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewCachedEmbedder(base, cfg.CacheSize, store, logger), nil
	}
}

// NewEmbedder creates the uncached embedder named by cfg.Provider.
func NewEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case config.ProviderONNX, "":
		e, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.ProviderGemini:
		e, err := NewGeminiEmbedder(ctx, cfg.APIKey(), cfg.ModelName, cfg.Dimensions, nil)
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.ProviderOpenAI:
		return NewOpenAIEmbedder(cfg.BaseURL, cfg.APIKey(), cfg.ModelName, cfg.Dimensions, nil), nil
	case config.ProviderMock:
		return NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: onnx, gemini, openai, mock)", cfg.Provider)
	}
}
