package config

import (
	"time"

	"github.com/hyperjump/matome/internal/cluster"
)

// Embedding provider names.
const (
	ProviderONNX   = "onnx"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderONNX
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/matome/models/universal-sentence-encoder.onnx"
	}
	if cfg.Embedding.ModelName == "" {
		switch cfg.Embedding.Provider {
		case ProviderGemini:
			cfg.Embedding.ModelName = "text-embedding-004"
		case ProviderOpenAI:
			cfg.Embedding.ModelName = "text-embedding-3-small"
		}
	}
	if cfg.Embedding.BaseURL == "" && cfg.Embedding.Provider == ProviderOpenAI {
		cfg.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		switch cfg.Embedding.Provider {
		case ProviderGemini:
			cfg.Embedding.APIKeyEnv = "GEMINI_API_KEY"
		case ProviderOpenAI:
			cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
		}
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 512
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 128
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Cluster.Threshold == 0 {
		cfg.Cluster.Threshold = cluster.DefaultThreshold
	}
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
