// Package config provides configuration loading and structs for the matome server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Storage   StorageConfig   `yaml:"storage"`
	Cluster   ClusterConfig   `yaml:"cluster"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is one of "onnx", "gemini", "openai" or "mock".
	Provider   string `yaml:"provider"`
	ModelPath  string `yaml:"model_path"`
	ModelName  string `yaml:"model_name"`
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
	// Timeout bounds a single provider call.
	Timeout    time.Duration `yaml:"timeout"`
	WatchModel bool          `yaml:"watch_model"`
}

// APIKey returns the API key from the configured environment variable.
func (e *EmbeddingConfig) APIKey() string {
	if e.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(e.APIKeyEnv)
}

// StorageConfig holds paths for on-disk state. An empty CachePath disables the
// persistent embedding cache.
type StorageConfig struct {
	CachePath string `yaml:"cache_path"`
}

// ClusterConfig holds clustering settings.
type ClusterConfig struct {
	Threshold float64 `yaml:"threshold"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	if cfg.Storage.CachePath != "" {
		cfg.Storage.CachePath = expandPath(cfg.Storage.CachePath, configDir)
	}

	return &cfg, nil
}

// Validate rejects settings that cannot be served.
func Validate(cfg *Config) error {
	switch cfg.Embedding.Provider {
	case ProviderONNX, ProviderGemini, ProviderOpenAI, ProviderMock:
	default:
		return fmt.Errorf("unknown embedding provider: %s (supported: onnx, gemini, openai, mock)", cfg.Embedding.Provider)
	}
	if cfg.Cluster.Threshold <= -1 || cfg.Cluster.Threshold >= 1 {
		return fmt.Errorf("cluster threshold must be in (-1, 1), got %v", cfg.Cluster.Threshold)
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	// A slow provider must get its 503 out before the router's 504.
	if cfg.Server.RequestTimeout > 0 && cfg.Server.RequestTimeout <= cfg.Embedding.Timeout {
		return fmt.Errorf("server.request_timeout (%s) must be greater than embedding.timeout (%s)",
			cfg.Server.RequestTimeout, cfg.Embedding.Timeout)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
