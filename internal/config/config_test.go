package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/matome/internal/cluster"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
embedding:
  provider: mock
  dimensions: 16
  timeout: 5s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Embedding.Provider != ProviderMock || cfg.Embedding.Dimensions != 16 {
		t.Errorf("unexpected embedding config: %+v", cfg.Embedding)
	}
	if cfg.Embedding.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", cfg.Embedding.Timeout)
	}
	if cfg.Cluster.Threshold != cluster.DefaultThreshold {
		t.Errorf("threshold = %v, want %v", cfg.Cluster.Threshold, cluster.DefaultThreshold)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	path := writeConfig(t, `
debug: true
embedding:
  provider: mock
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
embedding:
  model_path: "./models/use.onnx"
storage:
  cache_path: "./data/cache.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	dir := filepath.Dir(path)
	if want := filepath.Join(dir, "models", "use.onnx"); cfg.Embedding.ModelPath != want {
		t.Errorf("model_path = %s, want %s", cfg.Embedding.ModelPath, want)
	}
	if want := filepath.Join(dir, "data", "cache.db"); cfg.Storage.CachePath != want {
		t.Errorf("cache_path = %s, want %s", cfg.Storage.CachePath, want)
	}
}

func TestLoad_emptyCachePathStaysDisabled(t *testing.T) {
	path := writeConfig(t, "embedding:\n  provider: mock\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.CachePath != "" {
		t.Errorf("cache_path = %q, want empty", cfg.Storage.CachePath)
	}
}

func TestLoad_rejectsUnknownProvider(t *testing.T) {
	path := writeConfig(t, "embedding:\n  provider: word2vec\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestLoad_rejectsThresholdOutOfRange(t *testing.T) {
	path := writeConfig(t, "embedding:\n  provider: mock\ncluster:\n  threshold: 1.5\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for threshold >= 1")
	}
}

func TestLoad_requestTimeoutMustExceedEmbeddingTimeout(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{"defaults", "embedding:\n  provider: mock\n", false},
		{"shorter", "server:\n  request_timeout: 10s\nembedding:\n  provider: mock\n  timeout: 30s\n", true},
		{"equal", "server:\n  request_timeout: 30s\nembedding:\n  provider: mock\n  timeout: 30s\n", true},
		{"longer", "server:\n  request_timeout: 45s\nembedding:\n  provider: mock\n  timeout: 30s\n", false},
		{"short embedding default", "server:\n  request_timeout: 20s\nembedding:\n  provider: mock\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxBodyBytes != 1<<20 {
		t.Errorf("default max_body_bytes: got %d", cfg.Server.MaxBodyBytes)
	}
	if cfg.Embedding.Provider != ProviderONNX {
		t.Errorf("default provider: got %s", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Timeout != 30*time.Second {
		t.Errorf("default timeout: got %v", cfg.Embedding.Timeout)
	}
	if cfg.Cluster.Threshold != 0.9 {
		t.Errorf("default threshold: got %v, want 0.9", cfg.Cluster.Threshold)
	}
}

func TestApplyDefaults_providerSpecific(t *testing.T) {
	tests := []struct {
		provider  string
		wantModel string
		wantEnv   string
		wantURL   string
	}{
		{ProviderGemini, "text-embedding-004", "GEMINI_API_KEY", ""},
		{ProviderOpenAI, "text-embedding-3-small", "OPENAI_API_KEY", "https://api.openai.com/v1"},
		{ProviderMock, "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := &Config{Embedding: EmbeddingConfig{Provider: tt.provider}}
			ApplyDefaults(cfg)
			if cfg.Embedding.ModelName != tt.wantModel {
				t.Errorf("model_name = %q, want %q", cfg.Embedding.ModelName, tt.wantModel)
			}
			if cfg.Embedding.APIKeyEnv != tt.wantEnv {
				t.Errorf("api_key_env = %q, want %q", cfg.Embedding.APIKeyEnv, tt.wantEnv)
			}
			if cfg.Embedding.BaseURL != tt.wantURL {
				t.Errorf("base_url = %q, want %q", cfg.Embedding.BaseURL, tt.wantURL)
			}
		})
	}
}

func TestEmbeddingConfig_APIKey(t *testing.T) {
	t.Setenv("MATOME_TEST_KEY", "secret")
	e := &EmbeddingConfig{APIKeyEnv: "MATOME_TEST_KEY"}
	if got := e.APIKey(); got != "secret" {
		t.Errorf("APIKey() = %q, want secret", got)
	}
	if got := (&EmbeddingConfig{}).APIKey(); got != "" {
		t.Errorf("APIKey() with no env = %q, want empty", got)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:    ServerConfig{Host: "localhost", Port: 9090},
		Embedding: EmbeddingConfig{Provider: ProviderMock, Timeout: 2 * time.Second},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Embedding.Timeout != 2*time.Second {
		t.Errorf("loaded timeout: got %v", loaded.Embedding.Timeout)
	}
}

func TestDefault_isValid(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Default() is not valid: %v", err)
	}
	if cfg.Server.Port != 3000 || cfg.Embedding.Provider != ProviderONNX {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}
