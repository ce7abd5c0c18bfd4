// Package main is the matome CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/matome/internal/cli"
	"github.com/hyperjump/matome/internal/cluster"
	"github.com/hyperjump/matome/internal/config"
	"github.com/hyperjump/matome/internal/embedding"
	"github.com/hyperjump/matome/internal/engine"
	"github.com/hyperjump/matome/internal/models"
	"github.com/hyperjump/matome/internal/server"
	"github.com/hyperjump/matome/internal/storage"
	"github.com/hyperjump/matome/internal/watcher"
	"github.com/hyperjump/matome/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/matome/config.yaml"
	defaultServerURL  = "http://localhost:3000"
)

var httpClient = &http.Client{Timeout: 2 * time.Minute}

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory so that "matome server" from the project dir
// uses the project's config. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "cluster":
		runCluster()
	case "status":
		runStatus()
	case "cache":
		runCache()
	case "init":
		runInit()
	case "version", "--version", "-v":
		fmt.Printf("matome version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("provider", cfg.Embedding.Provider),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The server accepts requests while the model loads; /health reports 503 until ready.
	components.Provider.Start(ctx)

	if cfg.Embedding.WatchModel && cfg.Embedding.Provider == config.ProviderONNX {
		modelWatcher := newModelWatcher(ctx, cfg, components.Provider, logger)
		if err := modelWatcher.Start(ctx); err != nil {
			logger.Warn("model watcher disabled", zap.String("path", cfg.Embedding.ModelPath), zap.Error(err))
		} else {
			defer modelWatcher.Stop()
		}
	}

	opts := []server.Option{}
	if components.Cache != nil {
		opts = append(opts, server.WithCache(components.Cache, components.Cache.Path()))
	}
	srv := server.NewServer(components.Engine, components.Provider, &cfg.Server, logger, opts...)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// newModelWatcher reloads the provider whenever the model file is replaced.
func newModelWatcher(ctx context.Context, cfg *config.Config, provider *embedding.Provider, logger *zap.Logger) *watcher.Watcher {
	return watcher.NewWatcher(
		[]string{cfg.Embedding.ModelPath},
		func(path string) {
			logger.Info("model file changed, reloading", zap.String("path", path))
			if err := provider.Reload(ctx); err != nil {
				logger.Warn("model reload failed", zap.String("path", path), zap.Error(err))
			}
		},
		watcher.WithLogger(logger),
		watcher.WithOnRemove(func(path string) {
			logger.Warn("model file removed; keeping the loaded model", zap.String("path", path))
		}),
	)
}

func printClusterUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: matome cluster [flags] <file.json|->\n\n")
	fmt.Fprintf(fs.Output(), "Input is {\"questionsWithIds\": {\"<id>\": \"<text>\", ...}} or a bare id -> text object.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  matome cluster questions.json
  cat questions.json | matome cluster -output json -
  matome cluster -server "" questions.json      # embed in-process, no server needed
`)
}

func runCluster() {
	fs := flag.NewFlagSet("cluster", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (in-process mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = cluster in-process)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printClusterUsage(fs) }
	_ = fs.Parse(cli.ArgsReorder(os.Args[2:]))

	if fs.NArg() != 1 {
		printClusterUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	req, err := readClusterInput(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read questions: %v\n", err)
		os.Exit(1)
	}

	var clusters cluster.Result
	if *serverURL != "" {
		clusters, err = clusterViaHTTP(*serverURL, req)
	} else {
		clusters, err = clusterInProcess(*configPath, req)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Clustering failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteClusters(os.Stdout, clusters, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// readClusterInput reads a cluster request from path, or from stdin when path is "-".
func readClusterInput(path string) (*models.ClusterRequest, error) {
	if path == "-" {
		return cli.ReadClusterRequest(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return cli.ReadClusterRequest(f)
}

func clusterInProcess(configPath string, req *models.ClusterRequest) (cluster.Result, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()

	ctx := context.Background()
	if err := components.Provider.Load(ctx); err != nil {
		return nil, fmt.Errorf("load embedding model: %w", err)
	}
	return components.Engine.Cluster(ctx, req.QuestionsWithIDs)
}

func clusterViaHTTP(serverURL string, req *models.ClusterRequest) (cluster.Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Post(serverURL+"/cluster-questions", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp)
	}
	var out models.ClusterResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Clusters, nil
}

// serverError turns a non-200 response into an error, preferring the API error message.
func serverError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr models.ErrorResponse
	if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (in-process mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = load the model in-process)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var status *models.StatusResponse
	if *serverURL != "" {
		status, err = statusViaHTTP(*serverURL)
	} else {
		status, err = statusInProcess(*configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*models.StatusResponse, error) {
	resp, err := httpClient.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp)
	}
	var s models.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// statusInProcess loads the configured model once and reports the outcome.
// A load failure is reported in the status rather than returned.
func statusInProcess(configPath string) (*models.StatusResponse, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()

	ctx := context.Background()
	_ = components.Provider.Load(ctx)
	return components.Status(ctx)
}

func runCache() {
	fs := flag.NewFlagSet("cache", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	model := fs.String("model", "", "purge only embeddings of this model")
	_ = fs.Parse(cli.ArgsReorder(os.Args[2:]))

	action := "stats"
	if fs.NArg() > 0 {
		action = fs.Arg(0)
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Storage.CachePath == "" {
		fmt.Fprintln(os.Stderr, "Persistent embedding cache is disabled (storage.cache_path is empty)")
		os.Exit(1)
	}
	if err := cacheCommand(os.Stdout, cfg.Storage.CachePath, action, *model); err != nil {
		fmt.Fprintf(os.Stderr, "Cache %s failed: %v\n", action, err)
		os.Exit(1)
	}
}

func cacheCommand(w io.Writer, cachePath, action, model string) error {
	store, err := storage.NewSQLiteStorage(cachePath)
	if err != nil {
		return err
	}
	defer store.Close()
	ctx := context.Background()

	switch action {
	case "stats":
		count, err := store.CountEmbeddings(ctx)
		if err != nil {
			return err
		}
		size, err := store.SizeBytes()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "path:               %s\n", store.Path())
		fmt.Fprintf(w, "embeddings:         %d\n", count)
		fmt.Fprintf(w, "size_bytes:         %d\n", size)
		return nil
	case "purge":
		n, err := store.Purge(ctx, model)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Purged %d embeddings\n", n)
		return nil
	default:
		return fmt.Errorf("unknown cache action %q; use stats or purge", action)
	}
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "where to write the config file")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[2:])

	if err := writeDefaultConfig(*configPath, *force); err != nil {
		fmt.Fprintf(os.Stderr, "Init failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config written: %s\n", *configPath)
}

func writeDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use -force to overwrite)", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return config.Save(path, config.Default())
}

// Components holds initialized services.
type Components struct {
	Cache    *storage.SQLiteStorage
	Provider *embedding.Provider
	Engine   *engine.Engine
}

// Close releases the provider and the cache database.
func (c *Components) Close() {
	if c.Provider != nil {
		_ = c.Provider.Close()
	}
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
}

// Status builds the same status the server reports.
func (c *Components) Status(ctx context.Context) (*models.StatusResponse, error) {
	status := &models.StatusResponse{
		Provider:  c.Provider.Status(),
		Threshold: c.Engine.Threshold(),
		Timeout:   models.FormatDuration(c.Engine.Timeout()),
	}
	if c.Cache != nil {
		count, err := c.Cache.CountEmbeddings(ctx)
		if err != nil {
			return nil, err
		}
		size, _ := c.Cache.SizeBytes()
		status.Cache = &models.CacheStatus{Path: c.Cache.Path(), Embeddings: count, SizeBytes: size}
	}
	return status, nil
}

// initializeComponents wires the cache, provider and engine. The provider is
// returned unloaded; callers decide whether to load it in the background or inline.
func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	var store embedding.Store
	if cfg.Storage.CachePath != "" {
		cache, err := storage.NewSQLiteStorage(cfg.Storage.CachePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedding cache: %w", err)
		}
		c.Cache = cache
		store = cache
	}

	loader := embedding.NewLoader(&cfg.Embedding, store, logger)
	c.Provider = embedding.NewProvider(loader, embedding.WithLogger(logger))
	c.Engine = engine.NewEngine(c.Provider,
		engine.WithThreshold(cfg.Cluster.Threshold),
		engine.WithTimeout(cfg.Embedding.Timeout),
		engine.WithLogger(logger),
	)
	return c, nil
}

func printUsage() {
	fmt.Println(`matome - Semantic near-duplicate question clustering

Usage:
  matome server [flags]                  Start the HTTP server
  matome cluster [flags] <file.json|->   Cluster questions from a JSON file or stdin
  matome status [flags]                  Show embedding provider and cache status
  matome cache [flags] <stats|purge>     Inspect or clear the persistent embedding cache
  matome init [flags]                    Write a default config file
  matome version                         Show version
  matome help                            Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/matome/config.yaml)
  --debug            Enable debug logging

Cluster Flags:
  --config string    Config file path (for in-process mode)
  --server string    Server URL (default: http://localhost:3000). Use empty (--server "") to embed in-process.
  --output string    Output format: text or json (default: text)

Status Flags:
  --config string    Config file path (for in-process mode)
  --server string    Server URL (default: http://localhost:3000). Use empty (--server "") to load the model in-process.
  --output string    Output format: text or json (default: text)

Cache Flags:
  --config string    Config file path
  --model string     Purge only embeddings of this model

Init Flags:
  --config string    Where to write the config (default: config.yaml)
  --force            Overwrite an existing file

Examples:
  matome server
  matome cluster questions.json
  matome cluster --output json questions.json
  cat questions.json | matome cluster --server "" -
  matome status --output json
  matome cache purge --model mock
  matome init --config ~/.config/matome/config.yaml`)
}
