// Package engine runs one clustering request end to end: order the items,
// embed them under a deadline, build the similarity matrix and cluster.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/matome/internal/cluster"
	"github.com/hyperjump/matome/internal/embedding"
	"github.com/hyperjump/matome/internal/vector"
	"github.com/hyperjump/matome/pkg/utils"
)

var (
	// ErrNoQuestions is returned for an empty input mapping.
	ErrNoQuestions = errors.New("no questions to cluster")
	// ErrEmbeddingTimeout is returned when the provider does not answer within the configured timeout.
	ErrEmbeddingTimeout = errors.New("embedding provider timed out")
)

// DefaultTimeout bounds a provider call when none is configured.
const DefaultTimeout = 30 * time.Second

// Engine clusters questions by embedding similarity.
type Engine struct {
	embedder  embedding.Embedder
	threshold float64
	timeout   time.Duration
	logger    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = utils.NopIfNil(l) }
}

// WithTimeout sets the deadline for a single provider call.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithThreshold overrides DefaultThreshold.
func WithThreshold(t float64) Option {
	return func(e *Engine) { e.threshold = t }
}

// NewEngine returns an engine that embeds with embedder, usually an *embedding.Provider.
func NewEngine(embedder embedding.Embedder, opts ...Option) *Engine {
	e := &Engine{
		embedder:  embedder,
		threshold: cluster.DefaultThreshold,
		timeout:   DefaultTimeout,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Threshold returns the similarity threshold in use.
func (e *Engine) Threshold() float64 { return e.threshold }

// Timeout returns the provider deadline in use.
func (e *Engine) Timeout() time.Duration { return e.timeout }

// Cluster groups questions (id -> text) into near-duplicate clusters.
// Items are ordered by id, so the result does not depend on map iteration order.
func (e *Engine) Cluster(ctx context.Context, questions map[string]string) (cluster.Result, error) {
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	runID := uuid.NewString()
	logger := e.logger.With(zap.String("run_id", runID), zap.Int("items", len(questions)))
	start := time.Now()

	items := cluster.OrderItems(questions)

	embedCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	vectors, err := e.embedder.EmbedBatch(embedCtx, cluster.Texts(items))
	if err != nil {
		if errors.Is(embedCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s: %w", ErrEmbeddingTimeout, e.timeout, err)
		}
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(vectors) != len(items) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d items", len(vectors), len(items))
	}
	if err := vector.CheckDimensions(vectors, 0); err != nil {
		return nil, fmt.Errorf("inconsistent embeddings: %w", err)
	}
	embedded := time.Now()

	matrix := vector.SimilarityMatrix(vectors)
	result := cluster.Threshold(items, matrix, e.threshold)

	logger.Debug("clustered questions",
		zap.Int("clusters", len(result)),
		zap.Duration("embed", embedded.Sub(start)),
		zap.Duration("total", time.Since(start)))
	return result, nil
}
