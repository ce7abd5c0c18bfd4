package embedding

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/matome/pkg/utils"
)

// ErrNotReady is returned while no embedder has been loaded successfully.
var ErrNotReady = errors.New("embedding provider is not ready")

// State is the lifecycle state of a Provider.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Loader constructs a ready-to-use embedder.
type Loader func(ctx context.Context) (Embedder, error)

// Status is a snapshot of a Provider for health and status reporting.
type Status struct {
	State      State     `json:"state"`
	Model      string    `json:"model,omitempty"`
	Dimensions int       `json:"dimensions,omitempty"`
	Error      string    `json:"error,omitempty"`
	LoadedAt   time.Time `json:"loaded_at,omitempty"`
}

// handle pairs an embedder with its in-flight calls so a replaced embedder is
// closed only after they finish.
type handle struct {
	embedder Embedder
	inflight sync.WaitGroup
}

// release waits for in-flight calls and closes the embedder.
func (h *handle) release() error {
	h.inflight.Wait()
	return h.embedder.Close()
}

// Provider owns the process-wide embedder. It is constructed explicitly, loaded once
// (optionally in the background) and shared read-only by all requests. Until a load
// succeeds every call fails fast with ErrNotReady.
//
// mu only guards the current handle and status fields; embed calls run outside it,
// so a pending reload never blocks Ready, Status or new requests.
type Provider struct {
	loader Loader
	logger *zap.Logger

	mu       sync.RWMutex
	current  *handle
	state    State
	lastErr  error
	loadedAt time.Time

	loadMu sync.Mutex
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithLogger sets a logger for load and reload events.
func WithLogger(l *zap.Logger) ProviderOption {
	return func(p *Provider) { p.logger = utils.NopIfNil(l) }
}

// NewProvider returns an idle provider that will build its embedder with loader.
func NewProvider(loader Loader, opts ...ProviderOption) *Provider {
	p := &Provider{loader: loader, state: StateIdle, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewReadyProvider returns a provider already serving e.
func NewReadyProvider(e Embedder, opts ...ProviderOption) *Provider {
	p := NewProvider(func(context.Context) (Embedder, error) { return e, nil }, opts...)
	p.current = &handle{embedder: e}
	p.state = StateReady
	p.loadedAt = time.Now()
	return p
}

// Start loads the embedder in the background and returns immediately.
func (p *Provider) Start(ctx context.Context) {
	go func() {
		_ = p.Load(ctx)
	}()
}

// Load builds the embedder and makes it current. On failure the provider keeps serving
// the previous embedder if there is one; otherwise it stays not ready.
func (p *Provider) Load(ctx context.Context) error {
	p.loadMu.Lock()
	defer p.loadMu.Unlock()

	p.mu.Lock()
	hadEmbedder := p.current != nil
	if !hadEmbedder {
		p.state = StateLoading
	}
	p.mu.Unlock()

	start := time.Now()
	p.logger.Info("loading embedding model")
	e, err := p.loader(ctx)
	if err != nil {
		p.mu.Lock()
		p.lastErr = err
		if !hadEmbedder {
			p.state = StateFailed
		}
		p.mu.Unlock()
		p.logger.Error("embedding model load failed", zap.Error(err), zap.Bool("serving_previous", hadEmbedder))
		return err
	}

	p.mu.Lock()
	old := p.current
	p.current = &handle{embedder: e}
	p.state = StateReady
	p.lastErr = nil
	p.loadedAt = time.Now()
	p.mu.Unlock()

	p.logger.Info("embedding model loaded",
		zap.String("model", e.Model()),
		zap.Int("dimensions", e.Dimensions()),
		zap.Duration("took", time.Since(start)))

	if old != nil && old.embedder != e {
		if err := old.release(); err != nil {
			p.logger.Warn("closing previous embedder failed", zap.Error(err))
		}
	}
	return nil
}

// acquire returns the current handle with one in-flight call registered, or nil when
// no embedder is loaded. The caller must call inflight.Done.
func (p *Provider) acquire() *handle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return nil
	}
	// Add happens under the read lock, so it is ordered before any swap that
	// would make the handle eligible for release.
	p.current.inflight.Add(1)
	return p.current
}

// snapshot returns the current embedder for metadata reads, or nil.
func (p *Provider) snapshot() Embedder {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return nil
	}
	return p.current.embedder
}

// Reload is Load under another name, used when the model changes on disk.
func (p *Provider) Reload(ctx context.Context) error {
	return p.Load(ctx)
}

// Ready reports whether an embedder is loaded.
func (p *Provider) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current != nil
}

// Status returns a snapshot of the provider state.
func (p *Provider) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := Status{State: p.state, LoadedAt: p.loadedAt}
	if p.current != nil {
		s.Model = p.current.embedder.Model()
		s.Dimensions = p.current.embedder.Dimensions()
	}
	if p.lastErr != nil {
		s.Error = p.lastErr.Error()
	}
	return s
}

// Embed returns the embedding for text, or ErrNotReady.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	h := p.acquire()
	if h == nil {
		return nil, ErrNotReady
	}
	defer h.inflight.Done()
	return h.embedder.Embed(ctx, text)
}

// EmbedBatch returns one embedding per text, or ErrNotReady.
// A concurrent reload does not close the embedder until this call returns.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	h := p.acquire()
	if h == nil {
		return nil, ErrNotReady
	}
	defer h.inflight.Done()
	return h.embedder.EmbedBatch(ctx, texts)
}

// Dimensions returns the current embedder's dimension, or 0 when not ready.
func (p *Provider) Dimensions() int {
	if e := p.snapshot(); e != nil {
		return e.Dimensions()
	}
	return 0
}

// Model returns the current embedder's model, or "" when not ready.
func (p *Provider) Model() string {
	if e := p.snapshot(); e != nil {
		return e.Model()
	}
	return ""
}

// Close returns the provider to idle and closes the current embedder once its
// in-flight calls finish.
func (p *Provider) Close() error {
	p.mu.Lock()
	old := p.current
	p.current = nil
	p.state = StateIdle
	p.mu.Unlock()

	if old == nil {
		return nil
	}
	return old.release()
}
