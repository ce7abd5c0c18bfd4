package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/matome/internal/cluster"
	"github.com/hyperjump/matome/internal/config"
	"github.com/hyperjump/matome/internal/embedding"
	"github.com/hyperjump/matome/internal/engine"
	"github.com/hyperjump/matome/internal/models"
	"github.com/hyperjump/matome/internal/storage"
)

// keyedEmbedder maps known texts to fixed vectors; unknown texts get a zero vector.
type keyedEmbedder struct {
	vectors map[string][]float32
	err     error
	block   bool
}

func (k *keyedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := k.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (k *keyedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if k.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if k.err != nil {
		return nil, k.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := k.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{0, 0}
		}
	}
	return out, nil
}

func (k *keyedEmbedder) Dimensions() int { return 2 }
func (k *keyedEmbedder) Model() string   { return "keyed" }
func (k *keyedEmbedder) Close() error    { return nil }

func scenarioEmbedder() *keyedEmbedder {
	return &keyedEmbedder{vectors: map[string][]float32{
		"What is your name?": {1, 0},
		"What's your name?":  {0.95, 0.31224990},
		"Where do you live?": {0, 1},
	}}
}

func newTestServer(t *testing.T, e embedding.Embedder, opts ...engine.Option) (*Server, http.Handler) {
	t.Helper()
	p := embedding.NewReadyProvider(e)
	srv := NewServer(engine.NewEngine(p, opts...), p, &config.ServerConfig{Port: 3000, MaxBodyBytes: 1 << 20}, zap.NewNop())
	return srv, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var out models.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return out.Error
}

func TestHandleClusterQuestions_Scenario(t *testing.T) {
	_, h := newTestServer(t, scenarioEmbedder())
	w := do(t, h, http.MethodPost, "/cluster-questions",
		`{"questionsWithIds":{"q1":"What is your name?","q2":"What's your name?","q3":"Where do you live?"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var out models.ClusterResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	want := cluster.Result{
		"0": {{ID: "q1", Question: "What is your name?"}, {ID: "q2", Question: "What's your name?"}},
		"2": {{ID: "q3", Question: "Where do you live?"}},
	}
	if !reflect.DeepEqual(out.Clusters, want) {
		t.Errorf("clusters: got %v, want %v", out.Clusters, want)
	}
}

func TestHandleClusterQuestions_WireShape(t *testing.T) {
	_, h := newTestServer(t, scenarioEmbedder())
	w := do(t, h, http.MethodPost, "/cluster-questions", `{"questionsWithIds":{"q1":"What is your name?"}}`)
	want := `{"clusters":{"0":[{"id":"q1","question":"What is your name?"}]}}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Errorf("body:\n got %s\nwant %s", got, want)
	}
}

func TestHandleClusterQuestions_BadRequests(t *testing.T) {
	_, h := newTestServer(t, scenarioEmbedder())
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"missing field", `{}`, "questionsWithIds is required."},
		{"null field", `{"questionsWithIds":null}`, "questionsWithIds is required."},
		{"empty object", `{"questionsWithIds":{}}`, "questionsWithIds is required."},
		{"invalid json", `{"questionsWithIds":`, "invalid request body"},
		{"not an object", `[1,2,3]`, "invalid request body"},
		{"non-string value", `{"questionsWithIds":{"q1":7}}`, "invalid request body"},
		{"empty body", ``, "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/cluster-questions", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want 400", w.Code)
			}
			if msg := decodeError(t, w); msg != tt.wantMsg {
				t.Errorf("error: got %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestHandleClusterQuestions_TooLarge(t *testing.T) {
	p := embedding.NewReadyProvider(scenarioEmbedder())
	srv := NewServer(engine.NewEngine(p), p, &config.ServerConfig{MaxBodyBytes: 64}, nil)
	body := `{"questionsWithIds":{"q1":"` + strings.Repeat("x", 200) + `"}}`
	w := do(t, srv.Handler(), http.MethodPost, "/cluster-questions", body)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status: got %d, want 413", w.Code)
	}
}

func TestHandleClusterQuestions_NotReady(t *testing.T) {
	p := embedding.NewProvider(func(context.Context) (embedding.Embedder, error) {
		return nil, errors.New("model missing")
	})
	srv := NewServer(engine.NewEngine(p), p, &config.ServerConfig{}, nil)
	w := do(t, srv.Handler(), http.MethodPost, "/cluster-questions", `{"questionsWithIds":{"q1":"x"}}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want 503", w.Code)
	}
	if msg := decodeError(t, w); msg != "embedding model is not ready." {
		t.Errorf("error: got %q", msg)
	}
}

func TestHandleClusterQuestions_ProviderTimeout(t *testing.T) {
	_, h := newTestServer(t, &keyedEmbedder{block: true}, engine.WithTimeout(20*time.Millisecond))
	w := do(t, h, http.MethodPost, "/cluster-questions", `{"questionsWithIds":{"q1":"x"}}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want 503", w.Code)
	}
}

func TestHandleClusterQuestions_ProviderError(t *testing.T) {
	_, h := newTestServer(t, &keyedEmbedder{err: errors.New("secret internal detail")})
	w := do(t, h, http.MethodPost, "/cluster-questions", `{"questionsWithIds":{"q1":"x"}}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", w.Code)
	}
	msg := decodeError(t, w)
	if msg != "An error occurred while processing the request." {
		t.Errorf("error: got %q", msg)
	}
}

func TestNewServer_NilLoggers(t *testing.T) {
	p := embedding.NewReadyProvider(&keyedEmbedder{err: errors.New("boom")}, embedding.WithLogger(nil))
	eng := engine.NewEngine(p, engine.WithLogger(nil))
	h := NewServer(eng, p, &config.ServerConfig{MaxBodyBytes: 1 << 20}, nil).Handler()

	// The error path writes through the server logger.
	w := do(t, h, http.MethodPost, "/cluster-questions", `{"questionsWithIds":{"q1":"x"}}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", w.Code)
	}
}

func TestHandleClusterQuestions_MethodNotAllowed(t *testing.T) {
	_, h := newTestServer(t, scenarioEmbedder())
	w := do(t, h, http.MethodGet, "/cluster-questions", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		provider   *embedding.Provider
		wantCode   int
		wantStatus string
	}{
		{"ready", embedding.NewReadyProvider(embedding.NewMockEmbedder(4)), http.StatusOK, "ok"},
		{"loading", embedding.NewProvider(nil), http.StatusServiceUnavailable, "loading"},
		{"failed", func() *embedding.Provider {
			p := embedding.NewProvider(func(context.Context) (embedding.Embedder, error) {
				return nil, errors.New("nope")
			})
			_ = p.Load(context.Background())
			return p
		}(), http.StatusServiceUnavailable, "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(engine.NewEngine(tt.provider), tt.provider, &config.ServerConfig{}, nil)
			w := do(t, srv.Handler(), http.MethodGet, "/health", "")
			if w.Code != tt.wantCode {
				t.Errorf("status: got %d, want %d", w.Code, tt.wantCode)
			}
			var out models.HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
				t.Fatal(err)
			}
			if out.Status != tt.wantStatus {
				t.Errorf("status field: got %q, want %q", out.Status, tt.wantStatus)
			}
		})
	}
}

func TestHandleStatus(t *testing.T) {
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if err := store.PutEmbeddings(context.Background(), "mock", map[string][]float32{"a": {1}}); err != nil {
		t.Fatal(err)
	}

	p := embedding.NewReadyProvider(embedding.NewMockEmbedder(4))
	srv := NewServer(engine.NewEngine(p, engine.WithThreshold(0.85)), p, &config.ServerConfig{}, nil,
		WithCache(store, store.Path()))
	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out models.StatusResponse
	if err := json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Provider.State != embedding.StateReady || out.Provider.Model != "mock" || out.Provider.Dimensions != 4 {
		t.Errorf("provider: %+v", out.Provider)
	}
	if out.Threshold != 0.85 || out.Timeout != "30s" {
		t.Errorf("threshold=%v timeout=%q", out.Threshold, out.Timeout)
	}
	if out.Cache == nil || out.Cache.Embeddings != 1 || out.Cache.SizeBytes <= 0 {
		t.Errorf("cache: %+v", out.Cache)
	}
}
