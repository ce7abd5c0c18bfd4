package embedding

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"
)

const (
	// geminiMaxBatch is the largest number of texts the Gemini API accepts per embed call.
	geminiMaxBatch = 100
	// geminiConcurrency bounds in-flight EmbedContent calls for one EmbedBatch.
	geminiConcurrency = 4
)

// GeminiEmbedder embeds text with a Gemini embedding model through google.golang.org/genai.
type GeminiEmbedder struct {
	client     *genai.Client
	modelName  string
	dimensions int
}

// NewGeminiEmbedder creates a Gemini API client. httpClient may be nil.
// When dimensions is positive it is requested as the output dimensionality.
func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string, dimensions int, httpClient *http.Client) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini provider requires an API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiEmbedder{client: client, modelName: modelName, dimensions: dimensions}, nil
}

// Embed returns the embedding for one text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in API-sized batches, preserving input order. Batches run
// concurrently; the first failure cancels the rest.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(geminiConcurrency)
	for start := 0; start < len(texts); start += geminiMaxBatch {
		end := min(start+geminiMaxBatch, len(texts))
		g.Go(func() error {
			batch, err := e.embedContents(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *GeminiEmbedder) embedContents(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: text}}}
	}
	cfg := &genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"}
	if e.dimensions > 0 {
		d := int32(e.dimensions)
		cfg.OutputDimensionality = &d
	}

	result, err := e.client.Models.EmbedContent(ctx, e.modelName, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings (model=%s): %w", e.modelName, err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d texts (model=%s)",
			len(result.Embeddings), len(texts), e.modelName)
	}
	out := make([][]float32, len(texts))
	for i, emb := range result.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding vector at %d (model=%s)", i, e.modelName)
		}
		out[i] = emb.Values
	}
	return out, nil
}

// Dimensions returns the requested output dimensionality.
func (e *GeminiEmbedder) Dimensions() int { return e.dimensions }

// Model returns the Gemini model name.
func (e *GeminiEmbedder) Model() string { return e.modelName }

// Close is a no-op; the genai client holds no resources that need releasing.
func (e *GeminiEmbedder) Close() error { return nil }
