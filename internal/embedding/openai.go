package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tiktoken-go/tokenizer"
)

const (
	openAIHTTPTimeout = 30 * time.Second
	// openAIMaxInputTokens is the per-input limit of the OpenAI embedding models.
	openAIMaxInputTokens = 8191
)

var (
	cl100kOnce  sync.Once
	cl100kCodec tokenizer.Codec
)

func cl100k() tokenizer.Codec {
	cl100kOnce.Do(func() {
		if codec, err := tokenizer.Get(tokenizer.Cl100kBase); err == nil {
			cl100kCodec = codec
		}
	})
	return cl100kCodec
}

// truncateTokens cuts text to at most limit cl100k tokens. Text is returned as is
// when it already fits or the codec is unavailable.
func truncateTokens(text string, limit int) string {
	// Every token covers at least one byte.
	if limit <= 0 || len(text) <= limit {
		return text
	}
	codec := cl100k()
	if codec == nil {
		return text
	}
	ids, _, err := codec.Encode(text)
	if err != nil || len(ids) <= limit {
		return text
	}
	out, err := codec.Decode(ids[:limit])
	if err != nil {
		return text
	}
	return out
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint (OpenAI, LiteLLM, Ollama, vLLM).
type OpenAIEmbedder struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	modelName  string
	dimensions int
	maxTokens  int
}

type openAIEmbedRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// NewOpenAIEmbedder returns an embedder for the endpoint at baseURL. apiKey may be empty for
// local servers that do not check it. httpClient may be nil.
func NewOpenAIEmbedder(baseURL, apiKey, modelName string, dimensions int, httpClient *http.Client) *OpenAIEmbedder {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: openAIHTTPTimeout}
	}
	return &OpenAIEmbedder{
		client:     httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		modelName:  modelName,
		dimensions: dimensions,
		maxTokens:  openAIMaxInputTokens,
	}
}

// Embed returns the embedding for one text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds all texts in one request and orders the results by their index.
// Inputs longer than the model's token limit are truncated.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	inputs := make([]string, len(texts))
	for i, text := range texts {
		inputs[i] = truncateTokens(text, e.maxTokens)
	}
	body, err := json.Marshal(openAIEmbedRequest{
		Input:          inputs,
		Model:          e.modelName,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send embedding request to %s: %w", e.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding API error (model=%s, status=%d): %s",
			e.modelName, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var embedResp openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(embedResp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding API returned %d results for %d inputs (model=%s)",
			len(embedResp.Data), len(texts), e.modelName)
	}

	out := make([][]float32, len(texts))
	for _, d := range embedResp.Data {
		if d.Index < 0 || d.Index >= len(texts) || out[d.Index] != nil {
			return nil, fmt.Errorf("embedding API returned invalid index %d (model=%s)", d.Index, e.modelName)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// Dimensions returns the configured dimension.
func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

// Model returns the model name sent with each request.
func (e *OpenAIEmbedder) Model() string { return e.modelName }

// Close is a no-op for OpenAIEmbedder.
func (e *OpenAIEmbedder) Close() error { return nil }
