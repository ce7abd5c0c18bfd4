package e2e

import (
	"context"
	"fmt"
	"sync/atomic"
)

// TopicEmbedder embeds each corpus question as its topic axis plus a small
// question-specific offset. Paraphrases have cosine similarity around 0.99 and
// questions of different topics stay far below 0.9.
type TopicEmbedder struct {
	dims    int
	vectors map[string][]float32
	calls   atomic.Int64
	texts   atomic.Int64
}

// NewTopicEmbedder builds fixed vectors for every question of c.
func NewTopicEmbedder(c *Corpus) *TopicEmbedder {
	dims := c.TotalGroups + len(c.Questions)
	e := &TopicEmbedder{dims: dims, vectors: make(map[string][]float32, len(c.Questions))}
	for i, q := range c.Questions {
		v := make([]float32, dims)
		v[q.Group] = 1
		v[c.TotalGroups+i] = 0.1
		e.vectors[q.Text] = v
	}
	return e
}

func (e *TopicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *TopicEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.calls.Add(1)
	e.texts.Add(int64(len(texts)))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := e.vectors[t]
		if !ok {
			return nil, fmt.Errorf("no fixture vector for %q", t)
		}
		out[i] = v
	}
	return out, nil
}

func (e *TopicEmbedder) Dimensions() int { return e.dims }
func (e *TopicEmbedder) Model() string   { return "topic-fixture" }
func (e *TopicEmbedder) Close() error    { return nil }

// Calls returns the number of EmbedBatch calls.
func (e *TopicEmbedder) Calls() int64 { return e.calls.Load() }

// TextsEmbedded returns the total number of texts embedded.
func (e *TopicEmbedder) TextsEmbedded() int64 { return e.texts.Load() }
