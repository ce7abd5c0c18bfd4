package models

import (
	"time"

	"github.com/hyperjump/matome/internal/cluster"
	"github.com/hyperjump/matome/internal/embedding"
)

// ClusterResponse is the 200 body of POST /cluster-questions.
type ClusterResponse struct {
	Clusters cluster.Result `json:"clusters"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Provider  embedding.Status `json:"provider"`
	Threshold float64          `json:"threshold"`
	Timeout   string           `json:"timeout"`
	Cache     *CacheStatus     `json:"cache,omitempty"`
	Uptime    string           `json:"uptime"`
}

// CacheStatus describes the persistent embedding cache.
type CacheStatus struct {
	Path       string `json:"path"`
	Embeddings int64  `json:"embeddings"`
	SizeBytes  int64  `json:"size_bytes"`
}

// FormatDuration renders d rounded to milliseconds.
func FormatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
