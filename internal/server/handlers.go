package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/hyperjump/matome/internal/embedding"
	"github.com/hyperjump/matome/internal/engine"
	"github.com/hyperjump/matome/internal/models"
)

const (
	msgInvalidBody = "invalid request body"
	msgTooLarge    = "request body too large"
	msgNotReady    = "embedding model is not ready."
	msgInternal    = "An error occurred while processing the request."

	defaultMaxBodyBytes = 1 << 20
)

func (s *Server) handleClusterQuestions(w http.ResponseWriter, r *http.Request) {
	limit := s.config.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, msgTooLarge)
			return
		}
		s.respondError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	var req models.ClusterRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Debug("cluster request", zap.Int("questions", len(req.QuestionsWithIDs)))
	clusters, err := s.engine.Cluster(r.Context(), req.QuestionsWithIDs)
	if err != nil {
		logger := s.logger.With(zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
		switch {
		case errors.Is(err, engine.ErrNoQuestions):
			s.respondError(w, http.StatusBadRequest, models.ErrQuestionsRequired.Error())
		case unavailable(err):
			logger.Warn("clustering unavailable")
			s.respondError(w, http.StatusServiceUnavailable, msgNotReady)
		default:
			logger.Error("clustering failed")
			s.respondError(w, http.StatusInternalServerError, msgInternal)
		}
		return
	}
	s.respondJSON(w, http.StatusOK, models.ClusterResponse{Clusters: clusters})
}

// unavailable reports errors that mean the provider cannot answer right now.
func unavailable(err error) bool {
	return errors.Is(err, embedding.ErrNotReady) ||
		errors.Is(err, engine.ErrEmbeddingTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.provider.Ready() {
		s.respondJSON(w, http.StatusOK, models.HealthResponse{Status: "ok"})
		return
	}
	status := "loading"
	if s.provider.Status().State == embedding.StateFailed {
		status = "failed"
	}
	s.respondJSON(w, http.StatusServiceUnavailable, models.HealthResponse{Status: status})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := models.StatusResponse{
		Provider:  s.provider.Status(),
		Threshold: s.engine.Threshold(),
		Timeout:   models.FormatDuration(s.engine.Timeout()),
		Uptime:    models.FormatDuration(time.Since(s.startedAt)),
	}
	if s.cache != nil {
		count, err := s.cache.CountEmbeddings(r.Context())
		if err != nil {
			s.logger.Error("status: count embeddings failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, msgInternal)
			return
		}
		size, err := s.cache.SizeBytes()
		if err != nil {
			s.logger.Warn("status: cache size failed", zap.Error(err))
		}
		resp.Cache = &models.CacheStatus{Path: s.cachePath, Embeddings: count, SizeBytes: size}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, models.ErrorResponse{Error: message})
}
