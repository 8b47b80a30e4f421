// Package handler exposes search, suggestion, document and index management
// over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/source"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

const defaultSuggestLimit = 10

type SearchExecutor interface {
	Execute(ctx context.Context, query string, limit int) (*executor.SearchResult, error)
}

// Index is the part of *indexer.Engine the handler drives.
type Index interface {
	Current() *indexer.Snapshot
	Document(id int) (index.Document, error)
	Suggest(prefix string, n int) []indexer.Suggestion
	Stats() indexer.Stats
	Clear()
	Cancel() bool
	StartRebuild(src source.Source, done func(indexer.BuildReport, error)) (uuid.UUID, error)
}

type Handler struct {
	executor SearchExecutor
	index    Index
	source   source.Source
	cache    *cache.QueryCache
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Handler. src, queryCache and m may be nil; without a source
// rebuild requests are rejected.
func New(exec SearchExecutor, idx Index, src source.Source, queryCache *cache.QueryCache, m *metrics.Metrics) *Handler {
	return &Handler{
		executor: exec,
		index:    idx,
		source:   src,
		cache:    queryCache,
		metrics:  m,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux. rebuildLimit, if set, wraps the
// rebuild trigger.
func (h *Handler) Register(mux *http.ServeMux, rebuildLimit func(http.Handler) http.Handler) {
	var rebuild http.Handler = http.HandlerFunc(h.Rebuild)
	if rebuildLimit != nil {
		rebuild = rebuildLimit(rebuild)
	}
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/suggest", h.Suggest)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.Document)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("DELETE /api/v1/index", h.ClearIndex)
	mux.Handle("POST /api/v1/index/rebuild", rebuild)
	mux.HandleFunc("DELETE /api/v1/index/rebuild", h.CancelRebuild)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health", h.Health)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if !r.URL.Query().Has("q") {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	query := r.URL.Query().Get("q")
	limit, err := parseLimit(r, 0)
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	var result *executor.SearchResult
	cacheStatus := "disabled"
	compute := func() (*executor.SearchResult, error) {
		return h.executor.Execute(ctx, query, limit)
	}
	if h.cache != nil {
		var hit bool
		result, hit, err = h.cache.GetOrCompute(ctx, h.index.Current().Generation, query, limit, compute)
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		result, err = compute()
	}
	if err != nil {
		log.Error("search execution failed", "query", query, "error", err)
		h.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	resultType := "hits"
	if len(result.Results) == 0 {
		resultType = "empty"
	}
	elapsed := time.Since(start)
	h.metrics.ObserveSearch(resultType, cacheStatus, elapsed, len(result.Results))
	log.Info("search completed",
		"query", query,
		"generation", result.Generation,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache", cacheStatus,
		"latency_ms", elapsed.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultSuggestLimit)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	prefix := r.URL.Query().Get("prefix")
	h.writeJSON(w, http.StatusOK, map[string]any{
		"prefix":      prefix,
		"suggestions": h.index.Suggest(prefix, limit),
	})
}

func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 0 {
		h.writeError(w, http.StatusBadRequest, "document id must be a non-negative integer")
		return
	}
	doc, err := h.index.Document(id)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.index.Stats())
}

func (h *Handler) ClearIndex(w http.ResponseWriter, r *http.Request) {
	h.index.Clear()
	logger.FromContext(r.Context()).Info("index cleared via api")
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":     "cleared",
		"generation": h.index.Current().Generation,
	})
}

func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		h.writeAppError(w, apperrors.New(apperrors.ErrIndexNotReady, http.StatusServiceUnavailable, "no document source configured"))
		return
	}
	log := logger.FromContext(r.Context())
	id, err := h.index.StartRebuild(h.source, func(report indexer.BuildReport, err error) {
		if err != nil {
			h.logger.Warn("rebuild finished without swap", "build_id", report.BuildID, "status", report.Status, "error", err)
			return
		}
		h.logger.Info("rebuild finished", "build_id", report.BuildID, "generation", report.Generation)
	})
	if err != nil {
		log.Warn("rebuild rejected", "error", err)
		h.writeAppError(w, err)
		return
	}
	log.Info("rebuild started", "build_id", id, "source", h.source.Name())
	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":   "started",
		"build_id": id.String(),
	})
}

func (h *Handler) CancelRebuild(w http.ResponseWriter, r *http.Request) {
	if !h.index.Cancel() {
		h.writeError(w, http.StatusNotFound, "no build in progress")
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseLimit reads the optional limit parameter. Absent means def.
func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer")
	}
	return n, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
}
