package expansion

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/termexpand/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/tracing"
)

const maxBodyBytes = 1 << 20

// Handler serves the expansion HTTP API. cache, collector and m are
// optional.
type Handler struct {
	service   atomic.Pointer[Service]
	cache     *Cache
	collector *Collector
	stats     *Stats
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewHandler(service *Service, cache *Cache, collector *Collector, stats *Stats, m *metrics.Metrics) *Handler {
	if stats == nil {
		stats = NewStats()
	}
	h := &Handler{
		cache:     cache,
		collector: collector,
		stats:     stats,
		metrics:   m,
		logger:    slog.Default().With("component", "expansion-handler"),
	}
	h.service.Store(service)
	return h
}

// Service returns the service currently answering requests.
func (h *Handler) Service() *Service { return h.service.Load() }

// Swap starts serving from service and returns the previous one. Requests
// already running keep the service they started with.
func (h *Handler) Swap(service *Service) *Service {
	return h.service.Swap(service)
}

// Register mounts the API on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/expand", h.Expand)
	mux.HandleFunc("POST /api/v1/expand", h.Expand)
	mux.HandleFunc("GET /api/v1/suggest", h.Suggest)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// CacheStatusHeader reports hit, miss or disabled on expansion responses.
const CacheStatusHeader = "X-Cache"

// Expand accepts either query parameters (q, docs, strategy, max,
// consensus, consensus_docs) or a JSON Request body.
func (h *Handler) Expand(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := middleware.GetRequestID(r.Context())
	ctx, span := tracing.StartRoot(r.Context(), "http.expand", requestID)
	log := logger.FromContext(ctx)

	service := h.service.Load()
	req, err := decodeRequest(w, r)
	if err == nil {
		req, err = service.Normalize(req)
	}
	if err != nil {
		span.End()
		h.writeError(w, err)
		return
	}

	var result *Result
	cacheHit := false
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, req, func(ctx context.Context) (*Result, error) {
			return service.Expand(ctx, req)
		})
	} else {
		result, err = service.Expand(ctx, req)
	}
	latency := time.Since(start)
	span.SetAttr("cache_hit", cacheHit)
	span.End()
	span.Log(ctx, h.logger)

	h.track(NewExpandEvent(req, result, cacheHit, latency, requestID))
	cacheStatus := "miss"
	switch {
	case h.cache == nil:
		cacheStatus = "disabled"
	case cacheHit:
		cacheStatus = "hit"
	}
	w.Header().Set(CacheStatusHeader, cacheStatus)
	if h.metrics != nil {
		h.metrics.ExpansionLatency.WithLabelValues(req.Strategy, cacheStatus).Observe(latency.Seconds())
	}
	if err != nil {
		log.Error("expansion failed", "query", req.Query, "error", err)
		h.writeError(w, err)
		return
	}

	log.Info("expansion completed",
		"query", req.Query,
		"strategy", req.Strategy,
		"documents", result.Documents,
		"terms", len(result.Terms),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("term")
	if strings.TrimSpace(term) == "" {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'term' is required"))
		return
	}
	alts := h.service.Load().Suggest(term)
	h.track(Event{
		Type:      EventSuggest,
		Query:     term,
		Terms:     alts,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(r.Context()),
	})
	h.writeJSON(w, http.StatusOK, map[string]any{
		"term":         term,
		"alternatives": alts,
	})
}

type statsResponse struct {
	Index      indexer.Stats `json:"index"`
	Expansions Snapshot      `json:"expansions"`
	Dropped    int64         `json:"events_dropped"`
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Index:      h.service.Load().IndexStats(),
		Expansions: h.stats.Snapshot(),
	}
	if h.collector != nil {
		resp.Dropped = h.collector.Dropped()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	stats := h.cache.Stats()
	var hitRate float64
	if total := stats.Hits + stats.Misses; total > 0 {
		hitRate = float64(stats.Hits) / float64(total)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"hit_rate": hitRate,
		"breaker":  stats.Breaker,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, apperrors.New(apperrors.ErrInternal, http.StatusBadGateway, "cache invalidation failed"))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) track(e Event) {
	h.stats.Record(e)
	if h.collector != nil {
		h.collector.Track(e)
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (Request, error) {
	var req Request
	if r.Method == http.MethodPost {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return req, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "decoding request body: %v", err)
		}
		return req, nil
	}

	q := r.URL.Query()
	req.Query = q.Get("q")
	req.Strategy = q.Get("strategy")
	for _, param := range q["docs"] {
		req.Documents = append(req.Documents, strings.Split(param, ",")...)
	}
	var err error
	if req.MaxTerms, err = intParam(q.Get("max"), "max"); err != nil {
		return req, err
	}
	if req.ConsensusDocs, err = intParam(q.Get("consensus_docs"), "consensus_docs"); err != nil {
		return req, err
	}
	if v := q.Get("consensus"); v != "" {
		req.Consensus, err = strconv.ParseBool(v)
		if err != nil {
			return req, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "consensus must be a boolean")
		}
	}
	return req, nil
}

func intParam(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "%s must be an integer", name)
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

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	} else if status == http.StatusInternalServerError {
		message = "expansion failed"
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
