package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/webrag/internal/core/domain"
	"github.com/kirillkom/webrag/internal/core/ports"
	"github.com/kirillkom/webrag/internal/observability/metrics"
)

const maxSearchBodyBytes = 64 << 10

type storeInfoReader interface {
	Info(ctx context.Context) (domain.StoreInfo, error)
}

type Options struct {
	DefaultK       int
	MaxK           int
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	QueueTimeout   time.Duration
}

type Router struct {
	searcher ports.ChunkSearcher
	store    storeInfoReader
	metrics  *metrics.HTTPServerMetrics
	opts     Options
}

func NewRouter(searcher ports.ChunkSearcher, store storeInfoReader, m *metrics.HTTPServerMetrics, opts Options) *Router {
	if opts.DefaultK <= 0 {
		opts.DefaultK = 3
	}
	if opts.MaxK <= 0 {
		opts.MaxK = 50
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 32
	}
	if opts.QueueTimeout <= 0 {
		opts.QueueTimeout = 2 * time.Second
	}
	return &Router{
		searcher: searcher,
		store:    store,
		metrics:  m,
		opts:     opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /v1/store", rt.storeInfo)
	mux.HandleFunc("GET /v1/search", rt.searchQuery)
	mux.HandleFunc("POST /v1/search", rt.searchJSON)

	var handler http.Handler = mux
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
		handler = rt.metrics.Middleware("webrag", handler)
	}
	handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, rt.opts.QueueTimeout)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) storeInfo(w http.ResponseWriter, r *http.Request) {
	info, err := rt.store.Info(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type searchRequest struct {
	Query string `json:"query"`
	K     *int   `json:"k"`
}

type searchResponse struct {
	Query   string               `json:"query"`
	K       int                  `json:"k"`
	Results []domain.QueryResult `json:"results"`
}

func (rt *Router) searchQuery(w http.ResponseWriter, r *http.Request) {
	k := rt.opts.DefaultK
	if raw := strings.TrimSpace(r.URL.Query().Get("k")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "k must be an integer"})
			return
		}
		k = parsed
	}
	rt.search(w, r, r.URL.Query().Get("q"), k)
}

func (rt *Router) searchJSON(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxSearchBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	k := rt.opts.DefaultK
	if req.K != nil {
		k = *req.K
	}
	rt.search(w, r, req.Query, k)
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request, query string, k int) {
	if strings.TrimSpace(query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}
	if k < 0 || k > rt.opts.MaxK {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "k must be between 0 and " + strconv.Itoa(rt.opts.MaxK)})
		return
	}

	start := time.Now()
	results, err := rt.searcher.Search(r.Context(), query, k)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if results == nil {
		results = []domain.QueryResult{}
	}
	if rt.metrics != nil {
		rt.metrics.RecordSearch("webrag", "http", len(results), time.Since(start))
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: query, K: k, Results: results})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		slog.Error("http_handler_error",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
