package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"librarium/contentservice/internal/domain"
	"librarium/contentservice/internal/health"
	"librarium/contentservice/internal/search"
)

const maxQueryLength = 300

type SearchService interface {
	Search(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error)
	Preview(ctx context.Context, limit int) (map[domain.ContentType][]domain.ContentItem, bool)
	Counts(ctx context.Context) domain.ContentCounts
	Healthy() health.Status
	LastCheck() time.Time
	ClearCaches()
}

type DetailService interface {
	Get(ctx context.Context, contentType domain.ContentType, id string) (domain.ContentItem, error)
}

type FeaturedService interface {
	Active(ctx context.Context, contentType domain.ContentType) ([]domain.ContentItem, error)
}

type Server struct {
	search   SearchService
	detail   DetailService
	featured FeaturedService
	logger   *slog.Logger
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithDetail(detail DetailService) ServerOption {
	return func(s *Server) {
		s.detail = detail
	}
}

func WithFeatured(featured FeaturedService) ServerOption {
	return func(s *Server) {
		s.featured = featured
	}
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	server := &Server{
		search: searchService,
		logger: slog.Default(),
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /counts", s.handleCounts)
	mux.HandleFunc("GET /content/preview", s.handlePreview)
	mux.HandleFunc("GET /content/{type}", s.handleList)
	mux.HandleFunc("GET /content/{type}/featured", s.handleFeatured)
	mux.HandleFunc("GET /content/{type}/{id}", s.handleDetail)
	mux.HandleFunc("POST /cache/flush", s.handleCacheFlush)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "content-discovery",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(50, 100, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":    "ok",
		"upstream":  string(s.search.Healthy()),
		"timestamp": time.Now().UTC(),
	}
	if lastCheck := s.search.LastCheck(); !lastCheck.IsZero() {
		body["lastCheck"] = lastCheck.UTC()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long (max 300 characters)")
		return
	}

	request := domain.SearchRequest{
		Query:     query,
		Filters:   filtersFromQuery(r),
		SortBy:    domain.NormalizeSortBy(r.URL.Query().Get("sortBy")),
		Page:      queryInt(r, "page", 1),
		Limit:     queryInt(r, "limit", 0),
		NoCache:   queryBool(r, "noCache"),
		ClientKey: clientKey(r),
	}

	response, err := s.search.Search(r.Context(), request)
	if err != nil {
		if errors.Is(err, search.ErrSuperseded) {
			// The client already issued a newer search; nothing to render.
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeError(w, http.StatusBadGateway, "search_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	contentType, ok := domain.NormalizeContentType(r.PathValue("type"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_type", "unknown content type")
		return
	}

	request := domain.SearchRequest{
		Filters:   domain.SearchFilters{ResourceType: string(contentType)},
		SortBy:    domain.NormalizeSortBy(r.URL.Query().Get("sortBy")),
		Page:      queryInt(r, "page", 1),
		Limit:     queryInt(r, "limit", 0),
		ClientKey: clientKey(r),
	}

	response, err := s.search.Search(r.Context(), request)
	if err != nil {
		if errors.Is(err, search.ErrSuperseded) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeError(w, http.StatusBadGateway, "list_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	if s.detail == nil {
		writeError(w, http.StatusNotFound, "not_configured", "detail lookup is not configured")
		return
	}
	contentType, ok := domain.NormalizeContentType(r.PathValue("type"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_type", "unknown content type")
		return
	}

	item, err := s.detail.Get(r.Context(), contentType, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, search.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "content not found")
			return
		}
		writeError(w, http.StatusBadGateway, "detail_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleFeatured(w http.ResponseWriter, r *http.Request) {
	if s.featured == nil {
		writeError(w, http.StatusNotFound, "not_configured", "featured content is not configured")
		return
	}
	contentType, ok := domain.NormalizeContentType(r.PathValue("type"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_type", "unknown content type")
		return
	}

	items, err := s.featured.Active(r.Context(), contentType)
	if err != nil {
		writeError(w, http.StatusBadGateway, "featured_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"type":  contentType,
		"items": items,
	})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	preview, usingFallback := s.search.Preview(r.Context(), queryInt(r, "limit", 0))
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"preview":       preview,
		"usingFallback": usingFallback,
	})
}

func (s *Server) handleCounts(w http.ResponseWriter, r *http.Request) {
	counts := s.search.Counts(r.Context())
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleCacheFlush(w http.ResponseWriter, _ *http.Request) {
	s.search.ClearCaches()
	writeJSON(w, http.StatusOK, map[string]any{"flushed": true})
}

func filtersFromQuery(r *http.Request) domain.SearchFilters {
	values := r.URL.Query()
	return domain.SearchFilters{
		ResourceType: strings.TrimSpace(values.Get("type")),
		Subject:      strings.TrimSpace(values.Get("subject")),
		Author:       strings.TrimSpace(values.Get("author")),
		Year:         parseIntDefault(values.Get("year"), 0),
		Duration:     strings.TrimSpace(values.Get("duration")),
		Language:     strings.TrimSpace(values.Get("language")),
		DocumentType: strings.TrimSpace(values.Get("documentType")),
		Program:      strings.TrimSpace(values.Get("program")),
		Channel:      strings.TrimSpace(values.Get("channel")),
	}
}

// clientKey identifies the logical client for search cancellation scoping.
// Browsers send a stable per-tab id; requests without one are never
// superseded.
func clientKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Client-ID"))
}

func queryInt(r *http.Request, name string, fallback int) int {
	return parseIntDefault(r.URL.Query().Get(name), fallback)
}

func parseIntDefault(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func queryBool(r *http.Request, name string) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get(name))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error":   code,
		"message": message,
	})
}
