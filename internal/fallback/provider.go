// Package fallback is the secondary data source: platform-hosted functions on
// an independent backend, reachable even when the primary content API is
// completely down. It serves whenever the primary path is circuit-broken,
// throws, or returns a suspiciously small result set.
package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"librarium/contentservice/internal/domain"
	"librarium/contentservice/internal/metrics"
	"librarium/contentservice/internal/transform"
	"librarium/contentservice/internal/upstream"
)

const (
	defaultTimeout = 10 * time.Second
	maxBody        = 8 * 1024 * 1024
)

// ErrUnavailable reports that the fallback itself failed; the caller has
// nothing left but emergency counts and an empty result set.
var ErrUnavailable = errors.New("fallback unavailable")

type Config struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	Logger  *slog.Logger
}

type Provider struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	logger      *slog.Logger
	transformer *transform.Transformer
}

func New(cfg Config, transformer *transform.Transformer) *Provider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		client:      client,
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		logger:      logger,
		transformer: transformer,
	}
}

// Enabled reports whether a fallback backend is configured at all.
func (p *Provider) Enabled() bool {
	return p.baseURL != ""
}

type functionResponse struct {
	Success    bool             `json:"success"`
	Videos     []upstream.Item  `json:"videos"`
	Books      []upstream.Item  `json:"books"`
	Podcasts   []upstream.Item  `json:"podcasts"`
	Articles   []upstream.Item  `json:"articles"`
	Total      upstream.FlexInt `json:"total"`
	TotalPages upstream.FlexInt `json:"totalPages"`
	Error      string           `json:"error"`
}

func functionName(contentType domain.ContentType) string {
	switch contentType {
	case domain.ContentTypeVideo:
		return "fetch-videos"
	case domain.ContentTypeBook:
		return "fetch-books"
	case domain.ContentTypePodcast:
		return "fetch-podcasts"
	case domain.ContentTypeArticle:
		return "fetch-articles"
	default:
		return ""
	}
}

func (r functionResponse) itemsFor(contentType domain.ContentType) []upstream.Item {
	switch contentType {
	case domain.ContentTypeVideo:
		return r.Videos
	case domain.ContentTypeBook:
		return r.Books
	case domain.ContentTypePodcast:
		return r.Podcasts
	case domain.ContentTypeArticle:
		return r.Articles
	default:
		return nil
	}
}

// FetchType retrieves one content type through the fallback backend.
func (p *Provider) FetchType(ctx context.Context, contentType domain.ContentType, page, limit int) ([]domain.ContentItem, int, error) {
	name := functionName(contentType)
	if name == "" {
		return nil, 0, fmt.Errorf("%w: no function for type %q", ErrUnavailable, contentType)
	}

	response, err := p.invoke(ctx, name, map[string]any{"page": page, "limit": limit})
	if err != nil {
		return nil, 0, err
	}

	metrics.FallbackRequestsTotal.WithLabelValues(string(contentType)).Inc()
	items := p.transformer.TransformAll(response.itemsFor(contentType), contentType)
	total := response.Total.Int()
	if total < len(items) {
		total = len(items)
	}
	return items, total, nil
}

// All bundles one fetch per content type; individual failures leave that
// type empty rather than failing the bundle.
type All struct {
	Videos   []domain.ContentItem
	Books    []domain.ContentItem
	Podcasts []domain.ContentItem
	Articles []domain.ContentItem
}

func (p *Provider) FetchAll(ctx context.Context, limit int) All {
	var all All
	for _, contentType := range domain.AllContentTypes() {
		items, _, err := p.FetchType(ctx, contentType, 1, limit)
		if err != nil {
			p.logger.Warn("fallback fetch failed",
				slog.String("type", string(contentType)),
				slog.String("error", err.Error()),
			)
			continue
		}
		switch contentType {
		case domain.ContentTypeVideo:
			all.Videos = items
		case domain.ContentTypeBook:
			all.Books = items
		case domain.ContentTypePodcast:
			all.Podcasts = items
		case domain.ContentTypeArticle:
			all.Articles = items
		}
	}
	return all
}

// Search runs a query through the fallback backend's search function.
func (p *Provider) Search(ctx context.Context, request domain.SearchRequest) ([]domain.ContentItem, int, error) {
	response, err := p.invoke(ctx, "search-content", map[string]any{
		"query":          request.Query,
		"filters":        request.Filters,
		"sortBy":         string(request.SortBy),
		"page":           request.Page,
		"resultsPerPage": request.Limit,
	})
	if err != nil {
		return nil, 0, err
	}

	items := make([]domain.ContentItem, 0,
		len(response.Videos)+len(response.Books)+len(response.Podcasts)+len(response.Articles))
	for _, contentType := range domain.AllContentTypes() {
		items = append(items, p.transformer.TransformAll(response.itemsFor(contentType), contentType)...)
	}
	total := response.Total.Int()
	if total < len(items) {
		total = len(items)
	}
	return items, total, nil
}

// EmergencyCounts returns static, previously observed corpus sizes. They are
// approximate by definition and only used when both discovery and the
// fallback functions are unreachable.
func (p *Provider) EmergencyCounts() domain.ContentCounts {
	return domain.ContentCounts{
		Videos:   2850,
		Books:    410,
		Podcasts: 96,
		Articles: 38,
	}
}

// invoke calls one named function. A transport failure and a success:false
// body are the same outcome for callers.
func (p *Provider) invoke(ctx context.Context, name string, body any) (functionResponse, error) {
	if !p.Enabled() {
		return functionResponse{}, fmt.Errorf("%w: not configured", ErrUnavailable)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return functionResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	uri := p.baseURL + "/functions/v1/" + name
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(payload))
	if err != nil {
		return functionResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("apikey", p.apiKey)
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return functionResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return functionResponse{}, fmt.Errorf("%w: function %s HTTP %d: %s",
			ErrUnavailable, name, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return functionResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var response functionResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return functionResponse{}, fmt.Errorf("%w: function %s: %v", ErrUnavailable, name, err)
	}
	if !response.Success {
		message := strings.TrimSpace(response.Error)
		if message == "" {
			message = "function reported failure"
		}
		return functionResponse{}, fmt.Errorf("%w: function %s: %s", ErrUnavailable, name, message)
	}
	return response, nil
}
