// Package upstream is the HTTP client for the primary content API. It speaks
// the paginated envelope protocol and nothing else; failure policy (breaker,
// fallback, timeouts) lives with the callers.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"librarium/contentservice/internal/domain"
	"librarium/contentservice/internal/metrics"
)

const (
	defaultBaseURL   = "https://api.conteudo.example.org/v2"
	defaultUserAgent = "librarium-content/1.0"

	maxListBody   = 8 * 1024 * 1024
	maxDetailBody = 1 * 1024 * 1024
)

type Config struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
}

type Client struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

func NewClient(cfg Config) *Client {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		client:    client,
		baseURL:   baseURL,
		userAgent: userAgent,
	}
}

func collectionPath(contentType domain.ContentType) string {
	switch contentType {
	case domain.ContentTypeVideo:
		return "videos"
	case domain.ContentTypeBook:
		return "livros"
	case domain.ContentTypePodcast:
		return "podcasts"
	case domain.ContentTypeArticle:
		return "artigos"
	default:
		return string(contentType)
	}
}

// List fetches one page of one content type.
func (c *Client) List(ctx context.Context, contentType domain.ContentType, page, limit int) (Envelope, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}

	uri, err := url.Parse(c.baseURL + "/" + collectionPath(contentType))
	if err != nil {
		return Envelope{}, fmt.Errorf("invalid endpoint: %w", err)
	}
	query := uri.Query()
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))
	uri.RawQuery = query.Encode()

	startedAt := time.Now()
	payload, err := c.get(ctx, uri.String(), maxListBody)
	c.observe(contentType, err, time.Since(startedAt))
	if err != nil {
		return Envelope{}, err
	}

	var envelope Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("unexpected list payload: %w", err)
	}
	return envelope, nil
}

// Get fetches one item by id from the per-type detail endpoint.
func (c *Client) Get(ctx context.Context, contentType domain.ContentType, id string) (Item, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Item{}, fmt.Errorf("id is required")
	}

	uri := c.baseURL + "/" + collectionPath(contentType) + "/" + url.PathEscape(id)
	startedAt := time.Now()
	payload, err := c.get(ctx, uri, maxDetailBody)
	c.observe(contentType, err, time.Since(startedAt))
	if err != nil {
		return Item{}, err
	}

	var item Item
	if err := json.Unmarshal(payload, &item); err != nil {
		return Item{}, fmt.Errorf("unexpected detail payload: %w", err)
	}
	return item, nil
}

// Probe is a lightweight liveness check: a single-item page of the smallest
// collection. Any 2xx counts as alive.
func (c *Client) Probe(ctx context.Context) error {
	uri := c.baseURL + "/" + collectionPath(domain.ContentTypeArticle) + "?page=1&limit=1"
	_, err := c.get(ctx, uri, 64*1024)
	return err
}

func (c *Client) get(ctx context.Context, uri string, maxBody int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("upstream HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxBody))
}

func (c *Client) observe(contentType domain.ContentType, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(string(contentType), status).Inc()
	metrics.UpstreamRequestDuration.WithLabelValues(string(contentType)).Observe(elapsed.Seconds())
}
