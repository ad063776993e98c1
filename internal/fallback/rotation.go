package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"librarium/contentservice/internal/domain"
	"librarium/contentservice/internal/upstream"
)

const (
	rotationTable    = "content_rotation"
	rotationCacheTTL = 15 * time.Minute
	rotationPrefix   = "content:rotation:"
)

type rotationRow struct {
	ContentType  string          `json:"content_type"`
	ContentData  json.RawMessage `json:"content_data"`
	RotationDate string          `json:"rotation_date"`
	IsActive     bool            `json:"is_active"`
}

// RotationStore reads the currently-active featured-content row per content
// type from the platform's REST table. Rotation writes happen elsewhere;
// this is a read-only view, optionally cached in Redis.
type RotationStore struct {
	provider *Provider
	redis    *redis.Client
}

func NewRotationStore(provider *Provider, redisClient *redis.Client) *RotationStore {
	return &RotationStore{provider: provider, redis: redisClient}
}

// Active returns the featured items for contentType, or nil when no active
// rotation row exists.
func (s *RotationStore) Active(ctx context.Context, contentType domain.ContentType) ([]domain.ContentItem, error) {
	if s.provider == nil || !s.provider.Enabled() {
		return nil, fmt.Errorf("%w: not configured", ErrUnavailable)
	}

	if s.redis != nil {
		if data, err := s.redis.Get(ctx, rotationPrefix+string(contentType)).Bytes(); err == nil {
			var items []domain.ContentItem
			if json.Unmarshal(data, &items) == nil {
				return items, nil
			}
		}
	}

	rows, err := s.fetchRows(ctx, contentType)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var raw []upstream.Item
	if err := json.Unmarshal(rows[0].ContentData, &raw); err != nil {
		return nil, fmt.Errorf("%w: malformed rotation payload: %v", ErrUnavailable, err)
	}
	items := s.provider.transformer.TransformAll(raw, contentType)

	if s.redis != nil && len(items) > 0 {
		if data, err := json.Marshal(items); err == nil {
			_ = s.redis.Set(ctx, rotationPrefix+string(contentType), data, rotationCacheTTL).Err()
		}
	}
	return items, nil
}

func (s *RotationStore) fetchRows(ctx context.Context, contentType domain.ContentType) ([]rotationRow, error) {
	query := url.Values{}
	query.Set("content_type", "eq."+string(contentType))
	query.Set("is_active", "eq.true")
	query.Set("order", "rotation_date.desc")
	query.Set("limit", "1")
	uri := s.provider.baseURL + "/rest/v1/" + rotationTable + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if s.provider.apiKey != "" {
		req.Header.Set("apikey", s.provider.apiKey)
		req.Header.Set("Authorization", "Bearer "+s.provider.apiKey)
	}

	resp, err := s.provider.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: rotation HTTP %d: %s",
			ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var rows []rotationRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%w: malformed rotation rows: %v", ErrUnavailable, err)
	}
	return rows, nil
}
