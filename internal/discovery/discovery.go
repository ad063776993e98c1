// Package discovery answers "how many items of this type exist upstream".
// Totals are cached; a discovery failure returns the last known good value
// instead of an error, because a listing request must never block on it.
package discovery

import (
	"context"
	"log/slog"
	"time"

	"librarium/contentservice/internal/cache"
	"librarium/contentservice/internal/domain"
	"librarium/contentservice/internal/timeout"
	"librarium/contentservice/internal/upstream"
)

const (
	totalTTL = 30 * time.Minute

	// PreviewLimit is the fixed page size for homepage preview mode.
	PreviewLimit = 12

	// maxExhaustive bounds the worst-case fetch volume even if the upstream
	// corpus grows unexpectedly.
	maxExhaustive = 3000
)

// Last observed corpus sizes, used when discovery itself fails.
var lastKnownGood = map[domain.ContentType]int{
	domain.ContentTypeVideo:   2850,
	domain.ContentTypeBook:    410,
	domain.ContentTypePodcast: 96,
	domain.ContentTypeArticle: 38,
}

// Mode mirrors the two consumers of exact limits.
type Mode int

const (
	ModePreview Mode = iota
	ModeExhaustive
)

type Lister interface {
	List(ctx context.Context, contentType domain.ContentType, page, limit int) (upstream.Envelope, error)
}

type Service struct {
	upstream Lister
	timeouts *timeout.Manager
	totals   *cache.TTL[int]
	logger   *slog.Logger
}

func New(lister Lister, timeouts *timeout.Manager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		upstream: lister,
		timeouts: timeouts,
		totals:   cache.NewTTL[int]("discovery", cache.WithMaxEntries[int](16)),
		logger:   logger,
	}
}

// Total reports how many items of contentType exist upstream. Failures
// degrade to the last known good value, never to an error.
func (s *Service) Total(ctx context.Context, contentType domain.ContentType) int {
	key := string(contentType)
	if total, ok := s.totals.Get(key); ok {
		return total
	}

	var envelope upstream.Envelope
	err := s.timeouts.Run(ctx, "discovery:"+key, timeout.ProbeDeadline, func(runCtx context.Context) error {
		var listErr error
		envelope, listErr = s.upstream.List(runCtx, contentType, 1, 1)
		return listErr
	})
	if err != nil || envelope.Total.Int() <= 0 {
		if err != nil {
			s.logger.Warn("total discovery failed",
				slog.String("type", key),
				slog.String("error", err.Error()),
			)
		}
		return lastKnownGood[contentType]
	}

	total := envelope.Total.Int()
	s.totals.Set(key, total, totalTTL)
	return total
}

// ExactLimit resolves how many items a fetch should target. Preview mode is
// a fixed page-sized constant; exhaustive mode is the discovered total,
// bounded by the configured maximum.
func (s *Service) ExactLimit(ctx context.Context, contentType domain.ContentType, mode Mode) int {
	if mode == ModePreview {
		return PreviewLimit
	}
	total := s.Total(ctx, contentType)
	if total > maxExhaustive {
		return maxExhaustive
	}
	return total
}

// Counts gathers every type's total into one record.
func (s *Service) Counts(ctx context.Context) domain.ContentCounts {
	return domain.ContentCounts{
		Videos:   s.Total(ctx, domain.ContentTypeVideo),
		Books:    s.Total(ctx, domain.ContentTypeBook),
		Podcasts: s.Total(ctx, domain.ContentTypePodcast),
		Articles: s.Total(ctx, domain.ContentTypeArticle),
	}
}
