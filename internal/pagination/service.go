package pagination

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"librarium/contentservice/internal/breaker"
	"librarium/contentservice/internal/domain"
	"librarium/contentservice/internal/fallback"
	"librarium/contentservice/internal/timeout"
	"librarium/contentservice/internal/transform"
	"librarium/contentservice/internal/upstream"
)

// maxConcurrentTypes bounds the per-type fan-out of one virtual page fetch.
const maxConcurrentTypes = 4

// minSaneResults is the sanity threshold below which a primary result set is
// considered suspicious and the fallback is consulted for that type.
const minSaneResults = 1

type Lister interface {
	List(ctx context.Context, contentType domain.ContentType, page, limit int) (upstream.Envelope, error)
}

type Service struct {
	upstream    Lister
	transformer *transform.Transformer
	breaker     *breaker.Breaker
	timeouts    *timeout.Manager
	fallback    *fallback.Provider
	table       *ProportionTable
	logger      *slog.Logger
	seq         atomic.Uint64
}

func NewService(
	lister Lister,
	transformer *transform.Transformer,
	brk *breaker.Breaker,
	timeouts *timeout.Manager,
	fb *fallback.Provider,
	table *ProportionTable,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if table == nil {
		table = NewProportionTable(DefaultCounts())
	}
	return &Service{
		upstream:    lister,
		transformer: transformer,
		breaker:     brk,
		timeouts:    timeouts,
		fallback:    fb,
		table:       table,
		logger:      logger,
	}
}

func (s *Service) Table() *ProportionTable {
	return s.table
}

// Page is the assembled result of one virtual page fetch.
type Page struct {
	Items         []domain.ContentItem
	TotalResults  int
	UsingFallback bool
}

// FetchPage assembles one global page. Per-type slices are fetched
// concurrently, one upstream request per type. Filtering happens client-side
// after the slices arrive, so filtered requests fetch a buffer that grows
// with page depth; deep filtered pages are more expensive by design.
func (s *Service) FetchPage(ctx context.Context, request domain.SearchRequest) (Page, error) {
	page := request.Page
	if page < 1 {
		page = 1
	}
	limit := request.Limit
	if limit < 1 {
		limit = 1
	}

	filtered := strings.TrimSpace(request.Query) != "" || request.Filters.HasComplexFilters()
	buffer := 1
	if filtered {
		buffer = bufferMultiplier(page)
	}

	distribution := s.table.Distribution(page, limit)

	var (
		mu            sync.Mutex
		perType       = make(map[domain.ContentType][]domain.ContentItem, len(distribution))
		usingFallback bool
	)

	sem := semaphore.NewWeighted(maxConcurrentTypes)
	var wg sync.WaitGroup
	for contentType, slice := range distribution {
		wg.Add(1)
		go func(contentType domain.ContentType, slice Slice) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			fetchLimit := slice.UpstreamLimit * buffer
			items, fellBack := s.fetchSlice(ctx, contentType, slice.UpstreamPage, fetchLimit)

			mu.Lock()
			perType[contentType] = items
			if fellBack {
				usingFallback = true
			}
			mu.Unlock()
		}(contentType, slice)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	matched := 0
	if filtered {
		for contentType, items := range perType {
			kept := make([]domain.ContentItem, 0, len(items))
			for _, item := range items {
				if MatchesQuery(item, request.Query) && MatchesFilters(item, request.Filters) {
					kept = append(kept, item)
				}
			}
			perType[contentType] = kept
			matched += len(kept)
		}
	}

	var items []domain.ContentItem
	if request.SortBy == domain.SortByRelevance {
		items = Interleave(s.table, perType, limit)
	} else {
		for _, typeItems := range perType {
			items = append(items, typeItems...)
		}
		SortItems(items, request.SortBy)
		if len(items) > limit {
			items = items[:limit]
		}
	}

	// Defensive: concurrent overshoot or undershoot must not leak out.
	if len(items) > limit {
		items = items[:limit]
	}

	total := s.table.GrandTotal()
	if filtered {
		// Approximate: only the buffered slices were inspected, so the
		// total reflects what this request could see, not a full count.
		total = (page-1)*limit + matched
	}

	return Page{
		Items:         items,
		TotalResults:  total,
		UsingFallback: usingFallback,
	}, nil
}

// fetchSlice runs one type's upstream request, degrading to the fallback
// provider when the breaker is open, the call fails, or the result set is
// suspiciously small.
func (s *Service) fetchSlice(ctx context.Context, contentType domain.ContentType, page, limit int) ([]domain.ContentItem, bool) {
	if s.breaker == nil || !s.breaker.IsOpen() {
		var envelope upstream.Envelope
		// The id is unique per slice fetch: concurrent page assemblies must
		// never cancel each other's slices. Cancellation of a superseded
		// search reaches these operations through the parent context.
		operationID := fmt.Sprintf("vpage:%s:%d", contentType, s.seq.Add(1))
		err := s.timeouts.Run(ctx, operationID, timeout.PageDeadline, func(runCtx context.Context) error {
			var listErr error
			envelope, listErr = s.upstream.List(runCtx, contentType, page, limit)
			return listErr
		})
		if err == nil {
			if s.breaker != nil {
				s.breaker.RecordSuccess()
			}
			items := s.transformer.TransformAll(envelope.Conteudo, contentType)
			if len(items) >= minSaneResults || envelope.Total.Int() == 0 {
				return items, false
			}
			s.logger.Warn("suspiciously small slice, consulting fallback",
				slog.String("type", string(contentType)),
				slog.Int("items", len(items)),
				slog.Int("reportedTotal", envelope.Total.Int()),
			)
		} else {
			if s.breaker != nil && !timeout.IsCancellation(err) {
				s.breaker.RecordFailure()
			}
			if timeout.IsCancellation(err) {
				return nil, false
			}
			s.logger.Warn("slice fetch failed, consulting fallback",
				slog.String("type", string(contentType)),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.fallback == nil || !s.fallback.Enabled() {
		return nil, false
	}
	items, _, err := s.fallback.FetchType(ctx, contentType, page, limit)
	if err != nil {
		s.logger.Warn("fallback slice failed",
			slog.String("type", string(contentType)),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return items, true
}

// bufferMultiplier grows the per-type fetch buffer with page depth: shallow
// pages need little headroom for client-side filtering, deep pages need a
// lot. This is the known scalability boundary of the design.
func bufferMultiplier(page int) int {
	switch {
	case page <= 2:
		return 3
	case page <= 5:
		return 5
	default:
		return 8
	}
}

// MatchesQuery reports whether an item matches a free-text query across its
// searchable fields. An empty query matches everything.
func MatchesQuery(item domain.ContentItem, query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	for _, field := range []string{item.Title, item.Author, item.Description, item.Subject, item.Program, item.Channel} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	for _, category := range item.Categories {
		if strings.Contains(strings.ToLower(category), query) {
			return true
		}
	}
	return false
}

// MatchesFilters applies every populated filter field. ResourceType is
// handled by the caller's strategy choice, not here.
func MatchesFilters(item domain.ContentItem, filters domain.SearchFilters) bool {
	if filters.Subject != "" && !strings.EqualFold(item.Subject, filters.Subject) {
		return false
	}
	if filters.Author != "" && !strings.Contains(strings.ToLower(item.Author), strings.ToLower(filters.Author)) {
		return false
	}
	if filters.Year > 0 && item.Year != filters.Year {
		return false
	}
	if filters.Language != "" && !strings.EqualFold(item.Language, filters.Language) {
		return false
	}
	if filters.DocumentType != "" && !strings.EqualFold(item.DocumentType, filters.DocumentType) {
		return false
	}
	if filters.Program != "" && !strings.EqualFold(item.Program, filters.Program) {
		return false
	}
	if filters.Channel != "" && !strings.EqualFold(item.Channel, filters.Channel) {
		return false
	}
	if filters.Duration != "" && !matchesDurationBand(item.Duration, filters.Duration) {
		return false
	}
	if filters.ResourceType != "" && string(item.Type) != filters.ResourceType {
		return false
	}
	return true
}

// matchesDurationBand buckets formatted durations into short/medium/long.
func matchesDurationBand(formatted, band string) bool {
	minutes := parseDurationMinutes(formatted)
	switch strings.ToLower(strings.TrimSpace(band)) {
	case "short":
		return minutes > 0 && minutes <= 15
	case "medium":
		return minutes > 15 && minutes <= 60
	case "long":
		return minutes > 60
	default:
		return true
	}
}

func parseDurationMinutes(formatted string) int {
	formatted = strings.TrimSpace(formatted)
	if formatted == "" {
		return 0
	}
	minutes := 0
	value := 0
	for _, r := range formatted {
		switch {
		case r >= '0' && r <= '9':
			value = value*10 + int(r-'0')
		case r == 'h':
			minutes += value * 60
			value = 0
		case r == 'm':
			minutes += value
			value = 0
		}
	}
	return minutes
}
