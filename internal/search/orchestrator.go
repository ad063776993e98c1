// Package search is the top-level entry point for content searches. It picks
// a strategy per request, cancels superseded in-flight searches, and owns the
// response cache. Lower layers fail soft; this is the only layer that decides
// whether accumulated soft failures become user-visible.
package search

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"librarium/contentservice/internal/cache"
	"librarium/contentservice/internal/discovery"
	"librarium/contentservice/internal/domain"
	"librarium/contentservice/internal/fallback"
	"librarium/contentservice/internal/fetcher"
	"librarium/contentservice/internal/health"
	"librarium/contentservice/internal/metrics"
	"librarium/contentservice/internal/pagination"
	"librarium/contentservice/internal/timeout"
)

const (
	defaultLimit    = 12
	maxLimit        = 60
	defaultCacheTTL = 10 * time.Minute

	// representativeCount is how many items the simple single-type path
	// loads before paginating client-side.
	representativeCount = 60

	// previewLimit is the per-type sample size for the landing surface.
	previewLimit = 6

	// searchSlotPrefix namespaces the supersede slots. Searches sharing a
	// client key share one slot, so a client's new search cancels its
	// previous one; requests without a key get a unique slot and never
	// cancel anyone.
	searchSlotPrefix = "search:"
)

// ErrSuperseded reports that a newer search replaced this one while it was
// in flight. It is a silent no-op for the UI, never a failure.
var ErrSuperseded = errors.New("search superseded")

type Orchestrator struct {
	pages     *pagination.Service
	fetcher   *fetcher.Fetcher
	discovery *discovery.Service
	fallback  *fallback.Provider
	monitor   *health.Monitor
	timeouts  *timeout.Manager
	logger    *slog.Logger

	cacheDisabled bool
	cacheTTL      time.Duration
	responses     *cache.TTL[domain.SearchResponse]
	redis         *cache.RedisBackend

	slotMu     sync.Mutex
	slotGens   map[string]*atomic.Uint64
	requestSeq atomic.Uint64
}

type Option func(*Orchestrator)

func WithCacheTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) {
		if ttl > 0 {
			o.cacheTTL = ttl
		}
	}
}

func WithCacheDisabled(disabled bool) Option {
	return func(o *Orchestrator) {
		o.cacheDisabled = disabled
	}
}

func WithRedis(backend *cache.RedisBackend) Option {
	return func(o *Orchestrator) {
		o.redis = backend
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func NewOrchestrator(
	pages *pagination.Service,
	contentFetcher *fetcher.Fetcher,
	discoveryService *discovery.Service,
	fb *fallback.Provider,
	monitor *health.Monitor,
	timeouts *timeout.Manager,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		pages:     pages,
		fetcher:   contentFetcher,
		discovery: discoveryService,
		fallback:  fb,
		monitor:   monitor,
		timeouts:  timeouts,
		logger:    slog.Default(),
		cacheTTL:  defaultCacheTTL,
		responses: cache.NewTTL[domain.SearchResponse]("search",
			cache.WithValidator(cache.SearchResponseValidator),
			cache.WithAcceptor(cache.SearchResponseAcceptor),
		),
		slotGens: make(map[string]*atomic.Uint64),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Search runs one search request end to end. A new search from the same
// client (same ClientKey) cancels that client's previous in-flight search;
// the superseded search resolves with ErrSuperseded and leaves no trace in
// the cache. Independent clients never affect each other.
func (o *Orchestrator) Search(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error) {
	request = normalizeRequest(request)
	slot, shared := o.searchSlot(request)
	var slotGen *atomic.Uint64
	var generation uint64
	if shared {
		slotGen = o.generationFor(slot)
		generation = slotGen.Add(1)
	}

	key := cacheKey(request)
	if !o.cacheDisabled && !request.NoCache {
		if cached, ok := o.lookupCache(ctx, key); ok {
			// A cache hit still counts as the client's newest search: the
			// stale in-flight one is cancelled, not left running.
			if shared {
				o.timeouts.Cancel(slot)
			}
			return cached, nil
		}
	}

	var response domain.SearchResponse
	err := o.timeouts.Run(ctx, slot, timeout.AggregateDeadline, func(runCtx context.Context) error {
		var execErr error
		response, execErr = o.execute(runCtx, request)
		return execErr
	})
	if err != nil {
		if errors.Is(err, timeout.ErrSuperseded) || timeout.IsCancellation(err) {
			return domain.SearchResponse{}, ErrSuperseded
		}
		// Primary path exhausted: the fallback backend's own search function
		// is the last resort before an empty degraded response.
		if response, ok := o.fallbackSearch(ctx, request); ok {
			return response, nil
		}
		o.logger.Error("search exhausted all sources",
			slog.String("query", request.Query),
			slog.String("error", err.Error()),
		)
		return exhaustedResponse(request), nil
	}

	// A stale search must never overwrite a newer one's cache entry.
	if shared && generation != slotGen.Load() {
		return domain.SearchResponse{}, ErrSuperseded
	}

	if !o.cacheDisabled && !request.NoCache && !response.UsingFallback {
		o.storeCache(ctx, key, response)
	}

	o.prefetchNext(request)
	return response, nil
}

// searchSlot returns the supersede slot for a request and whether it is
// shared with the client's other searches.
func (o *Orchestrator) searchSlot(request domain.SearchRequest) (string, bool) {
	if key := strings.TrimSpace(request.ClientKey); key != "" {
		return searchSlotPrefix + key, true
	}
	return searchSlotPrefix + "req-" + strconv.FormatUint(o.requestSeq.Add(1), 10), false
}

func (o *Orchestrator) generationFor(slot string) *atomic.Uint64 {
	o.slotMu.Lock()
	defer o.slotMu.Unlock()
	gen, ok := o.slotGens[slot]
	if !ok {
		gen = new(atomic.Uint64)
		o.slotGens[slot] = gen
	}
	return gen
}

// fallbackSearch runs the request through the fallback backend's search
// function. Responses are flagged and never cached.
func (o *Orchestrator) fallbackSearch(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, bool) {
	if o.fallback == nil || !o.fallback.Enabled() {
		return domain.SearchResponse{}, false
	}
	items, total, err := o.fallback.Search(ctx, request)
	if err != nil || len(items) == 0 {
		return domain.SearchResponse{}, false
	}
	return domain.SearchResponse{
		Success:       true,
		Results:       items,
		Pagination:    domain.BuildPagination(request.Page, request.Limit, total),
		SearchInfo:    searchInfo(request),
		UsingFallback: true,
	}, true
}

func (o *Orchestrator) execute(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error) {
	if useSimpleStrategy(request) {
		metrics.SearchesTotal.WithLabelValues("simple").Inc()
		return o.searchSingleType(ctx, request)
	}
	metrics.SearchesTotal.WithLabelValues("virtual").Inc()
	return o.searchVirtual(ctx, request)
}

// useSimpleStrategy: a single resource-type selector on page 1 loads a
// representative set and paginates locally. Anything else goes through
// virtual pagination.
func useSimpleStrategy(request domain.SearchRequest) bool {
	return request.Filters.ResourceType != "" &&
		!request.Filters.HasComplexFilters() &&
		request.Page == 1
}

func (o *Orchestrator) searchSingleType(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error) {
	contentType, ok := domain.NormalizeContentType(request.Filters.ResourceType)
	if !ok {
		return o.searchVirtual(ctx, request)
	}

	usingFallback := false
	items, err := o.fetcher.FetchN(ctx, contentType, representativeCount, fetcher.ModePreview)
	if err != nil || len(items) == 0 {
		if err != nil && timeout.IsCancellation(err) {
			return domain.SearchResponse{}, err
		}
		fbItems, _, fbErr := o.fallback.FetchType(ctx, contentType, 1, representativeCount)
		if fbErr != nil {
			if err == nil {
				err = fbErr
			}
			return domain.SearchResponse{}, err
		}
		items = fbItems
		usingFallback = true
	}

	if query := strings.TrimSpace(request.Query); query != "" {
		kept := items[:0]
		for _, item := range items {
			if pagination.MatchesQuery(item, query) {
				kept = append(kept, item)
			}
		}
		items = kept
	}
	pagination.SortItems(items, request.SortBy)

	total := len(items)
	if strings.TrimSpace(request.Query) == "" {
		if discovered := o.discovery.Total(ctx, contentType); discovered > total {
			total = discovered
		}
	}

	pageItems := items
	if len(pageItems) > request.Limit {
		pageItems = pageItems[:request.Limit]
	}

	return domain.SearchResponse{
		Success:       true,
		Results:       pageItems,
		Pagination:    domain.BuildPagination(request.Page, request.Limit, total),
		SearchInfo:    searchInfo(request),
		UsingFallback: usingFallback,
	}, nil
}

func (o *Orchestrator) searchVirtual(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error) {
	page, err := o.pages.FetchPage(ctx, request)
	if err != nil {
		return domain.SearchResponse{}, err
	}

	return domain.SearchResponse{
		Success:       true,
		Results:       page.Items,
		Pagination:    domain.BuildPagination(request.Page, request.Limit, page.TotalResults),
		SearchInfo:    searchInfo(request),
		UsingFallback: page.UsingFallback,
	}, nil
}

// prefetchNext warms the next page speculatively. Best-effort: it runs
// outside the request path, under its own error boundary, and its failure
// is always ignored.
func (o *Orchestrator) prefetchNext(request domain.SearchRequest) {
	if o.cacheDisabled || request.NoCache || useSimpleStrategy(request) {
		return
	}
	next := request
	next.Page = request.Page + 1

	key := cacheKey(next)
	if o.responses.Valid(key) {
		return
	}

	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				o.logger.Debug("prefetch panic suppressed", slog.Any("error", recovered))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), timeout.PageDeadline)
		defer cancel()

		response, err := o.searchVirtual(ctx, next)
		if err != nil || response.UsingFallback {
			return
		}
		o.storeCache(ctx, key, response)
	}()
}

// Preview assembles a small per-type sample for the landing surface. Types
// whose primary fetch fails or comes back empty are filled from the fallback
// bundle, which tolerates individual function failures.
func (o *Orchestrator) Preview(ctx context.Context, limit int) (map[domain.ContentType][]domain.ContentItem, bool) {
	if limit < 1 {
		limit = previewLimit
	}
	preview := make(map[domain.ContentType][]domain.ContentItem, 4)
	missing := 0
	for _, contentType := range domain.AllContentTypes() {
		items, err := o.fetcher.FetchN(ctx, contentType, limit, fetcher.ModePreview)
		if err != nil || len(items) == 0 {
			missing++
			continue
		}
		preview[contentType] = items
	}
	if missing == 0 || o.fallback == nil || !o.fallback.Enabled() {
		return preview, false
	}

	all := o.fallback.FetchAll(ctx, limit)
	usingFallback := false
	for contentType, items := range map[domain.ContentType][]domain.ContentItem{
		domain.ContentTypeVideo:   all.Videos,
		domain.ContentTypeBook:    all.Books,
		domain.ContentTypePodcast: all.Podcasts,
		domain.ContentTypeArticle: all.Articles,
	} {
		if len(preview[contentType]) == 0 && len(items) > 0 {
			preview[contentType] = items
			usingFallback = true
		}
	}
	return preview, usingFallback
}

// Counts reports per-type corpus sizes, degrading through discovery's last
// known good values down to the emergency constants.
func (o *Orchestrator) Counts(ctx context.Context) domain.ContentCounts {
	counts := o.discovery.Counts(ctx)
	if counts.Total() == 0 {
		return o.fallback.EmergencyCounts()
	}
	return counts
}

// Healthy exposes the monitor status for the HTTP surface.
func (o *Orchestrator) Healthy() health.Status {
	if o.monitor == nil {
		return health.StatusUnknown
	}
	return o.monitor.Status()
}

// LastCheck reports when the upstream probe last completed, zero when no
// monitor is attached or the first probe has not finished yet.
func (o *Orchestrator) LastCheck() time.Time {
	if o.monitor == nil {
		return time.Time{}
	}
	return o.monitor.LastCheck()
}

// ClearCaches drops every cached response and aborts all in-flight
// operations. Used by the global flush endpoint.
func (o *Orchestrator) ClearCaches() {
	o.responses.Clear()
	o.timeouts.CancelAll()
}

func (o *Orchestrator) lookupCache(ctx context.Context, key string) (domain.SearchResponse, bool) {
	if response, ok := o.responses.Get(key); ok {
		return response, true
	}
	if o.redis != nil {
		response, found, err := o.redis.Get(ctx, key)
		if err == nil && found {
			o.responses.Set(key, response, o.cacheTTL)
			return response, true
		}
	}
	return domain.SearchResponse{}, false
}

func (o *Orchestrator) storeCache(ctx context.Context, key string, response domain.SearchResponse) {
	o.responses.Set(key, response, o.cacheTTL)
	if o.redis != nil {
		if err := o.redis.Set(ctx, key, response, o.cacheTTL); err != nil {
			o.logger.Debug("redis cache write failed", slog.String("error", err.Error()))
		}
	}
}

func normalizeRequest(request domain.SearchRequest) domain.SearchRequest {
	request.Query = strings.TrimSpace(request.Query)
	if request.Page < 1 {
		request.Page = 1
	}
	if request.Limit <= 0 {
		request.Limit = defaultLimit
	}
	if request.Limit > maxLimit {
		request.Limit = maxLimit
	}
	request.SortBy = domain.NormalizeSortBy(string(request.SortBy))
	return request
}

func searchInfo(request domain.SearchRequest) domain.SearchInfo {
	return domain.SearchInfo{
		Query:          request.Query,
		AppliedFilters: request.Filters,
		SortBy:         request.SortBy,
	}
}

func exhaustedResponse(request domain.SearchRequest) domain.SearchResponse {
	return domain.SearchResponse{
		Success:       true,
		Results:       []domain.ContentItem{},
		Pagination:    domain.BuildPagination(request.Page, request.Limit, 0),
		SearchInfo:    searchInfo(request),
		UsingFallback: true,
		Error:         "showing approximate data: all content sources unavailable",
	}
}
