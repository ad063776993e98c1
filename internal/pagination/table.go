// Package pagination presents a single paged view over several
// independently-paginated upstream collections without ever materializing
// their union. Each content type owns a share of the corpus; a global page's
// item budget is distributed across types by those shares, fetched
// concurrently, and interleaved for presentation.
package pagination

import (
	"math"
	"sync"

	"librarium/contentservice/internal/domain"
)

// ProportionTable maps each content type to its share of the total corpus.
// Shares are static between recalibrations, which is the whole point: total
// pages and per-type slices derive from known numbers instead of a
// per-request full count. Page contents are therefore approximate across
// recalibrations; only total-count and ordering-shape guarantees hold.
type ProportionTable struct {
	mu         sync.RWMutex
	counts     domain.ContentCounts
	shares     map[domain.ContentType]float64
	dominant   domain.ContentType
	grandTotal int
}

// DefaultCounts are the last recalibrated corpus sizes.
func DefaultCounts() domain.ContentCounts {
	return domain.ContentCounts{
		Videos:   2850,
		Books:    410,
		Podcasts: 96,
		Articles: 38,
	}
}

func NewProportionTable(counts domain.ContentCounts) *ProportionTable {
	t := &ProportionTable{}
	t.Recalibrate(counts)
	return t
}

// Recalibrate replaces the share table with fresh counts. Called on a slow
// cadence (discovery refresh), never per request.
func (t *ProportionTable) Recalibrate(counts domain.ContentCounts) {
	total := counts.Total()
	if total <= 0 {
		counts = DefaultCounts()
		total = counts.Total()
	}

	shares := make(map[domain.ContentType]float64, 4)
	dominant := domain.ContentTypeVideo
	best := -1.0
	for _, contentType := range domain.AllContentTypes() {
		share := float64(counts.ForType(contentType)) / float64(total)
		shares[contentType] = share
		if share > best {
			best = share
			dominant = contentType
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts = counts
	t.shares = shares
	t.dominant = dominant
	t.grandTotal = total
}

func (t *ProportionTable) GrandTotal() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.grandTotal
}

func (t *ProportionTable) Share(contentType domain.ContentType) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.shares[contentType]
}

func (t *ProportionTable) Counts() domain.ContentCounts {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counts
}

// TotalPages derives the page count from the statically known grand total.
func (t *ProportionTable) TotalPages(limit int) int {
	if limit <= 0 {
		return 1
	}
	pages := (t.GrandTotal() + limit - 1) / limit
	if pages < 1 {
		pages = 1
	}
	return pages
}

// Slice tells one content type which upstream page to request and how many
// items of it belong to the current global page.
type Slice struct {
	UpstreamPage  int
	UpstreamLimit int
}

// Distribution computes, for a global (page, limit), each type's upstream
// slice. Per-type budgets are the rounded proportional shares of limit, with
// the rounding remainder assigned to the dominant type so the budgets sum to
// limit exactly.
func (t *ProportionTable) Distribution(page, limit int) map[domain.ContentType]Slice {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}

	t.mu.RLock()
	shares := make(map[domain.ContentType]float64, len(t.shares))
	for contentType, share := range t.shares {
		shares[contentType] = share
	}
	dominant := t.dominant
	t.mu.RUnlock()

	budgets := make(map[domain.ContentType]int, len(shares))
	assigned := 0
	for _, contentType := range domain.AllContentTypes() {
		budget := int(math.Round(float64(limit) * shares[contentType]))
		budgets[contentType] = budget
		assigned += budget
	}
	budgets[dominant] += limit - assigned
	if budgets[dominant] < 0 {
		budgets[dominant] = 0
	}

	startIndex := (page - 1) * limit

	distribution := make(map[domain.ContentType]Slice, len(budgets))
	for contentType, budget := range budgets {
		if budget <= 0 {
			continue
		}
		typeStart := float64(startIndex) * shares[contentType]
		upstreamPage := int(math.Ceil((typeStart + 1) / float64(budget)))
		if upstreamPage < 1 {
			upstreamPage = 1
		}
		distribution[contentType] = Slice{
			UpstreamPage:  upstreamPage,
			UpstreamLimit: budget,
		}
	}
	return distribution
}
