package domain

type ContentType string

const (
	ContentTypeVideo   ContentType = "video"
	ContentTypeBook    ContentType = "book"
	ContentTypePodcast ContentType = "podcast"
	ContentTypeArticle ContentType = "article"
)

// AllContentTypes lists every type in presentation-priority order. The order
// matters for the remainder assignment in the virtual pagination distribution.
func AllContentTypes() []ContentType {
	return []ContentType{ContentTypeBook, ContentTypeVideo, ContentTypePodcast, ContentTypeArticle}
}

func NormalizeContentType(raw string) (ContentType, bool) {
	switch ContentType(raw) {
	case ContentTypeVideo, ContentTypeBook, ContentTypePodcast, ContentTypeArticle:
		return ContentType(raw), true
	default:
		return "", false
	}
}

// ContentItem is the uniform record every upstream shape collapses into.
// An item with an empty or sentinel ID never enters a result set; the
// transformer rejects it before any other field is read.
type ContentItem struct {
	ID          string      `json:"id"`
	Type        ContentType `json:"type"`
	Title       string      `json:"title"`
	Author      string      `json:"author"`
	Description string      `json:"description"`
	Year        int         `json:"year"`
	Subject     string      `json:"subject"`
	Thumbnail   string      `json:"thumbnail"`

	Pages        int      `json:"pages,omitempty"`
	Duration     string   `json:"duration,omitempty"`
	DocumentType string   `json:"documentType,omitempty"`
	Language     string   `json:"language,omitempty"`
	Program      string   `json:"program,omitempty"`
	Channel      string   `json:"channel,omitempty"`
	Episodes     int      `json:"episodes,omitempty"`
	EmbedURL     string   `json:"embedUrl,omitempty"`
	PDFURL       string   `json:"pdfUrl,omitempty"`
	Categories   []string `json:"categories,omitempty"`
}

type ContentCounts struct {
	Videos   int `json:"videos"`
	Books    int `json:"books"`
	Podcasts int `json:"podcasts"`
	Articles int `json:"articles"`
}

func (c ContentCounts) Total() int {
	return c.Videos + c.Books + c.Podcasts + c.Articles
}

func (c ContentCounts) ForType(contentType ContentType) int {
	switch contentType {
	case ContentTypeVideo:
		return c.Videos
	case ContentTypeBook:
		return c.Books
	case ContentTypePodcast:
		return c.Podcasts
	case ContentTypeArticle:
		return c.Articles
	default:
		return 0
	}
}

type SortBy string

const (
	SortByRelevance SortBy = "relevance"
	SortByTitle     SortBy = "title"
	SortByRecent    SortBy = "recent"
	SortByAccessed  SortBy = "accessed"
)

func NormalizeSortBy(raw string) SortBy {
	switch SortBy(raw) {
	case SortByTitle:
		return SortByTitle
	case SortByRecent:
		return SortByRecent
	case SortByAccessed:
		return SortByAccessed
	default:
		return SortByRelevance
	}
}

// SearchFilters describes every filter the UI can apply. ResourceType alone
// (or no filters at all) keeps a search on the simple single-type path; any
// other populated field forces the virtual pagination path.
type SearchFilters struct {
	ResourceType string `json:"resourceType,omitempty"`
	Subject      string `json:"subject,omitempty"`
	Author       string `json:"author,omitempty"`
	Year         int    `json:"year,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Language     string `json:"language,omitempty"`
	DocumentType string `json:"documentType,omitempty"`
	Program      string `json:"program,omitempty"`
	Channel      string `json:"channel,omitempty"`
}

// HasComplexFilters reports whether anything beyond the resource-type
// selector is active.
func (f SearchFilters) HasComplexFilters() bool {
	return f.Subject != "" ||
		f.Author != "" ||
		f.Year > 0 ||
		f.Duration != "" ||
		f.Language != "" ||
		f.DocumentType != "" ||
		f.Program != "" ||
		f.Channel != ""
}

type SearchRequest struct {
	Query   string        `json:"query"`
	Filters SearchFilters `json:"filters"`
	SortBy  SortBy        `json:"sortBy"`
	Page    int           `json:"page"`
	Limit   int           `json:"limit"`
	NoCache bool          `json:"noCache,omitempty"`

	// ClientKey scopes search cancellation: a new search carrying the same
	// key supersedes that client's previous in-flight search. Requests
	// without a key never cancel each other. Never part of the cache key.
	ClientKey string `json:"-"`
}

type Pagination struct {
	CurrentPage     int  `json:"currentPage"`
	TotalPages      int  `json:"totalPages"`
	TotalResults    int  `json:"totalResults"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

type SearchInfo struct {
	Query          string        `json:"query"`
	AppliedFilters SearchFilters `json:"appliedFilters"`
	SortBy         SortBy        `json:"sortBy"`
}

// SearchResponse is constructed once per request and immutable afterward,
// which makes it safe to cache by value.
type SearchResponse struct {
	Success       bool          `json:"success"`
	Results       []ContentItem `json:"results"`
	Pagination    Pagination    `json:"pagination"`
	SearchInfo    SearchInfo    `json:"searchInfo"`
	UsingFallback bool          `json:"usingFallback,omitempty"`
	Error         string        `json:"error,omitempty"`
}

func BuildPagination(page, limit, totalResults int) Pagination {
	if limit <= 0 {
		limit = 1
	}
	totalPages := (totalResults + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}
	return Pagination{
		CurrentPage:     page,
		TotalPages:      totalPages,
		TotalResults:    totalResults,
		HasNextPage:     page < totalPages,
		HasPreviousPage: page > 1,
	}
}
