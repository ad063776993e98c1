package search

import (
	"strconv"
	"strings"

	"librarium/contentservice/internal/domain"
)

// cacheKey builds a deterministic key for a normalized request. The resource
// type is a dedicated component rather than part of a structural hash of the
// filters, so responses for different type selectors can never bleed into
// each other.
func cacheKey(request domain.SearchRequest) string {
	return strings.Join([]string{
		"q=" + strings.ToLower(strings.TrimSpace(request.Query)),
		"rt=" + strings.ToLower(strings.TrimSpace(request.Filters.ResourceType)),
		"p=" + strconv.Itoa(request.Page),
		"l=" + strconv.Itoa(request.Limit),
		"sb=" + string(request.SortBy),
		"f=" + filtersKey(request.Filters),
	}, "|")
}

func filtersKey(filters domain.SearchFilters) string {
	return strings.Join([]string{
		"s=" + strings.ToLower(strings.TrimSpace(filters.Subject)),
		"a=" + strings.ToLower(strings.TrimSpace(filters.Author)),
		"y=" + strconv.Itoa(filters.Year),
		"d=" + strings.ToLower(strings.TrimSpace(filters.Duration)),
		"lg=" + strings.ToLower(strings.TrimSpace(filters.Language)),
		"dt=" + strings.ToLower(strings.TrimSpace(filters.DocumentType)),
		"pr=" + strings.ToLower(strings.TrimSpace(filters.Program)),
		"ch=" + strings.ToLower(strings.TrimSpace(filters.Channel)),
	}, ";")
}
