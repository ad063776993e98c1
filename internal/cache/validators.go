package cache

import "librarium/contentservice/internal/domain"

// SearchResponseValidator flags the partial-upstream symptom: a response that
// reports a non-zero total but carries no results. Such an entry is treated
// as corrupted and evicted rather than served until expiry.
func SearchResponseValidator(response domain.SearchResponse) bool {
	return !(len(response.Results) == 0 && response.Pagination.TotalResults > 0)
}

// SearchResponseAcceptor refuses degenerate writes outright so a partial
// upstream response never enters the cache in the first place.
func SearchResponseAcceptor(response domain.SearchResponse) bool {
	return SearchResponseValidator(response)
}
