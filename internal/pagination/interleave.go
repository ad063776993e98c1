package pagination

import (
	"sort"
	"strings"

	"librarium/contentservice/internal/domain"
)

// Interleave merges per-type result slices into one presentation order that
// keeps types proportionally mixed instead of grouped. At every position the
// type furthest behind its proportional quota (share x positions emitted so
// far) goes next, so a 6:3:1 share ratio emits roughly six of the dominant
// type, three of the next, one of the smallest, repeating.
func Interleave(table *ProportionTable, perType map[domain.ContentType][]domain.ContentItem, limit int) []domain.ContentItem {
	if limit <= 0 {
		return nil
	}

	cursors := make(map[domain.ContentType]int, len(perType))
	emitted := make(map[domain.ContentType]int, len(perType))
	merged := make([]domain.ContentItem, 0, limit)

	for len(merged) < limit {
		var pick domain.ContentType
		bestDeficit := 0.0
		found := false

		position := float64(len(merged) + 1)
		for _, contentType := range domain.AllContentTypes() {
			items := perType[contentType]
			if cursors[contentType] >= len(items) {
				continue
			}
			share := table.Share(contentType)
			if share <= 0 {
				share = 1e-9
			}
			deficit := share*position - float64(emitted[contentType])
			if !found || deficit > bestDeficit {
				bestDeficit = deficit
				pick = contentType
				found = true
			}
		}
		if !found {
			break
		}

		merged = append(merged, perType[pick][cursors[pick]])
		cursors[pick]++
		emitted[pick]++
	}
	return merged
}

// SortItems orders a concatenated result set by an explicit sort key.
// Explicit orders bypass interleaving entirely.
func SortItems(items []domain.ContentItem, sortBy domain.SortBy) {
	switch sortBy {
	case domain.SortByTitle:
		sort.SliceStable(items, func(i, j int) bool {
			return strings.ToLower(items[i].Title) < strings.ToLower(items[j].Title)
		})
	case domain.SortByRecent:
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].Year != items[j].Year {
				return items[i].Year > items[j].Year
			}
			return strings.ToLower(items[i].Title) < strings.ToLower(items[j].Title)
		})
	case domain.SortByAccessed:
		sort.SliceStable(items, func(i, j int) bool {
			left := typePriority(items[i].Type)
			right := typePriority(items[j].Type)
			if left != right {
				return left < right
			}
			return strings.ToLower(items[i].Title) < strings.ToLower(items[j].Title)
		})
	}
}

// typePriority ranks types by observed access volume.
func typePriority(contentType domain.ContentType) int {
	switch contentType {
	case domain.ContentTypeVideo:
		return 0
	case domain.ContentTypeBook:
		return 1
	case domain.ContentTypePodcast:
		return 2
	case domain.ContentTypeArticle:
		return 3
	default:
		return 4
	}
}
