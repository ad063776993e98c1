// Package transform converts raw upstream records into normalized content
// items. Rejection happens here, at the earliest possible point: a record
// without a usable identifier never reaches any downstream collection.
package transform

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"librarium/contentservice/internal/domain"
	"librarium/contentservice/internal/upstream"
)

// Sentinel tokens the upstream emits for records whose id was lost.
var invalidIDTokens = map[string]struct{}{
	"":          {},
	"0":         {},
	"undefined": {},
	"null":      {},
	"none":      {},
	"nan":       {},
}

var typeDefaults = map[domain.ContentType]struct {
	subject   string
	thumbnail string
}{
	domain.ContentTypeVideo:   {subject: "Geral", thumbnail: "/assets/defaults/video.png"},
	domain.ContentTypeBook:    {subject: "Literatura", thumbnail: "/assets/defaults/book.png"},
	domain.ContentTypePodcast: {subject: "Conversas", thumbnail: "/assets/defaults/podcast.png"},
	domain.ContentTypeArticle: {subject: "Atualidades", thumbnail: "/assets/defaults/article.png"},
}

var publishDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006",
	"2006",
}

type Transformer struct {
	now func() time.Time
}

type Option func(*Transformer)

// WithClock overrides the time source used for the current-year default.
func WithClock(now func() time.Time) Option {
	return func(t *Transformer) {
		if now != nil {
			t.now = now
		}
	}
}

func New(opts ...Option) *Transformer {
	t := &Transformer{now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ValidID reports whether a raw identifier is usable.
func ValidID(raw string) bool {
	_, invalid := invalidIDTokens[strings.ToLower(strings.TrimSpace(raw))]
	return !invalid
}

// Transform normalizes one raw item. The second return is false when the
// item is rejected; callers drop rejected items and keep going, they never
// treat a rejection as an error.
func (t *Transformer) Transform(raw upstream.Item, sourceType domain.ContentType) (domain.ContentItem, bool) {
	id := firstNonEmpty(raw.ID.String(), raw.Codigo.String())
	if !ValidID(id) {
		return domain.ContentItem{}, false
	}

	defaults := typeDefaults[sourceType]

	item := domain.ContentItem{
		ID:          id,
		Type:        sourceType,
		Title:       firstNonEmpty(raw.Titulo, raw.Title, raw.Nome, "Sem título"),
		Author:      firstNonEmpty(raw.Autor, raw.Author, defaultAuthor(sourceType)),
		Description: firstNonEmpty(raw.Descricao, raw.Description, raw.Resumo, "Descrição não disponível."),
		Year:        t.publishYear(raw),
		Subject:     firstCategory(raw.Categorias, defaults.subject),
		Thumbnail:   firstNonEmpty(raw.Thumbnail, raw.Imagem, raw.Capa, defaults.thumbnail),
		Categories:  cleanCategories(raw.Categorias),
	}

	switch sourceType {
	case domain.ContentTypeBook:
		item.Pages = raw.Paginas.Int()
		item.DocumentType = firstNonEmpty(raw.TipoDocumento, "Livro")
		item.Language = languageName(raw.Idioma)
		item.PDFURL = strings.TrimSpace(raw.PDFURL)
	case domain.ContentTypeVideo:
		item.Duration = FormatDuration(raw.DuracaoSegundos.Int())
		item.Channel = strings.TrimSpace(raw.Canal)
		item.EmbedURL = strings.TrimSpace(raw.EmbedURL)
	case domain.ContentTypePodcast:
		item.Duration = FormatDuration(raw.DuracaoSegundos.Int())
		item.Program = firstNonEmpty(raw.Programa, raw.PodcastTitulo)
		item.Episodes = raw.Episodios.Int()
	case domain.ContentTypeArticle:
		item.DocumentType = firstNonEmpty(raw.TipoDocumento, "Artigo")
		item.Language = languageName(raw.Idioma)
		item.PDFURL = strings.TrimSpace(raw.PDFURL)
	}

	return item, true
}

// TransformAll maps a raw collection, dropping rejected items.
func (t *Transformer) TransformAll(raw []upstream.Item, sourceType domain.ContentType) []domain.ContentItem {
	items := make([]domain.ContentItem, 0, len(raw))
	for _, r := range raw {
		if item, ok := t.Transform(r, sourceType); ok {
			items = append(items, item)
		}
	}
	return items
}

// InferType guesses a record's content type from the fields it carries.
// The rule order is deliberate: an embed URL or channel only ever comes from
// the video player, so video wins; podcast markers outrank book markers
// because podcast feeds routinely carry page-like metadata too.
func InferType(raw upstream.Item) domain.ContentType {
	switch {
	case strings.TrimSpace(raw.EmbedURL) != "" || strings.TrimSpace(raw.Canal) != "":
		return domain.ContentTypeVideo
	case strings.TrimSpace(raw.Programa) != "" || strings.TrimSpace(raw.PodcastTitulo) != "" || raw.Episodios.Int() > 0:
		return domain.ContentTypePodcast
	case strings.TrimSpace(raw.PDFURL) != "" || raw.Paginas.Int() > 0:
		return domain.ContentTypeBook
	default:
		return domain.ContentTypeArticle
	}
}

func (t *Transformer) publishYear(raw upstream.Item) int {
	value := firstNonEmpty(raw.DataPublicacao, raw.PublishedAt)
	for _, layout := range publishDateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			year := parsed.Year()
			if year > 0 {
				return year
			}
		}
	}
	return t.now().Year()
}

// FormatDuration renders whole seconds as "2h 15m" or "45m".
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return ""
	}
	minutes := seconds / 60
	if minutes < 1 {
		minutes = 1
	}
	hours := minutes / 60
	if hours > 0 {
		return strconv.Itoa(hours) + "h " + strconv.Itoa(minutes%60) + "m"
	}
	return strconv.Itoa(minutes) + "m"
}

func languageName(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

func defaultAuthor(sourceType domain.ContentType) string {
	switch sourceType {
	case domain.ContentTypePodcast:
		return "Apresentador desconhecido"
	default:
		return "Autor desconhecido"
	}
}

func firstCategory(categories []string, fallback string) string {
	for _, category := range categories {
		if value := strings.TrimSpace(category); value != "" {
			return value
		}
	}
	return fallback
}

func cleanCategories(categories []string) []string {
	if len(categories) == 0 {
		return nil
	}
	cleaned := make([]string, 0, len(categories))
	for _, category := range categories {
		if value := strings.TrimSpace(category); value != "" {
			cleaned = append(cleaned, value)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
