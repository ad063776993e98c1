package transform

import (
	"testing"
	"time"

	"librarium/contentservice/internal/domain"
	"librarium/contentservice/internal/upstream"
)

func fixedClock() time.Time {
	return time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
}

func TestRejectsSentinelIDs(t *testing.T) {
	tr := New(WithClock(fixedClock))
	for _, id := range []string{"", "0", "undefined", "null", "none", "nan", "  NULL  ", "UNDEFINED"} {
		raw := upstream.Item{ID: upstream.FlexString(id), Titulo: "Valid title"}
		if _, ok := tr.Transform(raw, domain.ContentTypeBook); ok {
			t.Fatalf("id %q should be rejected", id)
		}
	}
}

func TestCodigoBacksUpMissingID(t *testing.T) {
	tr := New(WithClock(fixedClock))
	raw := upstream.Item{Codigo: "abc-42", Titulo: "Tese"}
	item, ok := tr.Transform(raw, domain.ContentTypeArticle)
	if !ok {
		t.Fatal("expected item accepted via codigo")
	}
	if item.ID != "abc-42" {
		t.Fatalf("expected id abc-42, got %q", item.ID)
	}
}

func TestFieldFallbackChains(t *testing.T) {
	tr := New(WithClock(fixedClock))

	raw := upstream.Item{
		ID:          "1",
		Title:       "English Title",
		Author:      "Jane",
		Description: "English description",
	}
	item, _ := tr.Transform(raw, domain.ContentTypeBook)
	if item.Title != "English Title" || item.Author != "Jane" || item.Description != "English description" {
		t.Fatalf("alternative spellings not honored: %+v", item)
	}

	// Portuguese spellings win when both are present.
	raw.Titulo = "Título"
	raw.Autor = "Joana"
	raw.Descricao = "Descrição"
	item, _ = tr.Transform(raw, domain.ContentTypeBook)
	if item.Title != "Título" || item.Author != "Joana" || item.Description != "Descrição" {
		t.Fatalf("primary spellings not preferred: %+v", item)
	}
}

func TestDefaultsForMissingFields(t *testing.T) {
	tr := New(WithClock(fixedClock))
	item, ok := tr.Transform(upstream.Item{ID: "9"}, domain.ContentTypeVideo)
	if !ok {
		t.Fatal("bare item with valid id should be accepted")
	}
	if item.Title != "Sem título" {
		t.Fatalf("unexpected title default %q", item.Title)
	}
	if item.Author != "Autor desconhecido" {
		t.Fatalf("unexpected author default %q", item.Author)
	}
	if item.Subject != "Geral" {
		t.Fatalf("unexpected subject default %q", item.Subject)
	}
	if item.Thumbnail != "/assets/defaults/video.png" {
		t.Fatalf("unexpected thumbnail default %q", item.Thumbnail)
	}
	if item.Year != 2026 {
		t.Fatalf("missing date should default to current year, got %d", item.Year)
	}
}

func TestPodcastAuthorDefault(t *testing.T) {
	tr := New(WithClock(fixedClock))
	item, _ := tr.Transform(upstream.Item{ID: "9"}, domain.ContentTypePodcast)
	if item.Author != "Apresentador desconhecido" {
		t.Fatalf("unexpected podcast author default %q", item.Author)
	}
}

func TestPublishYearLayouts(t *testing.T) {
	tr := New(WithClock(fixedClock))
	cases := map[string]int{
		"2019-06-15T10:30:00Z": 2019,
		"2021-02-03":           2021,
		"15/08/2017":           2017,
		"1999":                 1999,
		"not a date":           2026,
	}
	for value, want := range cases {
		item, _ := tr.Transform(upstream.Item{ID: "1", DataPublicacao: value}, domain.ContentTypeBook)
		if item.Year != want {
			t.Fatalf("date %q: expected year %d, got %d", value, want, item.Year)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[int]string{
		0:    "",
		-5:   "",
		30:   "1m",
		2700: "45m",
		8100: "2h 15m",
		3600: "1h 0m",
	}
	for seconds, want := range cases {
		if got := FormatDuration(seconds); got != want {
			t.Fatalf("FormatDuration(%d) = %q, want %q", seconds, got, want)
		}
	}
}

func TestLanguageDisplayName(t *testing.T) {
	tr := New(WithClock(fixedClock))
	item, _ := tr.Transform(upstream.Item{ID: "1", Idioma: "pt"}, domain.ContentTypeBook)
	if item.Language != "Portuguese" {
		t.Fatalf("expected Portuguese, got %q", item.Language)
	}

	// Unparseable codes pass through untouched.
	item, _ = tr.Transform(upstream.Item{ID: "1", Idioma: "???"}, domain.ContentTypeBook)
	if item.Language != "???" {
		t.Fatalf("expected passthrough, got %q", item.Language)
	}
}

func TestInferTypePriority(t *testing.T) {
	cases := []struct {
		name string
		raw  upstream.Item
		want domain.ContentType
	}{
		{"embed url wins", upstream.Item{EmbedURL: "https://player/x", Paginas: 200}, domain.ContentTypeVideo},
		{"channel wins over podcast markers", upstream.Item{Canal: "Canal Um", Programa: "Conversa"}, domain.ContentTypeVideo},
		{"podcast outranks book", upstream.Item{PodcastTitulo: "Ep 12", Paginas: 40}, domain.ContentTypePodcast},
		{"episodes imply podcast", upstream.Item{Episodios: 8}, domain.ContentTypePodcast},
		{"pdf implies book", upstream.Item{PDFURL: "/f.pdf"}, domain.ContentTypeBook},
		{"pages imply book", upstream.Item{Paginas: 120}, domain.ContentTypeBook},
		{"bare record is article", upstream.Item{}, domain.ContentTypeArticle},
	}
	for _, tc := range cases {
		if got := InferType(tc.raw); got != tc.want {
			t.Fatalf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestTransformAllDropsRejected(t *testing.T) {
	tr := New(WithClock(fixedClock))
	raw := []upstream.Item{
		{ID: "1", Titulo: "A"},
		{ID: "undefined", Titulo: "B"},
		{ID: "2", Titulo: "C"},
		{Titulo: "no id"},
	}
	items := tr.TransformAll(raw, domain.ContentTypeArticle)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != "1" || items[1].ID != "2" {
		t.Fatalf("unexpected ids: %+v", items)
	}
}

func TestSubjectFromFirstCategory(t *testing.T) {
	tr := New(WithClock(fixedClock))
	item, _ := tr.Transform(upstream.Item{
		ID:         "1",
		Categorias: []string{"  ", "História", "Geografia"},
	}, domain.ContentTypeBook)
	if item.Subject != "História" {
		t.Fatalf("expected first non-blank category, got %q", item.Subject)
	}
	if len(item.Categories) != 2 {
		t.Fatalf("blank categories should be dropped, got %v", item.Categories)
	}
}
