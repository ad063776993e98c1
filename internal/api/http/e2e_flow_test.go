package apihttp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"librarium/contentservice/internal/discovery"
	"librarium/contentservice/internal/domain"
	"librarium/contentservice/internal/fallback"
	"librarium/contentservice/internal/fetcher"
	"librarium/contentservice/internal/pagination"
	"librarium/contentservice/internal/search"
	"librarium/contentservice/internal/timeout"
	"librarium/contentservice/internal/transform"
	"librarium/contentservice/internal/upstream"
)

// upstreamStub serves the paginated envelope protocol for every collection,
// with a switch to start failing mid-test.
type upstreamStub struct {
	failing atomic.Bool
}

func (u *upstreamStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if u.failing.Load() {
			http.Error(w, "upstream down", http.StatusServiceUnavailable)
			return
		}

		collection := strings.Trim(r.URL.Path, "/")
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit < 1 {
			limit = 1
		}
		page := r.URL.Query().Get("page")

		items := make([]map[string]any, limit)
		for i := range items {
			items[i] = map[string]any{
				"id":     fmt.Sprintf("%s-%s-%d", collection, page, i),
				"titulo": fmt.Sprintf("Título %s %d", collection, i),
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"conteudo": items,
			"total":    500,
		})
	}
}

func newE2EServer(t *testing.T, stub *upstreamStub) *httptest.Server {
	t.Helper()
	upstreamServer := httptest.NewServer(stub.handler())
	t.Cleanup(upstreamServer.Close)

	timeouts := timeout.NewManager()
	transformer := transform.New()
	client := upstream.NewClient(upstream.Config{
		BaseURL:   upstreamServer.URL,
		UserAgent: "e2e-test",
		Client:    upstreamServer.Client(),
	})
	fb := fallback.New(fallback.Config{}, transformer)
	pages := pagination.NewService(client, transformer, nil, timeouts, fb, nil, nil)
	contentFetcher := fetcher.New(client, transformer, nil, timeouts, fetcher.WithInterWaveDelay(0))
	discoveryService := discovery.New(client, timeouts, nil)
	orchestrator := search.NewOrchestrator(pages, contentFetcher, discoveryService, fb, nil, timeouts,
		search.WithCacheDisabled(true),
	)

	apiServer := httptest.NewServer(NewServer(orchestrator,
		WithDetail(search.NewDetail(client, transformer, timeouts)),
	).Handler())
	t.Cleanup(apiServer.Close)
	return apiServer
}

func getSearchResponse(t *testing.T, url string) domain.SearchResponse {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var response domain.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return response
}

func TestE2EVirtualPageFlow(t *testing.T) {
	stub := &upstreamStub{}
	api := newE2EServer(t, stub)

	response := getSearchResponse(t, api.URL+"/search?limit=12")
	if !response.Success {
		t.Fatalf("expected success: %+v", response)
	}
	if len(response.Results) != 12 {
		t.Fatalf("expected a full page of 12, got %d", len(response.Results))
	}
	if response.UsingFallback {
		t.Fatal("healthy upstream should not report fallback")
	}

	// Mixed types on the default relevance order.
	types := map[domain.ContentType]bool{}
	for _, item := range response.Results {
		types[item.Type] = true
	}
	if len(types) < 2 {
		t.Fatalf("expected a mix of types, got %v", types)
	}
}

func TestE2ESingleTypeFlow(t *testing.T) {
	stub := &upstreamStub{}
	api := newE2EServer(t, stub)

	response := getSearchResponse(t, api.URL+"/content/book?limit=12")
	if len(response.Results) != 12 {
		t.Fatalf("expected 12 books, got %d", len(response.Results))
	}
	for _, item := range response.Results {
		if item.Type != domain.ContentTypeBook {
			t.Fatalf("non-book in single-type listing: %+v", item)
		}
	}
	if response.Pagination.TotalResults != 500 {
		t.Fatalf("expected discovered total 500, got %d", response.Pagination.TotalResults)
	}
}

func TestE2EDetailFlow(t *testing.T) {
	stub := &upstreamStub{}
	api := newE2EServer(t, stub)

	resp, err := http.Get(api.URL + "/content/livro/any")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown type should be 404, got %d", resp.StatusCode)
	}
}

func TestE2EUpstreamOutageDegrades(t *testing.T) {
	stub := &upstreamStub{}
	api := newE2EServer(t, stub)
	stub.failing.Store(true)

	// No fallback configured: the response degrades to an empty approximate
	// set instead of a transport error.
	response := getSearchResponse(t, api.URL+"/content/video?limit=12")
	if !response.Success {
		t.Fatal("degraded response still reports success")
	}
	if len(response.Results) != 0 {
		t.Fatalf("expected empty results during outage, got %d", len(response.Results))
	}
	if !response.UsingFallback {
		t.Fatal("outage should raise the fallback flag")
	}
}
