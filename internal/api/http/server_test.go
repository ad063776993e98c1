package apihttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"librarium/contentservice/internal/domain"
	"librarium/contentservice/internal/health"
	"librarium/contentservice/internal/search"
)

type fakeSearchService struct {
	lastRequest domain.SearchRequest
	response    domain.SearchResponse
	err         error
	flushed     bool
	lastCheck   time.Time
}

func (f *fakeSearchService) Search(_ context.Context, request domain.SearchRequest) (domain.SearchResponse, error) {
	f.lastRequest = request
	if f.err != nil {
		return domain.SearchResponse{}, f.err
	}
	return f.response, nil
}

func (f *fakeSearchService) Preview(context.Context, int) (map[domain.ContentType][]domain.ContentItem, bool) {
	return map[domain.ContentType][]domain.ContentItem{
		domain.ContentTypeBook: {{ID: "1", Type: domain.ContentTypeBook, Title: "Dom Casmurro"}},
	}, false
}

func (f *fakeSearchService) Counts(context.Context) domain.ContentCounts {
	return domain.ContentCounts{Videos: 10, Books: 5, Podcasts: 2, Articles: 1}
}

func (f *fakeSearchService) Healthy() health.Status {
	return health.StatusHealthy
}

func (f *fakeSearchService) LastCheck() time.Time {
	return f.lastCheck
}

func (f *fakeSearchService) ClearCaches() {
	f.flushed = true
}

type fakeDetail struct {
	item domain.ContentItem
	err  error
}

func (f *fakeDetail) Get(context.Context, domain.ContentType, string) (domain.ContentItem, error) {
	if f.err != nil {
		return domain.ContentItem{}, f.err
	}
	return f.item, nil
}

func okResponse() domain.SearchResponse {
	return domain.SearchResponse{
		Success:    true,
		Results:    []domain.ContentItem{{ID: "1", Type: domain.ContentTypeVideo, Title: "Aula"}},
		Pagination: domain.BuildPagination(1, 12, 1),
	}
}

func newTestServer(service *fakeSearchService, options ...ServerOption) *httptest.Server {
	return httptest.NewServer(NewServer(service, options...).Handler())
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(&fakeSearchService{response: okResponse()})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["status"] != "ok" || body["upstream"] != "healthy" {
		t.Fatalf("unexpected health body: %v", body)
	}
	if _, ok := body["lastCheck"]; ok {
		t.Fatal("lastCheck should be omitted before the first probe")
	}
}

func TestHealthEndpointReportsLastCheck(t *testing.T) {
	checked := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ts := newTestServer(&fakeSearchService{response: okResponse(), lastCheck: checked})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["lastCheck"] != "2026-03-01T12:00:00Z" {
		t.Fatalf("unexpected lastCheck: %v", body["lastCheck"])
	}
}

func TestSearchEndpointParsesRequest(t *testing.T) {
	service := &fakeSearchService{response: okResponse()}
	ts := newTestServer(service)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/search?q=historia&type=video&year=2020&sortBy=title&page=2&limit=24&noCache=true")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	got := service.lastRequest
	if got.Query != "historia" || got.Filters.ResourceType != "video" || got.Filters.Year != 2020 {
		t.Fatalf("unexpected parsed request: %+v", got)
	}
	if got.SortBy != domain.SortByTitle || got.Page != 2 || got.Limit != 24 || !got.NoCache {
		t.Fatalf("unexpected parsed request: %+v", got)
	}
}

func TestSearchEndpointRejectsLongQuery(t *testing.T) {
	ts := newTestServer(&fakeSearchService{response: okResponse()})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/search?q=" + strings.Repeat("a", 301))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestSearchEndpointSupersededIsNoContent(t *testing.T) {
	ts := newTestServer(&fakeSearchService{err: search.ErrSuperseded})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/search?q=x")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("superseded search should be 204, got %d", resp.StatusCode)
	}
}

func TestListEndpointSetsResourceType(t *testing.T) {
	service := &fakeSearchService{response: okResponse()}
	ts := newTestServer(service)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/content/book?page=3")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastRequest.Filters.ResourceType != "book" || service.lastRequest.Page != 3 {
		t.Fatalf("unexpected request: %+v", service.lastRequest)
	}
}

func TestListEndpointUnknownType(t *testing.T) {
	ts := newTestServer(&fakeSearchService{response: okResponse()})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/content/magazines")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestDetailEndpoint(t *testing.T) {
	detail := &fakeDetail{item: domain.ContentItem{ID: "42", Type: domain.ContentTypeBook, Title: "Dom Casmurro"}}
	ts := newTestServer(&fakeSearchService{response: okResponse()}, WithDetail(detail))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/content/book/42")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var item domain.ContentItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if item.ID != "42" || item.Title != "Dom Casmurro" {
		t.Fatalf("unexpected item: %+v", item)
	}
}

func TestDetailEndpointNotFound(t *testing.T) {
	ts := newTestServer(&fakeSearchService{response: okResponse()}, WithDetail(&fakeDetail{err: search.ErrNotFound}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/content/book/undefined")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestDetailEndpointWithoutService(t *testing.T) {
	ts := newTestServer(&fakeSearchService{response: okResponse()})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/content/book/42")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 without a detail service, got %d", resp.StatusCode)
	}
}

func TestSearchEndpointScopesClientKey(t *testing.T) {
	service := &fakeSearchService{response: okResponse()}
	ts := newTestServer(service)
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/search?q=historia", nil)
	req.Header.Set("X-Client-ID", "tab-7")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if service.lastRequest.ClientKey != "tab-7" {
		t.Fatalf("client key not propagated: %+v", service.lastRequest)
	}

	// Without the header the request carries no key and is never superseded.
	resp, err = http.Get(ts.URL + "/search?q=historia")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if service.lastRequest.ClientKey != "" {
		t.Fatalf("unexpected client key: %q", service.lastRequest.ClientKey)
	}
}

func TestPreviewEndpoint(t *testing.T) {
	ts := newTestServer(&fakeSearchService{response: okResponse()})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/content/preview")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Success       bool                                        `json:"success"`
		Preview       map[domain.ContentType][]domain.ContentItem `json:"preview"`
		UsingFallback bool                                        `json:"usingFallback"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !body.Success || body.UsingFallback {
		t.Fatalf("unexpected preview body: %+v", body)
	}
	if len(body.Preview[domain.ContentTypeBook]) != 1 {
		t.Fatalf("expected the book sample, got %+v", body.Preview)
	}
}

func TestCountsEndpoint(t *testing.T) {
	ts := newTestServer(&fakeSearchService{response: okResponse()})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/counts")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var counts domain.ContentCounts
	if err := json.NewDecoder(resp.Body).Decode(&counts); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if counts.Total() != 18 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestCacheFlushEndpoint(t *testing.T) {
	service := &fakeSearchService{response: okResponse()}
	ts := newTestServer(service)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/cache/flush", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !service.flushed {
		t.Fatal("flush handler should clear caches")
	}

	getResp, err := http.Get(ts.URL + "/cache/flush")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET on flush should be 405, got %d", getResp.StatusCode)
	}
}

func TestNormalizeRoute(t *testing.T) {
	cases := map[string]string{
		"/health":                "/health",
		"/search":                "/search",
		"/counts":                "/counts",
		"/cache/flush":           "/cache/flush",
		"/content/preview":       "/content/preview",
		"/content/video":         "/content/{type}",
		"/content/video/abc-123": "/content/{type}/{id}",
		"/content/book/featured": "/content/{type}/featured",
		"/favicon.ico":           "/other",
	}
	for path, want := range cases {
		if got := normalizeRoute(path); got != want {
			t.Fatalf("normalizeRoute(%q) = %q, want %q", path, got, want)
		}
	}
}
