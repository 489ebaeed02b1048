package news

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/bourbonbuddy/internal/metrics"
	"github.com/hitoshi/bourbonbuddy/internal/model"
	"github.com/hitoshi/bourbonbuddy/internal/security"
)

const testRSS = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Whisky Wire &amp; Co</title>
    <link>https://news.example.com</link>
    <item>
      <title>New Barrel Proof &amp; Release</title>
      <link>https://news.example.com/barrel-proof</link>
      <guid>bp-2026</guid>
      <description>&lt;p&gt;Big news&lt;/p&gt;&lt;script&gt;alert(1)&lt;/script&gt;</description>
      <pubDate>Mon, 19 Oct 2026 08:00:00 GMT</pubDate>
    </item>
    <item>
      <title>No guid</title>
      <link>https://news.example.com/no-guid</link>
    </item>
    <item>
      <title>Nothing to key on</title>
    </item>
  </channel>
</rss>`

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newTestFetcher(repo *mockNewsRepo, guard security.SSRFGuardService, collector metrics.MetricsCollector) (*Fetcher, *bytes.Buffer) {
	var buf bytes.Buffer
	f := NewFetcher(repo, guard, security.NewSummarySanitizer(), security.NewTextSanitizer(),
		collector, newTestLogger(&buf), FetcherConfig{Timeout: 2 * time.Second, MaxBodySize: 1 << 20, Interval: 15 * time.Minute})
	f.now = func() time.Time { return testNow }
	return f, &buf
}

func TestFetcher_Fetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Header().Set("ETag", `"v2"`)
		w.Header().Set("Last-Modified", "Mon, 19 Oct 2026 08:00:00 GMT")
		fmt.Fprint(w, testRSS)
	}))
	defer server.Close()

	repo := &mockNewsRepo{}
	collector := &mockCollector{}
	f, _ := newTestFetcher(repo, &mockSSRFGuard{}, collector)
	source := &model.NewsSource{ID: "s1", FeedURL: server.URL, ConsecutiveErrors: 3}

	if err := f.Fetch(context.Background(), source); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.items) != 2 {
		t.Fatalf("upserted items = %d, want 2", len(repo.items))
	}
	first := repo.items[0]
	if first.GUID != "bp-2026" || first.SourceID != "s1" || first.ID == "" {
		t.Errorf("first item = %+v", first)
	}
	if first.Title != "New Barrel Proof & Release" {
		t.Errorf("Title = %q", first.Title)
	}
	if strings.Contains(first.Summary, "script") || !strings.Contains(first.Summary, "<p>Big news</p>") {
		t.Errorf("Summary = %q", first.Summary)
	}
	if first.PublishedAt == nil || !first.PublishedAt.Equal(time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("PublishedAt = %v", first.PublishedAt)
	}
	if repo.items[1].GUID != "https://news.example.com/no-guid" {
		t.Errorf("guid fallback = %q", repo.items[1].GUID)
	}

	if source.ETag != `"v2"` || source.LastModified != "Mon, 19 Oct 2026 08:00:00 GMT" {
		t.Errorf("conditional headers not stored: %q %q", source.ETag, source.LastModified)
	}
	if source.Title != "Whisky Wire & Co" {
		t.Errorf("Title = %q", source.Title)
	}
	if source.ConsecutiveErrors != 0 || !source.NextFetchAt.Equal(testNow.Add(15*time.Minute)) {
		t.Errorf("source state = %+v", source)
	}
	if len(repo.states) != 1 {
		t.Errorf("UpdateFetchState calls = %d, want 1", len(repo.states))
	}
	if len(collector.results) != 1 || collector.results[0] != metrics.NewsFetchSuccess || collector.upserted != 2 {
		t.Errorf("metrics = %v upserted=%d", collector.results, collector.upserted)
	}
}

func TestFetcher_Fetch_SendsConditionalHeaders(t *testing.T) {
	var gotETag, gotSince string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotETag = r.Header.Get("If-None-Match")
		gotSince = r.Header.Get("If-Modified-Since")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	repo := &mockNewsRepo{}
	collector := &mockCollector{}
	f, _ := newTestFetcher(repo, &mockSSRFGuard{}, collector)
	source := &model.NewsSource{ID: "s1", FeedURL: server.URL, ETag: `"v1"`, LastModified: "Sun, 18 Oct 2026 00:00:00 GMT"}

	if err := f.Fetch(context.Background(), source); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotETag != `"v1"` || gotSince != "Sun, 18 Oct 2026 00:00:00 GMT" {
		t.Errorf("conditional headers = %q %q", gotETag, gotSince)
	}
	if len(repo.items) != 0 {
		t.Error("304 must not upsert items")
	}
	if collector.results[0] != metrics.NewsFetchNotModified {
		t.Errorf("result = %q", collector.results[0])
	}
}

func TestFetcher_Fetch_Failures(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantNext   time.Duration
		wantErrors int
	}{
		{
			name:       "server error backs off",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
			wantNext:   time.Hour,
			wantErrors: 2,
		},
		{
			name:       "gone waits the maximum",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
			wantNext:   12 * time.Hour,
			wantErrors: 2,
		},
		{
			name:       "parse failure backs off",
			handler:    func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "this is not a feed") },
			wantNext:   time.Hour,
			wantErrors: 2,
		},
		{
			name: "oversized body backs off",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write(bytes.Repeat([]byte("x"), 2<<20))
			},
			wantNext:   time.Hour,
			wantErrors: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			repo := &mockNewsRepo{}
			collector := &mockCollector{}
			f, _ := newTestFetcher(repo, &mockSSRFGuard{}, collector)
			source := &model.NewsSource{ID: "s1", FeedURL: server.URL, ConsecutiveErrors: 1}

			if err := f.Fetch(context.Background(), source); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if source.ConsecutiveErrors != tt.wantErrors {
				t.Errorf("ConsecutiveErrors = %d, want %d", source.ConsecutiveErrors, tt.wantErrors)
			}
			if !source.NextFetchAt.Equal(testNow.Add(tt.wantNext)) {
				t.Errorf("NextFetchAt = %v, want now+%v", source.NextFetchAt, tt.wantNext)
			}
			if source.ErrorMessage == "" {
				t.Error("ErrorMessage should be recorded")
			}
			if collector.results[0] != metrics.NewsFetchFailure {
				t.Errorf("result = %q", collector.results[0])
			}
		})
	}
}

func TestFetcher_Fetch_SSRFBlocked(t *testing.T) {
	repo := &mockNewsRepo{}
	f, _ := newTestFetcher(repo, &mockSSRFGuard{validateErr: security.ErrBlockedURL}, nil)
	source := &model.NewsSource{ID: "s1", FeedURL: "http://169.254.169.254/latest"}

	err := f.Fetch(context.Background(), source)
	if !errors.Is(err, security.ErrBlockedURL) {
		t.Fatalf("err = %v, want ErrBlockedURL", err)
	}
	if len(repo.states) != 1 || !source.NextFetchAt.Equal(testNow.Add(12*time.Hour)) {
		t.Errorf("blocked source should be parked for the maximum delay: %+v", source)
	}
}

func TestFetcher_Fetch_ItemFailureDoesNotStopOthers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testRSS)
	}))
	defer server.Close()

	repo := &mockNewsRepo{itemErr: map[string]error{"bp-2026": errors.New("constraint")}}
	collector := &mockCollector{}
	f, buf := newTestFetcher(repo, &mockSSRFGuard{}, collector)

	if err := f.Fetch(context.Background(), &model.NewsSource{ID: "s1", FeedURL: server.URL}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.items) != 1 || collector.upserted != 1 {
		t.Errorf("items = %d upserted = %d, want 1", len(repo.items), collector.upserted)
	}
	if !strings.Contains(buf.String(), "ニュース記事のUPSERTに失敗しました") {
		t.Error("item failure should be logged")
	}
}
