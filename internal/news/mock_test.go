package news

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/bourbonbuddy/internal/metrics"
	"github.com/hitoshi/bourbonbuddy/internal/model"
)

// mockNewsRepo はNewsRepositoryのテスト用モック。
type mockNewsRepo struct {
	mu          sync.Mutex
	sources     []*model.NewsSource
	listErr     error
	upsertErr   error
	itemErr     map[string]error
	items       []*model.NewsItem
	states      []model.NewsSource
	latest      []*model.NewsItem
	latestLimit int
	registered  []string
}

func (m *mockNewsRepo) UpsertSource(_ context.Context, feedURL string) (*model.NewsSource, error) {
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	m.registered = append(m.registered, feedURL)
	return &model.NewsSource{ID: "src-" + feedURL, FeedURL: feedURL}, nil
}

func (m *mockNewsRepo) ListDueSources(_ context.Context, _ time.Time) ([]*model.NewsSource, error) {
	return m.sources, m.listErr
}

func (m *mockNewsRepo) UpdateFetchState(_ context.Context, source *model.NewsSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, *source)
	return nil
}

func (m *mockNewsRepo) UpsertItem(_ context.Context, item *model.NewsItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.itemErr[item.GUID]; err != nil {
		return err
	}
	m.items = append(m.items, item)
	return nil
}

func (m *mockNewsRepo) ListLatest(_ context.Context, limit int) ([]*model.NewsItem, error) {
	m.latestLimit = limit
	return m.latest, nil
}

// mockSSRFGuard はSSRFGuardServiceのテスト用モック。
type mockSSRFGuard struct {
	validateErr error
}

func (m *mockSSRFGuard) NewSafeClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockSSRFGuard) ValidateURL(_ string) error {
	return m.validateErr
}

// mockCollector はニュース関連のメトリクスを記録するモック。
type mockCollector struct {
	metrics.NopCollector
	mu       sync.Mutex
	results  []string
	upserted int
}

func (m *mockCollector) RecordNewsFetch(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
}

func (m *mockCollector) RecordNewsItemsUpserted(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserted += n
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
