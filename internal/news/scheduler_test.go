package news

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/bourbonbuddy/internal/model"
)

type mockSourceFetcher struct {
	mu      sync.Mutex
	fetched []string
	errFor  map[string]error
	active  atomic.Int32
	peak    atomic.Int32
	delay   time.Duration
}

func (m *mockSourceFetcher) Fetch(_ context.Context, source *model.NewsSource) error {
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(m.delay)

	m.mu.Lock()
	m.fetched = append(m.fetched, source.ID)
	m.mu.Unlock()
	return m.errFor[source.ID]
}

func sources(n int) []*model.NewsSource {
	out := make([]*model.NewsSource, n)
	for i := range out {
		out[i] = &model.NewsSource{ID: string(rune('a' + i)), FeedURL: "https://example.com/feed"}
	}
	return out
}

func TestScheduler_RunOnce_FetchesAllDueSources(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockNewsRepo{sources: sources(6)}
	fetcher := &mockSourceFetcher{errFor: map[string]error{"b": errors.New("boom")}, delay: 10 * time.Millisecond}
	s := NewScheduler(repo, fetcher, newTestLogger(&buf), 2)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fetcher.fetched) != 6 {
		t.Errorf("fetched = %d, want 6", len(fetcher.fetched))
	}
	if peak := fetcher.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
	if !bytes.Contains(buf.Bytes(), []byte("ニュースソースのフェッチに失敗しました")) {
		t.Error("fetch failure should be logged")
	}
}

func TestScheduler_RunOnce_NoSources(t *testing.T) {
	var buf bytes.Buffer
	fetcher := &mockSourceFetcher{}
	s := NewScheduler(&mockNewsRepo{}, fetcher, newTestLogger(&buf), 0)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fetcher.fetched) != 0 {
		t.Errorf("fetched = %v, want none", fetcher.fetched)
	}
}

func TestScheduler_RunOnce_ListError(t *testing.T) {
	var buf bytes.Buffer
	s := NewScheduler(&mockNewsRepo{listErr: errors.New("db down")}, &mockSourceFetcher{}, newTestLogger(&buf), 1)

	if err := s.RunOnce(context.Background()); err == nil {
		t.Error("expected error when listing sources fails")
	}
}

func TestScheduler_RegisterSources(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockNewsRepo{}
	s := NewScheduler(repo, &mockSourceFetcher{}, newTestLogger(&buf), 1)

	urls := []string{"https://a.example.com/feed", "https://b.example.com/rss"}
	if err := s.RegisterSources(context.Background(), urls); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.registered) != 2 || repo.registered[1] != urls[1] {
		t.Errorf("registered = %v", repo.registered)
	}

	repo.upsertErr = errors.New("db down")
	if err := s.RegisterSources(context.Background(), urls); err == nil {
		t.Error("expected error when upsert fails")
	}
}
