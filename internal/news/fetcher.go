package news

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/bourbonbuddy/internal/metrics"
	"github.com/hitoshi/bourbonbuddy/internal/model"
	"github.com/hitoshi/bourbonbuddy/internal/repository"
	"github.com/hitoshi/bourbonbuddy/internal/security"
)

// Fetcher は個別ソースのHTTPフェッチとパースを行う。
// ETag/Last-Modifiedを使用した条件付きGET、SSRF検証、
// gofeedによるパース、要約のサニタイズ、記事のUPSERTを実行する。
type Fetcher struct {
	repo        repository.NewsRepository
	ssrfGuard   security.SSRFGuardService
	summary     security.ContentSanitizerService
	text        security.ContentSanitizerService
	collector   metrics.MetricsCollector
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
	interval    time.Duration
	now         func() time.Time
}

// FetcherConfig はFetcherの動作設定。
type FetcherConfig struct {
	Timeout     time.Duration
	MaxBodySize int64
	// Interval は成功後に次回フェッチまで空ける時間。
	Interval time.Duration
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(
	repo repository.NewsRepository,
	ssrfGuard security.SSRFGuardService,
	summary security.ContentSanitizerService,
	text security.ContentSanitizerService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	cfg FetcherConfig,
) *Fetcher {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 5 << 20
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	return &Fetcher{
		repo:        repo,
		ssrfGuard:   ssrfGuard,
		summary:     summary,
		text:        text,
		collector:   collector,
		logger:      logger,
		timeout:     cfg.Timeout,
		maxBodySize: cfg.MaxBodySize,
		interval:    cfg.Interval,
		now:         time.Now,
	}
}

// Fetch はソースをフェッチし、結果に応じてソースの状態を更新する。
// 記事の保存に失敗してもソースの状態更新は行う。
func (f *Fetcher) Fetch(ctx context.Context, source *model.NewsSource) error {
	start := time.Now()

	if err := f.ssrfGuard.ValidateURL(source.FeedURL); err != nil {
		f.logger.Error("SSRF検証に失敗しました",
			slog.String("source_id", source.ID),
			slog.String("feed_url", source.FeedURL),
			slog.String("error", err.Error()),
		)
		ApplyGone(source, fmt.Sprintf("SSRF検証失敗: %s", err.Error()), f.now())
		f.finish(ctx, source, metrics.NewsFetchFailure)
		return fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	client := f.ssrfGuard.NewSafeClient(f.timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.FeedURL, nil)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", "BourbonBuddy/1.0 News Fetcher")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	// 条件付きGET
	if source.ETag != "" {
		req.Header.Set("If-None-Match", source.ETag)
	}
	if source.LastModified != "" {
		req.Header.Set("If-Modified-Since", source.LastModified)
	}

	resp, err := client.Do(req)
	if err != nil {
		f.logger.Error("HTTPリクエストに失敗しました",
			slog.String("source_id", source.ID),
			slog.String("feed_url", source.FeedURL),
			slog.String("error", err.Error()),
		)
		ApplyBackoff(source, fmt.Sprintf("HTTPリクエスト失敗: %s", err.Error()), f.now())
		f.finish(ctx, source, metrics.NewsFetchFailure)
		return fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case FetchResultNotModified:
		f.logger.Info("ニュースフィードは未変更です（304）",
			slog.String("source_id", source.ID),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
		ApplySuccess(source, f.interval, f.now())
		return f.finish(ctx, source, metrics.NewsFetchNotModified)

	case FetchResultGone:
		f.logger.Warn("ニュースフィードを取得できません",
			slog.String("source_id", source.ID),
			slog.String("feed_url", source.FeedURL),
			slog.Int("http_status", resp.StatusCode),
		)
		ApplyGone(source, fmt.Sprintf("HTTPステータス %d", resp.StatusCode), f.now())
		return f.finish(ctx, source, metrics.NewsFetchFailure)

	case FetchResultOK:
	default:
		f.logger.Warn("ニュースフィードのフェッチにバックオフを適用します",
			slog.String("source_id", source.ID),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", source.ConsecutiveErrors+1),
		)
		ApplyBackoff(source, fmt.Sprintf("HTTPステータス %d", resp.StatusCode), f.now())
		return f.finish(ctx, source, metrics.NewsFetchFailure)
	}

	body, err := security.ReadLimited(resp.Body, f.maxBodySize)
	if err != nil {
		reason := fmt.Sprintf("レスポンス読み取り失敗: %s", err.Error())
		if errors.Is(err, security.ErrResponseTooLarge) {
			reason = fmt.Sprintf("レスポンスがサイズ上限（%dバイト）を超えています", f.maxBodySize)
		}
		f.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("source_id", source.ID),
			slog.String("error", err.Error()),
		)
		ApplyBackoff(source, reason, f.now())
		return f.finish(ctx, source, metrics.NewsFetchFailure)
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		f.logger.Error("ニュースフィードのパースに失敗しました",
			slog.String("source_id", source.ID),
			slog.String("feed_url", source.FeedURL),
			slog.String("error", err.Error()),
		)
		ApplyBackoff(source, fmt.Sprintf("パース失敗: %s", err.Error()), f.now())
		return f.finish(ctx, source, metrics.NewsFetchFailure)
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		source.ETag = etag
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		source.LastModified = lastMod
	}
	if title := f.text.Sanitize(parsed.Title); title != "" {
		source.Title = title
	}

	items := f.convertItems(source.ID, parsed.Items)
	upserted := 0
	for _, item := range items {
		if err := f.repo.UpsertItem(ctx, item); err != nil {
			f.logger.Error("ニュース記事のUPSERTに失敗しました",
				slog.String("source_id", source.ID),
				slog.String("guid", item.GUID),
				slog.String("error", err.Error()),
			)
			continue
		}
		upserted++
	}
	f.collector.RecordNewsItemsUpserted(upserted)

	ApplySuccess(source, f.interval, f.now())
	if err := f.finish(ctx, source, metrics.NewsFetchSuccess); err != nil {
		return err
	}

	f.logger.Info("ニュースフィードのフェッチが完了しました",
		slog.String("source_id", source.ID),
		slog.String("feed_url", source.FeedURL),
		slog.Int("items_upserted", upserted),
		slog.Int("items_total", len(items)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}

// finish はフェッチ結果を記録し、ソースの状態を保存する。
func (f *Fetcher) finish(ctx context.Context, source *model.NewsSource, result string) error {
	f.collector.RecordNewsFetch(result)
	if err := f.repo.UpdateFetchState(ctx, source); err != nil {
		f.logger.Error("ニュースソースの状態更新に失敗しました",
			slog.String("source_id", source.ID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// convertItems はgofeedの記事をNewsItemに変換する。
// GUIDがない記事はリンクをGUIDとして使い、どちらもない記事は捨てる。
func (f *Fetcher) convertItems(sourceID string, items []*gofeed.Item) []*model.NewsItem {
	now := f.now().UTC()
	out := make([]*model.NewsItem, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		link := strings.TrimSpace(item.Link)
		guid := strings.TrimSpace(item.GUID)
		if link == "" && (strings.HasPrefix(guid, "http://") || strings.HasPrefix(guid, "https://")) {
			link = guid
		}
		if guid == "" {
			guid = link
		}
		if guid == "" {
			continue
		}

		summary := item.Description
		if summary == "" {
			summary = item.Content
		}

		n := &model.NewsItem{
			ID:        uuid.NewString(),
			SourceID:  sourceID,
			GUID:      guid,
			Title:     f.text.Sanitize(item.Title),
			Link:      link,
			Summary:   f.summary.Sanitize(summary),
			CreatedAt: now,
		}
		if item.PublishedParsed != nil {
			t := item.PublishedParsed.UTC()
			n.PublishedAt = &t
		} else if item.UpdatedParsed != nil {
			t := item.UpdatedParsed.UTC()
			n.PublishedAt = &t
		}

		out = append(out, n)
	}

	return out
}
