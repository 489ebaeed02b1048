// Package news はウイスキー関連ニュースのRSS/Atomフィードの取得と配信を提供する。
// スケジューラ、フェッチャー、バックオフ戦略、一覧取得サービスを含む。
package news

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/bourbonbuddy/internal/model"
	"github.com/hitoshi/bourbonbuddy/internal/repository"
)

// SourceFetcher は個別ソースのフェッチの実行インターフェース。
type SourceFetcher interface {
	Fetch(ctx context.Context, source *model.NewsSource) error
}

// Scheduler はフェッチ対象ソースの選択と並列制御を行う。
// semaphoreパターンで最大並列数を制御しながらフェッチを実行する。
type Scheduler struct {
	repo           repository.NewsRepository
	fetcher        SourceFetcher
	logger         *slog.Logger
	maxConcurrency int
	now            func() time.Time
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewScheduler(repo repository.NewsRepository, fetcher SourceFetcher, logger *slog.Logger, maxConcurrency int) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Scheduler{
		repo:           repo,
		fetcher:        fetcher,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		now:            time.Now,
	}
}

// RegisterSources は設定されたフィードURLをソースとして登録する。
// 既に登録済みのURLはそのまま残る。
func (s *Scheduler) RegisterSources(ctx context.Context, feedURLs []string) error {
	for _, u := range feedURLs {
		source, err := s.repo.UpsertSource(ctx, u)
		if err != nil {
			return fmt.Errorf("ニュースソースの登録に失敗しました: %w", err)
		}
		s.logger.Debug("ニュースソースを登録しました",
			slog.String("source_id", source.ID),
			slog.String("feed_url", source.FeedURL),
		)
	}
	return nil
}

// RunOnce はフェッチ対象ソースを1回取得し、並列でフェッチを実行する。
// 個別ソースの失敗はログに記録し、サイクル全体は継続する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	sources, err := s.repo.ListDueSources(ctx, s.now())
	if err != nil {
		return err
	}

	if len(sources) == 0 {
		s.logger.Info("フェッチ対象のニュースソースはありません")
		return nil
	}

	s.logger.Info("ニュースのフェッチサイクルを開始します",
		slog.Int("source_count", len(sources)),
	)

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, source := range sources {
		wg.Add(1)
		sem <- struct{}{}

		go func(src *model.NewsSource) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.fetcher.Fetch(ctx, src); err != nil {
				s.logger.Error("ニュースソースのフェッチに失敗しました",
					slog.String("source_id", src.ID),
					slog.String("feed_url", src.FeedURL),
					slog.String("error", err.Error()),
				)
			}
		}(source)
	}

	wg.Wait()

	s.logger.Info("ニュースのフェッチサイクルが完了しました",
		slog.Int("source_count", len(sources)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
