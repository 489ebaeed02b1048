// Package cleanup は期限切れデータの自動削除ジョブを提供する。
// 有効期限を過ぎたセッションと、保持期間（デフォルト90日）を超過した
// ニュース記事を日次バッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sqlx.DB を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const (
	deleteExpiredSessionsQuery = `DELETE FROM sessions WHERE expires_at < now()`
	deleteOldNewsItemsQuery    = `DELETE FROM news_items WHERE created_at < now() - $1::interval`
)

// CleanupJob は期限切れデータの削除ジョブ。
// 冪等で、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	db                Executor
	logger            *slog.Logger
	NewsRetentionDays int // ニュース記事の保持日数（デフォルト: 90）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:                db,
		logger:            logger,
		NewsRetentionDays: 90,
	}
}

// Run は期限切れセッションを削除し、続けて古いニュース記事を削除する。
// セッションの削除に失敗した場合はニュース記事の削除を行わない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	sessions, err := j.exec(ctx, "sessions", deleteExpiredSessionsQuery)
	if err != nil {
		return err
	}

	interval := fmt.Sprintf("%d days", j.NewsRetentionDays)
	newsItems, err := j.exec(ctx, "news_items", deleteOldNewsItemsQuery, interval)
	if err != nil {
		return err
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_sessions", sessions),
		slog.Int64("deleted_news_items", newsItems),
		slog.Int("news_retention_days", j.NewsRetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

func (j *CleanupJob) exec(ctx context.Context, table, query string, args ...interface{}) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		j.logger.Error("クリーンアップジョブの実行に失敗しました",
			slog.String("table", table),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("%sのクリーンアップの実行に失敗: %w", table, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("table", table),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return deleted, nil
}
