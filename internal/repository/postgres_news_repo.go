package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/bourbonbuddy/internal/model"
	"github.com/jmoiron/sqlx"
)

const newsSourceColumns = `id, feed_url, title, etag, last_modified, consecutive_errors,
	error_message, next_fetch_at, created_at, updated_at`

// PostgresNewsRepo はPostgreSQLを使用したニュースリポジトリ。
type PostgresNewsRepo struct {
	db *sqlx.DB
}

// NewPostgresNewsRepo はPostgresNewsRepoを生成する。
func NewPostgresNewsRepo(db *sqlx.DB) *PostgresNewsRepo {
	return &PostgresNewsRepo{db: db}
}

// UpsertSource はフィードURLでソースを登録する。既存の場合はそのまま返す。
// ON CONFLICT DO UPDATEで既存行でもRETURNINGが行を返すようにする。
func (r *PostgresNewsRepo) UpsertSource(ctx context.Context, feedURL string) (*model.NewsSource, error) {
	source := &model.NewsSource{}
	err := r.db.GetContext(ctx, source,
		`INSERT INTO news_sources (id, feed_url)
		 VALUES ($1, $2)
		 ON CONFLICT (feed_url) DO UPDATE SET feed_url = EXCLUDED.feed_url
		 RETURNING `+newsSourceColumns,
		uuid.NewString(), feedURL,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert news source: %w", err)
	}
	return source, nil
}

// ListDueSources はnext_fetch_atを過ぎたソースを古い順に返す。
func (r *PostgresNewsRepo) ListDueSources(ctx context.Context, now time.Time) ([]*model.NewsSource, error) {
	var sources []*model.NewsSource
	err := r.db.SelectContext(ctx, &sources,
		`SELECT `+newsSourceColumns+` FROM news_sources
		 WHERE next_fetch_at <= $1
		 ORDER BY next_fetch_at ASC`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due news sources: %w", err)
	}
	return sources, nil
}

// UpdateFetchState はソースのフェッチ状態を更新する。
func (r *PostgresNewsRepo) UpdateFetchState(ctx context.Context, source *model.NewsSource) error {
	_, err := r.db.NamedExecContext(ctx,
		`UPDATE news_sources SET
		    title = :title, etag = :etag, last_modified = :last_modified,
		    consecutive_errors = :consecutive_errors, error_message = :error_message,
		    next_fetch_at = :next_fetch_at, updated_at = now()
		 WHERE id = :id`,
		source,
	)
	if err != nil {
		return fmt.Errorf("failed to update news source fetch state: %w", err)
	}
	return nil
}

// UpsertItem は(source_id, guid)をキーに記事をUPSERTする。
// 既存記事はタイトル、リンク、要約、公開日時を上書きする。
func (r *PostgresNewsRepo) UpsertItem(ctx context.Context, item *model.NewsItem) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO news_items (id, source_id, guid, title, link, summary, published_at, created_at)
		 VALUES (:id, :source_id, :guid, :title, :link, :summary, :published_at, :created_at)
		 ON CONFLICT (source_id, guid) DO UPDATE SET
		    title = EXCLUDED.title,
		    link = EXCLUDED.link,
		    summary = EXCLUDED.summary,
		    published_at = EXCLUDED.published_at`,
		item,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert news item: %w", err)
	}
	return nil
}

// ListLatest は全ソースの最新記事をソース名付きで返す。
func (r *PostgresNewsRepo) ListLatest(ctx context.Context, limit int) ([]*model.NewsItem, error) {
	var items []*model.NewsItem
	err := r.db.SelectContext(ctx, &items,
		`SELECT i.id, i.source_id, s.title AS source_title, i.guid, i.title, i.link,
		        i.summary, i.published_at, i.created_at
		 FROM news_items i
		 INNER JOIN news_sources s ON s.id = i.source_id
		 ORDER BY COALESCE(i.published_at, i.created_at) DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest news: %w", err)
	}
	return items, nil
}

// compile-time interface check
var _ NewsRepository = (*PostgresNewsRepo)(nil)
