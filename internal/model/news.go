package model

import "time"

// NewsSource はウイスキー関連ニュースのRSS/Atomフィードを表す。
type NewsSource struct {
	ID                string    `db:"id"`
	FeedURL           string    `db:"feed_url"`
	Title             string    `db:"title"`
	ETag              string    `db:"etag"`
	LastModified      string    `db:"last_modified"`
	ConsecutiveErrors int       `db:"consecutive_errors"`
	ErrorMessage      string    `db:"error_message"`
	NextFetchAt       time.Time `db:"next_fetch_at"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// NewsItem はニュースフィードから取得した記事を表す。
type NewsItem struct {
	ID          string     `db:"id"`
	SourceID    string     `db:"source_id"`
	SourceTitle string     `db:"source_title"`
	GUID        string     `db:"guid"`
	Title       string     `db:"title"`
	Link        string     `db:"link"`
	Summary     string     `db:"summary"` // サニタイズ済みHTML
	PublishedAt *time.Time `db:"published_at"`
	CreatedAt   time.Time  `db:"created_at"`
}
