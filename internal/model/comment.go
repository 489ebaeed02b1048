package model

import "time"

// Comment は動画またはレビューに付与されたコメントを表す。
// VideoIDとReviewIDのどちらか一方は必ず設定される。
type Comment struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	VideoID    *string   `db:"video_id"`
	ReviewID   *string   `db:"review_id"`
	Content    string    `db:"content"`
	AuthorName string    `db:"author_name"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// CommentTarget はコメントの付与先を表す。
type CommentTarget struct {
	VideoID  string
	ReviewID string
}
