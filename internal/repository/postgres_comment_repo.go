package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/bourbonbuddy/internal/model"
	"github.com/jmoiron/sqlx"
)

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sqlx.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sqlx.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

const commentSelect = `SELECT c.id, c.user_id, c.video_id, c.review_id, c.content,
	        u.name AS author_name, c.created_at, c.updated_at
	 FROM comments c
	 INNER JOIN users u ON u.id = c.user_id`

// ListByVideo は動画のコメントを古い順に投稿者名付きで返す。
func (r *PostgresCommentRepo) ListByVideo(ctx context.Context, videoID string) ([]*model.Comment, error) {
	var comments []*model.Comment
	err := r.db.SelectContext(ctx, &comments,
		commentSelect+` WHERE c.video_id = $1 ORDER BY c.created_at ASC`,
		videoID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list video comments: %w", err)
	}
	return comments, nil
}

// ListByReview はレビューのコメントを古い順に投稿者名付きで返す。
func (r *PostgresCommentRepo) ListByReview(ctx context.Context, reviewID string) ([]*model.Comment, error) {
	var comments []*model.Comment
	err := r.db.SelectContext(ctx, &comments,
		commentSelect+` WHERE c.review_id = $1 ORDER BY c.created_at ASC`,
		reviewID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list review comments: %w", err)
	}
	return comments, nil
}

// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
func (r *PostgresCommentRepo) FindByID(ctx context.Context, id string) (*model.Comment, error) {
	comment := &model.Comment{}
	err := r.db.GetContext(ctx, comment, commentSelect+` WHERE c.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find comment: %w", err)
	}
	return comment, nil
}

// Create はコメントを作成する。
func (r *PostgresCommentRepo) Create(ctx context.Context, comment *model.Comment) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO comments (id, user_id, video_id, review_id, content, created_at, updated_at)
		 VALUES (:id, :user_id, :video_id, :review_id, :content, :created_at, :updated_at)`,
		comment,
	)
	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

// Delete は指定IDのコメントを削除する。
func (r *PostgresCommentRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CommentRepository = (*PostgresCommentRepo)(nil)
