package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/bourbonbuddy/internal/model"
	"github.com/jmoiron/sqlx"
)

const videoColumns = `id, user_id, title, description, status, mux_upload_id, mux_asset_id,
	mux_playback_id, duration, aspect_ratio, publicly_listed, views, created_at, updated_at`

// PostgresVideoRepo はPostgreSQLを使用した動画リポジトリ。
type PostgresVideoRepo struct {
	db *sqlx.DB
}

// NewPostgresVideoRepo はPostgresVideoRepoを生成する。
func NewPostgresVideoRepo(db *sqlx.DB) *PostgresVideoRepo {
	return &PostgresVideoRepo{db: db}
}

// Create は動画行を作成する。
func (r *PostgresVideoRepo) Create(ctx context.Context, video *model.Video) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO videos (id, user_id, title, description, status, mux_upload_id, mux_asset_id,
		                     mux_playback_id, duration, aspect_ratio, publicly_listed, views,
		                     created_at, updated_at)
		 VALUES (:id, :user_id, :title, :description, :status, :mux_upload_id, :mux_asset_id,
		         :mux_playback_id, :duration, :aspect_ratio, :publicly_listed, :views,
		         :created_at, :updated_at)`,
		video,
	)
	if err != nil {
		return fmt.Errorf("failed to create video: %w", err)
	}
	return nil
}

// FindByID は指定IDの動画を取得する。見つからない場合はnilを返す。
func (r *PostgresVideoRepo) FindByID(ctx context.Context, id string) (*model.Video, error) {
	video := &model.Video{}
	err := r.db.GetContext(ctx, video, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find video: %w", err)
	}
	return video, nil
}

// ListPublic は公開かつ再生可能な動画を新しい順に返す。
func (r *PostgresVideoRepo) ListPublic(ctx context.Context, limit int) ([]*model.Video, error) {
	var videos []*model.Video
	err := r.db.SelectContext(ctx, &videos,
		`SELECT `+videoColumns+` FROM videos
		 WHERE publicly_listed = true AND status = 'ready'
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list public videos: %w", err)
	}
	return videos, nil
}

// ListByUser はユーザーの動画を新しい順に返す。
func (r *PostgresVideoRepo) ListByUser(ctx context.Context, userID string) ([]*model.Video, error) {
	var videos []*model.Video
	err := r.db.SelectContext(ctx, &videos,
		`SELECT `+videoColumns+` FROM videos WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list user videos: %w", err)
	}
	return videos, nil
}

// UpdateMetadata はタイトル、説明、公開設定を更新する。
func (r *PostgresVideoRepo) UpdateMetadata(ctx context.Context, video *model.Video) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE videos SET title = $2, description = $3, publicly_listed = $4, updated_at = now()
		 WHERE id = $1`,
		video.ID, video.Title, video.Description, video.PubliclyListed,
	)
	if err != nil {
		return fmt.Errorf("failed to update video: %w", err)
	}
	return nil
}

// ResetUpload は新しいアップロードIDを設定し、状態をuploadingに戻す。
// 以前のアセット情報は破棄する。
func (r *PostgresVideoRepo) ResetUpload(ctx context.Context, id, uploadID, placeholderPlaybackID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE videos SET
		    status = 'uploading', mux_upload_id = $2, mux_asset_id = '',
		    mux_playback_id = $3, duration = NULL, aspect_ratio = '', updated_at = now()
		 WHERE id = $1`,
		id, uploadID, placeholderPlaybackID,
	)
	if err != nil {
		return fmt.Errorf("failed to reset video upload: %w", err)
	}
	return nil
}

// IncrementViews は再生回数を1つ増やす。updated_atは照合対象の判定に使うため変更しない。
func (r *PostgresVideoRepo) IncrementViews(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE videos SET views = views + 1 WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to increment views: %w", err)
	}
	return nil
}

// Delete は指定IDの動画を削除する。コメントはCASCADE削除される。
func (r *PostgresVideoRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM videos WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	return nil
}

// ListNeedingSync は外部サービスとの照合が必要な動画を最大limit件返す。
// 対象はuploading・processingの行のみ。終端状態の仮ID行が先頭を占有しないようにする。
func (r *PostgresVideoRepo) ListNeedingSync(ctx context.Context, limit int, staleBefore time.Time) ([]*model.Video, error) {
	var videos []*model.Video
	err := r.db.SelectContext(ctx, &videos,
		`SELECT `+videoColumns+` FROM videos
		 WHERE status IN ('uploading', 'processing')
		   AND ((status = 'processing' AND updated_at < $1)
		        OR mux_playback_id LIKE 'placeholder-%'
		        OR mux_playback_id = '')
		 ORDER BY updated_at ASC
		 LIMIT $2`,
		staleBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos needing sync: %w", err)
	}
	return videos, nil
}

// UpdateStatus は照合結果を書き戻す。
func (r *PostgresVideoRepo) UpdateStatus(ctx context.Context, id string, update model.VideoStatusUpdate) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE videos SET
		    status = $2, mux_asset_id = $3, mux_playback_id = $4,
		    duration = $5, aspect_ratio = $6, updated_at = now()
		 WHERE id = $1`,
		id, update.Status, update.MuxAssetID, update.MuxPlaybackID, update.Duration, update.AspectRatio,
	)
	if err != nil {
		return fmt.Errorf("failed to update video status: %w", err)
	}
	return nil
}

// compile-time interface check
var _ VideoRepository = (*PostgresVideoRepo)(nil)
