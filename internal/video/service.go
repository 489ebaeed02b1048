package video

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/bourbonbuddy/internal/model"
	"github.com/hitoshi/bourbonbuddy/internal/repository"
)

// DefaultPublicLimit は公開動画一覧の既定件数。
const DefaultPublicLimit = 50

// Uploader はアップロードURLの発行とアセット削除を行うインターフェース。
type Uploader interface {
	CreateDirectUpload(ctx context.Context, corsOrigin, playbackPolicy string) (*Upload, error)
	DeleteAsset(ctx context.Context, assetID string) error
}

// CreateResult は動画作成の結果。
type CreateResult struct {
	Video     *model.Video
	UploadURL string
}

// Service は動画のサービス層。
type Service struct {
	repo       repository.VideoRepository
	uploader   Uploader
	signer     *PlaybackSigner
	corsOrigin string
	now        func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// uploaderがnilの場合、アップロードを伴う操作はNOT_CONFIGUREDを返す。
// signerがnilの場合は署名なしの公開再生URLを返す。
func NewService(repo repository.VideoRepository, uploader Uploader, signer *PlaybackSigner, corsOrigin string) *Service {
	return &Service{
		repo:       repo,
		uploader:   uploader,
		signer:     signer,
		corsOrigin: corsOrigin,
		now:        time.Now,
	}
}

func (s *Service) playbackPolicy() string {
	if s.signer != nil {
		return PlaybackPolicySigned
	}
	return PlaybackPolicyPublic
}

// Create はアップロードURLを発行し、uploading状態の動画行を作成する。
// 再生IDは照合で確定するまで仮IDを設定する。
func (s *Service) Create(ctx context.Context, userID, title, description string, publiclyListed bool) (*CreateResult, error) {
	if s.uploader == nil {
		return nil, model.NewNotConfiguredError("video upload")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, model.NewValidationError("title は必須です")
	}

	upload, err := s.uploader.CreateDirectUpload(ctx, s.corsOrigin, s.playbackPolicy())
	if err != nil {
		slog.Error("アップロードURLの発行に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUpstreamFailedError("video")
	}

	now := s.now().UTC()
	v := &model.Video{
		ID:             uuid.New().String(),
		UserID:         userID,
		Title:          title,
		Description:    strings.TrimSpace(description),
		Status:         model.VideoStatusUploading,
		MuxUploadID:    upload.ID,
		MuxPlaybackID:  placeholderID(),
		PubliclyListed: publiclyListed,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("動画の作成に失敗しました: %w", err)
	}

	return &CreateResult{Video: v, UploadURL: upload.URL}, nil
}

// ListPublic は公開中の再生可能な動画を返す。
func (s *Service) ListPublic(ctx context.Context, limit int) ([]*model.Video, error) {
	if limit <= 0 || limit > DefaultPublicLimit {
		limit = DefaultPublicLimit
	}
	videos, err := s.repo.ListPublic(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("動画一覧の取得に失敗しました: %w", err)
	}
	return nonNil(videos), nil
}

// ListMine はユーザー自身の動画をすべての状態で返す。
func (s *Service) ListMine(ctx context.Context, userID string) ([]*model.Video, error) {
	videos, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("動画一覧の取得に失敗しました: %w", err)
	}
	return nonNil(videos), nil
}

// Get は動画を返す。所有者以外には公開中の再生可能な動画のみ見せる。
// viewerIDは未ログインの場合空文字列。
func (s *Service) Get(ctx context.Context, viewerID, id string) (*model.Video, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewVideoNotFoundError(id)
	}
	v, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("動画の取得に失敗しました: %w", err)
	}
	if v == nil || !v.VisibleTo(viewerID) {
		return nil, model.NewVideoNotFoundError(id)
	}
	return v, nil
}

// Update はタイトル、説明、公開設定を更新する。所有者のみ可能。
func (s *Service) Update(ctx context.Context, userID, id string, patch model.VideoPatch) (*model.Video, error) {
	v, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, model.NewValidationError("title は空にできません")
		}
		v.Title = title
	}
	if patch.Description != nil {
		v.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.PubliclyListed != nil {
		v.PubliclyListed = *patch.PubliclyListed
	}
	v.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdateMetadata(ctx, v); err != nil {
		return nil, fmt.Errorf("動画の更新に失敗しました: %w", err)
	}
	return v, nil
}

// Delete は動画を削除する。動画API側のアセット削除はベストエフォートで行う。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	v, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}

	if v.MuxAssetID != "" && s.uploader != nil {
		if err := s.uploader.DeleteAsset(ctx, v.MuxAssetID); err != nil {
			slog.Warn("アセットの削除に失敗しました",
				slog.String("video_id", id),
				slog.String("asset_id", v.MuxAssetID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("動画の削除に失敗しました: %w", err)
	}
	return nil
}

// Playback は再生情報を返し、再生回数を加算する。
// ready以外の動画はVIDEO_NOT_READYを返す。
func (s *Service) Playback(ctx context.Context, viewerID, id string) (*Playback, error) {
	v, err := s.Get(ctx, viewerID, id)
	if err != nil {
		return nil, err
	}
	if v.Status != model.VideoStatusReady || v.HasPlaceholderPlaybackID() {
		return nil, model.NewVideoNotReadyError(v.Status)
	}

	p, err := BuildPlayback(s.signer, v.MuxPlaybackID, s.now())
	if err != nil {
		return nil, fmt.Errorf("再生情報の生成に失敗しました: %w", err)
	}

	if err := s.repo.IncrementViews(ctx, id); err != nil {
		slog.Warn("再生回数の更新に失敗しました",
			slog.String("video_id", id),
			slog.String("error", err.Error()),
		)
	}
	return p, nil
}

// Reupload はneeds_uploadまたはerrorの動画に新しいアップロードURLを発行し、uploadingに戻す。
func (s *Service) Reupload(ctx context.Context, userID, id string) (*CreateResult, error) {
	if s.uploader == nil {
		return nil, model.NewNotConfiguredError("video upload")
	}
	v, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if v.Status == model.VideoStatusUploading || !CanTransition(v.Status, model.VideoStatusUploading) {
		return nil, model.NewInvalidTransitionError(v.Status, model.VideoStatusUploading)
	}

	upload, err := s.uploader.CreateDirectUpload(ctx, s.corsOrigin, s.playbackPolicy())
	if err != nil {
		slog.Error("アップロードURLの再発行に失敗しました",
			slog.String("video_id", id),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUpstreamFailedError("video")
	}

	placeholder := placeholderID()
	if err := s.repo.ResetUpload(ctx, id, upload.ID, placeholder); err != nil {
		return nil, fmt.Errorf("アップロード状態の更新に失敗しました: %w", err)
	}

	v.Status = model.VideoStatusUploading
	v.MuxUploadID = upload.ID
	v.MuxAssetID = ""
	v.MuxPlaybackID = placeholder
	v.Duration = nil
	v.AspectRatio = ""
	v.UpdatedAt = s.now().UTC()
	return &CreateResult{Video: v, UploadURL: upload.URL}, nil
}

// owned は所有者の動画を返す。他人の動画は公開中ならFORBIDDEN、非公開ならNOT_FOUNDとする。
func (s *Service) owned(ctx context.Context, userID, id string) (*model.Video, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewVideoNotFoundError(id)
	}
	v, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("動画の取得に失敗しました: %w", err)
	}
	if v == nil || !v.VisibleTo(userID) {
		return nil, model.NewVideoNotFoundError(id)
	}
	if v.UserID != userID {
		return nil, model.NewForbiddenError("他のユーザーの動画は変更できません")
	}
	return v, nil
}

func placeholderID() string {
	return model.PlaceholderPlaybackPrefix + uuid.New().String()
}

func nonNil(videos []*model.Video) []*model.Video {
	if videos == nil {
		return []*model.Video{}
	}
	return videos
}
