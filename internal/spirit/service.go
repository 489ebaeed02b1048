// Package spirit はウイスキーコレクションのドメインロジックを提供する。
package spirit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/bourbonbuddy/internal/model"
	"github.com/hitoshi/bourbonbuddy/internal/repository"
	"github.com/hitoshi/bourbonbuddy/internal/security"
	"github.com/hitoshi/bourbonbuddy/internal/storage"
)

// 一覧取得件数
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ImageStore はボトル画像の保存先インターフェース。
type ImageStore interface {
	PresignPut(ctx context.Context, key, contentType string) (string, error)
	Put(ctx context.Context, key, contentType string, body []byte) error
}

// ImageFetcher は外部URLから画像を取得するインターフェース。
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string, maxBytes int64) (*security.FetchedResource, error)
}

// ListResult はコレクション一覧の1ページ分の結果。
type ListResult struct {
	Spirits    []*model.Spirit
	NextCursor string // 次ページがない場合は空
}

// ImageUpload は画像アップロード用の署名付きURLと保存後の公開パス。
type ImageUpload struct {
	UploadURL string
	ImageURL  string
	Key       string
	ExpiresAt time.Time
}

// Service はコレクション管理のサービス層。
type Service struct {
	repo         repository.SpiritRepository
	store        ImageStore
	fetcher      ImageFetcher
	sanitizer    security.ContentSanitizerService
	maxImageSize int64
}

// NewService はServiceの新しいインスタンスを生成する。
// storeがnilの場合、画像関連の操作はNOT_CONFIGUREDを返す。
func NewService(
	repo repository.SpiritRepository,
	store ImageStore,
	fetcher ImageFetcher,
	sanitizer security.ContentSanitizerService,
	maxImageSize int64,
) *Service {
	return &Service{
		repo:         repo,
		store:        store,
		fetcher:      fetcher,
		sanitizer:    sanitizer,
		maxImageSize: maxImageSize,
	}
}

// List は所有者のコレクションを新しい順に返す。
// Limitは1〜MaxLimitに丸める。
func (s *Service) List(ctx context.Context, ownerID string, filter model.SpiritFilter) (*ListResult, error) {
	limit := clampLimit(filter.Limit)
	filter.Limit = limit + 1

	spirits, err := s.repo.List(ctx, ownerID, filter)
	if err != nil {
		return nil, fmt.Errorf("コレクションの取得に失敗しました: %w", err)
	}

	result := &ListResult{Spirits: spirits}
	if len(spirits) > limit {
		result.Spirits = spirits[:limit]
		result.NextCursor = FormatCursor(result.Spirits[limit-1].CreatedAt)
	}
	if result.Spirits == nil {
		result.Spirits = []*model.Spirit{}
	}
	return result, nil
}

// Get は所有者のボトルを1件返す。他人のボトルは存在しないものとして扱う。
func (s *Service) Get(ctx context.Context, ownerID, id string) (*model.Spirit, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewSpiritNotFoundError(id)
	}
	spirit, err := s.repo.FindByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ボトルの取得に失敗しました: %w", err)
	}
	if spirit == nil {
		return nil, model.NewSpiritNotFoundError(id)
	}
	return spirit, nil
}

// Create はボトルを登録する。name と brand は必須。
func (s *Service) Create(ctx context.Context, ownerID string, input model.SpiritPatch) (*model.Spirit, error) {
	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return nil, model.NewValidationError("name は必須です")
	}
	if input.Brand == nil || strings.TrimSpace(*input.Brand) == "" {
		return nil, model.NewValidationError("brand は必須です")
	}

	now := time.Now().UTC()
	spirit := &model.Spirit{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	input.Apply(spirit)
	s.normalize(spirit)

	if err := s.repo.Create(ctx, spirit); err != nil {
		return nil, fmt.Errorf("ボトルの登録に失敗しました: %w", err)
	}
	return spirit, nil
}

// Update はボトルを部分更新する。指定されたフィールドのみ変更する。
func (s *Service) Update(ctx context.Context, ownerID, id string, patch model.SpiritPatch) (*model.Spirit, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, model.NewValidationError("name は空にできません")
	}
	if patch.Brand != nil && strings.TrimSpace(*patch.Brand) == "" {
		return nil, model.NewValidationError("brand は空にできません")
	}

	spirit, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	patch.Apply(spirit)
	s.normalize(spirit)
	spirit.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, spirit); err != nil {
		return nil, fmt.Errorf("ボトルの更新に失敗しました: %w", err)
	}
	return spirit, nil
}

// Delete は所有者のボトルを削除する。
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.NewSpiritNotFoundError(id)
	}
	deleted, err := s.repo.Delete(ctx, id, ownerID)
	if err != nil {
		return fmt.Errorf("ボトルの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewSpiritNotFoundError(id)
	}
	return nil
}

// RequestImageUpload はボトル画像をアップロードする署名付きPUT URLを発行し、
// アップロード後の公開パスをimage_urlに設定する。
func (s *Service) RequestImageUpload(ctx context.Context, ownerID, id, contentType string) (*ImageUpload, error) {
	if s.store == nil {
		return nil, model.NewNotConfiguredError("image storage")
	}
	ext, ok := storage.ImageExtension(contentType)
	if !ok {
		return nil, model.NewUnsupportedMediaTypeError(contentType)
	}

	spirit, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	key := imageKey(ownerID, id, ext)
	uploadURL, err := s.store.PresignPut(ctx, key, contentType)
	if err != nil {
		return nil, fmt.Errorf("署名付きURLの発行に失敗しました: %w", err)
	}

	if err := s.setImage(ctx, spirit, key); err != nil {
		return nil, err
	}

	return &ImageUpload{
		UploadURL: uploadURL,
		ImageURL:  spirit.ImageURL,
		Key:       key,
		ExpiresAt: time.Now().Add(storage.PresignExpiry),
	}, nil
}

// ImportImage は外部URLの画像を取得してバケットに保存し、image_urlに設定する。
func (s *Service) ImportImage(ctx context.Context, ownerID, id, rawURL string) (*model.Spirit, error) {
	if s.store == nil || s.fetcher == nil {
		return nil, model.NewNotConfiguredError("image import")
	}

	spirit, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	res, err := s.fetcher.Fetch(ctx, rawURL, s.maxImageSize)
	if err != nil {
		switch {
		case errors.Is(err, security.ErrBlockedURL):
			slog.Warn("画像インポートのURLがブロックされました",
				slog.String("spirit_id", id),
				slog.String("error", err.Error()),
			)
			return nil, model.NewSSRFBlockedError()
		case errors.Is(err, security.ErrResponseTooLarge):
			return nil, model.NewPayloadTooLargeError(s.maxImageSize)
		case errors.Is(err, context.DeadlineExceeded):
			return nil, model.NewUpstreamTimeoutError("image")
		default:
			slog.Warn("画像の取得に失敗しました",
				slog.String("spirit_id", id),
				slog.String("error", err.Error()),
			)
			return nil, model.NewUpstreamFailedError("image")
		}
	}

	ext, ok := storage.ImageExtension(res.ContentType)
	if !ok {
		return nil, model.NewUnsupportedMediaTypeError(res.ContentType)
	}

	key := imageKey(ownerID, id, ext)
	if err := s.store.Put(ctx, key, res.ContentType, res.Body); err != nil {
		return nil, fmt.Errorf("画像の保存に失敗しました: %w", err)
	}

	if err := s.setImage(ctx, spirit, key); err != nil {
		return nil, err
	}
	return spirit, nil
}

func (s *Service) setImage(ctx context.Context, spirit *model.Spirit, key string) error {
	spirit.ImageURL = storage.PublicPath(key)
	spirit.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, spirit); err != nil {
		return fmt.Errorf("画像URLの更新に失敗しました: %w", err)
	}
	return nil
}

// normalize は文字列項目の前後空白を除去し、テイスティングノートをサニタイズする。
func (s *Service) normalize(spirit *model.Spirit) {
	spirit.Name = strings.TrimSpace(spirit.Name)
	spirit.Brand = strings.TrimSpace(spirit.Brand)
	spirit.Type = strings.TrimSpace(spirit.Type)
	spirit.Category = strings.TrimSpace(spirit.Category)

	if s.sanitizer == nil {
		return
	}
	spirit.Notes = s.sanitizer.Sanitize(spirit.Notes)
	spirit.Nose = s.sanitizer.Sanitize(spirit.Nose)
	spirit.Palate = s.sanitizer.Sanitize(spirit.Palate)
	spirit.Finish = s.sanitizer.Sanitize(spirit.Finish)
}

func imageKey(ownerID, spiritID, ext string) string {
	return fmt.Sprintf("spirits/%s/%s/%s.%s", ownerID, spiritID, uuid.New().String(), ext)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// FormatCursor はcreated_atをページネーションカーソルに変換する。
func FormatCursor(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseCursor はカーソル文字列を解析する。空文字列はゼロ値を返す。
func ParseCursor(cursor string) (time.Time, error) {
	if cursor == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, cursor)
	if err != nil {
		return time.Time{}, model.NewInvalidCursorError(cursor)
	}
	return t, nil
}
