// Package comment は動画とレビューへのコメントのドメインロジックを提供する。
package comment

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/bourbonbuddy/internal/model"
	"github.com/hitoshi/bourbonbuddy/internal/repository"
	"github.com/hitoshi/bourbonbuddy/internal/security"
)

// MaxContentLength はコメント本文の最大文字数。
const MaxContentLength = 2000

// VideoFinder はコメント対象動画の参照に使うインターフェース。
type VideoFinder interface {
	FindByID(ctx context.Context, id string) (*model.Video, error)
}

// Service はコメントのサービス層。
type Service struct {
	repo      repository.CommentRepository
	videos    VideoFinder
	sanitizer security.ContentSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.CommentRepository, videos VideoFinder, sanitizer security.ContentSanitizerService) *Service {
	return &Service{repo: repo, videos: videos, sanitizer: sanitizer}
}

// ListForVideo は動画のコメントを古い順に返す。
// viewerIDから参照できない動画はVIDEO_NOT_FOUNDとして扱う。
func (s *Service) ListForVideo(ctx context.Context, viewerID, videoID string) ([]*model.Comment, error) {
	if err := s.ensureVideo(ctx, viewerID, videoID); err != nil {
		return nil, err
	}
	comments, err := s.repo.ListByVideo(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	return nonNil(comments), nil
}

// ListForReview はレビューのコメントを古い順に返す。
func (s *Service) ListForReview(ctx context.Context, reviewID string) ([]*model.Comment, error) {
	if _, err := uuid.Parse(reviewID); err != nil {
		return nil, model.NewValidationError("review_id の形式が不正です")
	}
	comments, err := s.repo.ListByReview(ctx, reviewID)
	if err != nil {
		return nil, fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	return nonNil(comments), nil
}

// Create はコメントを投稿する。本文はタグを除去してから長さを検証する。
func (s *Service) Create(ctx context.Context, userID string, target model.CommentTarget, content string) (*model.Comment, error) {
	if s.sanitizer != nil {
		content = s.sanitizer.Sanitize(content)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, model.NewValidationError("content は必須です")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, model.NewValidationError(fmt.Sprintf("content は%d文字以内で入力してください", MaxContentLength))
	}

	now := time.Now().UTC()
	comment := &model.Comment{
		ID:        uuid.New().String(),
		UserID:    userID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	switch {
	case target.VideoID != "":
		if err := s.ensureVideo(ctx, userID, target.VideoID); err != nil {
			return nil, err
		}
		comment.VideoID = &target.VideoID
	case target.ReviewID != "":
		if _, err := uuid.Parse(target.ReviewID); err != nil {
			return nil, model.NewValidationError("review_id の形式が不正です")
		}
		comment.ReviewID = &target.ReviewID
	default:
		return nil, model.NewValidationError("コメント先が指定されていません")
	}

	if err := s.repo.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("コメントの投稿に失敗しました: %w", err)
	}
	return comment, nil
}

// Delete はコメントを削除する。投稿者本人以外はFORBIDDENを返す。
func (s *Service) Delete(ctx context.Context, userID, commentID string) error {
	if _, err := uuid.Parse(commentID); err != nil {
		return model.NewCommentNotFoundError(commentID)
	}
	comment, err := s.repo.FindByID(ctx, commentID)
	if err != nil {
		return fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	if comment == nil {
		return model.NewCommentNotFoundError(commentID)
	}
	if comment.UserID != userID {
		return model.NewForbiddenError("他のユーザーのコメントは削除できません")
	}

	if err := s.repo.Delete(ctx, commentID); err != nil {
		return fmt.Errorf("コメントの削除に失敗しました: %w", err)
	}
	return nil
}

// ensureVideo は動画がviewerIDから参照できることを確認する。
// 非公開や処理中の動画は所有者以外には存在しないものとして扱う。
func (s *Service) ensureVideo(ctx context.Context, viewerID, videoID string) error {
	if _, err := uuid.Parse(videoID); err != nil {
		return model.NewVideoNotFoundError(videoID)
	}
	video, err := s.videos.FindByID(ctx, videoID)
	if err != nil {
		return fmt.Errorf("動画の取得に失敗しました: %w", err)
	}
	if video == nil || !video.VisibleTo(viewerID) {
		return model.NewVideoNotFoundError(videoID)
	}
	return nil
}

func nonNil(comments []*model.Comment) []*model.Comment {
	if comments == nil {
		return []*model.Comment{}
	}
	return comments
}
