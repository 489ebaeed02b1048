// Package user はユーザープロフィールと退会処理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/bourbonbuddy/internal/auth"
	"github.com/hitoshi/bourbonbuddy/internal/model"
	"github.com/hitoshi/bourbonbuddy/internal/repository"
)

// ProfileSyncer はプロフィールを認証プロバイダーへ複製するインターフェース。
type ProfileSyncer interface {
	Sync(ctx context.Context, user *model.User) auth.SyncOutcome
}

// Service はユーザー管理のサービス層。
// プロフィール取得・更新、公開プロフィール、退会処理を提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	syncer      ProfileSyncer
}

// NewService はServiceの新しいインスタンスを生成する。
// syncerがnilの場合はプロバイダーへの複製を行わない。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	syncer ProfileSyncer,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		syncer:      syncer,
	}
}

// GetProfile はログインユーザーのプロフィールを返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdateProfile はプロフィールを部分更新する。
// 更新後、プロバイダーのuser_metadataへ一方向に複製する。
// 複製の失敗はログに記録するのみで、更新自体は成功として扱う。
func (s *Service) UpdateProfile(ctx context.Context, userID string, patch model.ProfilePatch) (*model.User, error) {
	if patch.Username != nil {
		normalized := strings.ToLower(strings.TrimSpace(*patch.Username))
		patch.Username = &normalized
	}
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		patch.Name = &trimmed
	}

	updated, err := s.userRepo.UpdateProfile(ctx, userID, patch)
	if err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			return nil, model.NewUsernameTakenError(*patch.Username)
		}
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewUserNotFoundError()
	}

	if s.syncer != nil {
		outcome := s.syncer.Sync(ctx, updated)
		slog.Debug("プロフィールの複製結果",
			slog.String("user_id", userID),
			slog.Int("profile_version", updated.ProfileVersion),
			slog.String("outcome", string(outcome)),
		)
	}

	return updated, nil
}

// GetPublicProfile はユーザー名で公開プロフィールを返す。
func (s *Service) GetPublicProfile(ctx context.Context, username string) (*model.PublicProfile, error) {
	profile, err := s.userRepo.FindPublicProfile(ctx, strings.ToLower(username))
	if err != nil {
		return nil, fmt.Errorf("公開プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return nil, model.NewUserNotFoundError()
	}
	return profile, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → user（+ CASCADE: identities, spirits, videos, comments）
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
