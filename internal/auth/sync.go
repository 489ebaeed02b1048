package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/bourbonbuddy/internal/model"
)

// SyncOutcome はプロフィール複製の結果を表す。
type SyncOutcome string

const (
	SyncPushed        SyncOutcome = "pushed"
	SyncSkippedStale  SyncOutcome = "skipped_stale"
	SyncSkippedNoLink SyncOutcome = "skipped_no_identity"
	SyncDisabled      SyncOutcome = "disabled"
	SyncFailed        SyncOutcome = "failed"
)

// IdentityLookup はユーザーに紐づくプロバイダーidentityの検索インターフェース。
type IdentityLookup interface {
	FindByUserIDAndProvider(ctx context.Context, userID, provider string) (*model.Identity, error)
}

// ProfileSyncer はusersテーブルのプロフィールをプロバイダーのuser_metadataへ一方向に複製する。
// プロバイダー側のprofile_versionがローカル以上であれば書き込まない。
type ProfileSyncer struct {
	identities IdentityLookup
	metadata   MetadataClient
	timeout    time.Duration
}

// NewProfileSyncer はProfileSyncerを生成する。metadataがnilの場合は常にSyncDisabledを返す。
func NewProfileSyncer(identities IdentityLookup, metadata MetadataClient, timeout time.Duration) *ProfileSyncer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ProfileSyncer{identities: identities, metadata: metadata, timeout: timeout}
}

// Sync はユーザーのプロフィールをプロバイダーへ複製する。
// 失敗はログに記録するのみで呼び出し元には返さない。
func (s *ProfileSyncer) Sync(ctx context.Context, user *model.User) SyncOutcome {
	if s == nil || s.metadata == nil || user == nil {
		return SyncDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	logger := slog.With(slog.String("user_id", user.ID), slog.Int("profile_version", user.ProfileVersion))

	identity, err := s.identities.FindByUserIDAndProvider(ctx, user.ID, model.ProviderSupabase)
	if err != nil {
		logger.Error("profile sync: failed to find identity", slog.String("error", err.Error()))
		return SyncFailed
	}
	if identity == nil {
		return SyncSkippedNoLink
	}

	remote, err := s.metadata.GetProfileMetadata(ctx, identity.ProviderUserID)
	if err != nil {
		logger.Error("profile sync: failed to read provider metadata", slog.String("error", err.Error()))
		return SyncFailed
	}
	if remote.ProfileVersion >= user.ProfileVersion {
		logger.Info("profile sync skipped: provider is up to date",
			slog.Int("remote_version", remote.ProfileVersion),
		)
		return SyncSkippedStale
	}

	meta := ProfileMetadata{
		Name:             user.Name,
		Username:         user.UsernameOrEmpty(),
		AvatarURL:        user.AvatarURL,
		ProfileVersion:   user.ProfileVersion,
		ProfileUpdatedAt: user.ProfileUpdatedAt,
	}
	if err := s.metadata.PutProfileMetadata(ctx, identity.ProviderUserID, meta); err != nil {
		logger.Error("profile sync: failed to push provider metadata", slog.String("error", err.Error()))
		return SyncFailed
	}

	logger.Info("profile synced to provider")
	return SyncPushed
}
