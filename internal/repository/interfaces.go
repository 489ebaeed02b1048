// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/bourbonbuddy/internal/model"
)

// ErrUsernameTaken はユーザー名のユニーク制約違反を表す。
var ErrUsernameTaken = errors.New("username already taken")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateProfile はプロフィールを部分更新し、profile_versionを1つ進める。
	// 更新後のユーザーを返す。ユーザーが存在しない場合はnilを返す。
	// ユーザー名が重複した場合はErrUsernameTakenを返す。
	UpdateProfile(ctx context.Context, id string, patch model.ProfilePatch) (*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// identities、sessions、spirits、videos、commentsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error

	// FindPublicProfile はユーザー名で公開プロフィールをボトル数付きで取得する。
	// 見つからない場合はnilを返す。
	FindPublicProfile(ctx context.Context, username string) (*model.PublicProfile, error)
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// FindByUserIDAndProvider はユーザーに紐づく指定providerのidentityを取得する。
	// 見つからない場合はnilを返す。
	FindByUserIDAndProvider(ctx context.Context, userID, provider string) (*model.Identity, error)

	// Create は既存ユーザーにidentityを追加する。
	Create(ctx context.Context, identity *model.Identity) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// SpiritRepository はコレクションのボトルの永続化インターフェース。
// すべての操作は所有者IDで絞り込む。
type SpiritRepository interface {
	// List は所有者のボトルをcreated_at降順で返す。
	// filter.Cursorがゼロ値でない場合はそれより古いものだけを返す。
	List(ctx context.Context, ownerID string, filter model.SpiritFilter) ([]*model.Spirit, error)

	// FindByIDAndOwner は所有者のボトルを取得する。見つからない場合はnilを返す。
	FindByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Spirit, error)

	// Create はボトルを作成する。
	Create(ctx context.Context, spirit *model.Spirit) error

	// Update はボトルの全項目を上書きする。
	Update(ctx context.Context, spirit *model.Spirit) error

	// Delete は所有者のボトルを削除する。削除対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, id, ownerID string) (bool, error)
}

// VideoRepository は動画行の永続化インターフェース。
type VideoRepository interface {
	// Create は動画行を作成する。
	Create(ctx context.Context, video *model.Video) error

	// FindByID は指定IDの動画を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Video, error)

	// ListPublic は公開かつ再生可能な動画を新しい順に返す。
	ListPublic(ctx context.Context, limit int) ([]*model.Video, error)

	// ListByUser はユーザーの動画を新しい順に返す。
	ListByUser(ctx context.Context, userID string) ([]*model.Video, error)

	// UpdateMetadata はタイトル、説明、公開設定を更新する。
	UpdateMetadata(ctx context.Context, video *model.Video) error

	// ResetUpload は新しいアップロードIDを設定し、状態をuploadingに戻す。
	ResetUpload(ctx context.Context, id, uploadID, placeholderPlaybackID string) error

	// IncrementViews は再生回数を1つ増やす。
	IncrementViews(ctx context.Context, id string) error

	// Delete は指定IDの動画を削除する。
	Delete(ctx context.Context, id string) error

	// ListNeedingSync は外部サービスとの照合が必要な動画を最大limit件返す。
	// processingのままstaleBeforeより更新されていない行と、
	// 再生IDが空または仮IDの行が対象となる。
	ListNeedingSync(ctx context.Context, limit int, staleBefore time.Time) ([]*model.Video, error)

	// UpdateStatus は照合結果を書き戻す。
	UpdateStatus(ctx context.Context, id string, update model.VideoStatusUpdate) error
}

// CommentRepository はコメントの永続化インターフェース。
type CommentRepository interface {
	// ListByVideo は動画のコメントを古い順に投稿者名付きで返す。
	ListByVideo(ctx context.Context, videoID string) ([]*model.Comment, error)

	// ListByReview はレビューのコメントを古い順に投稿者名付きで返す。
	ListByReview(ctx context.Context, reviewID string) ([]*model.Comment, error)

	// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Comment, error)

	// Create はコメントを作成する。
	Create(ctx context.Context, comment *model.Comment) error

	// Delete は指定IDのコメントを削除する。
	Delete(ctx context.Context, id string) error
}

// NewsRepository はニュースソースと記事の永続化インターフェース。
type NewsRepository interface {
	// UpsertSource はフィードURLでソースを登録する。既存の場合はそのまま返す。
	UpsertSource(ctx context.Context, feedURL string) (*model.NewsSource, error)

	// ListDueSources はnext_fetch_atを過ぎたソースを返す。
	ListDueSources(ctx context.Context, now time.Time) ([]*model.NewsSource, error)

	// UpdateFetchState はソースのフェッチ状態を更新する。
	// title、etag、last_modified、consecutive_errors、error_message、next_fetch_atを更新する。
	UpdateFetchState(ctx context.Context, source *model.NewsSource) error

	// UpsertItem は(source_id, guid)をキーに記事をUPSERTする。
	UpsertItem(ctx context.Context, item *model.NewsItem) error

	// ListLatest は全ソースの最新記事をソース名付きで返す。
	ListLatest(ctx context.Context, limit int) ([]*model.NewsItem, error)
}
