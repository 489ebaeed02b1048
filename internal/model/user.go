// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// プロフィール項目はこのテーブルが唯一の正であり、
// ホスト型認証プロバイダーのuser_metadataへは一方向に複製される。
type User struct {
	ID               string    `db:"id"`
	Email            string    `db:"email"`
	Name             string    `db:"name"`
	Username         *string   `db:"username"`
	AvatarURL        string    `db:"avatar_url"`
	Bio              string    `db:"bio"`
	Location         string    `db:"location"`
	ProfileVersion   int       `db:"profile_version"`
	ProfileUpdatedAt time.Time `db:"profile_updated_at"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// UsernameOrEmpty はユーザー名を返す。未設定の場合は空文字列を返す。
func (u *User) UsernameOrEmpty() string {
	if u.Username == nil {
		return ""
	}
	return *u.Username
}

// ProfilePatch はプロフィールの部分更新内容を表す。
// nilのフィールドは変更しない。
type ProfilePatch struct {
	Name      *string
	Username  *string
	AvatarURL *string
	Bio       *string
	Location  *string
}

// PublicProfile は他のユーザーに公開するプロフィールを表す。
type PublicProfile struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Username    string    `db:"username"`
	AvatarURL   string    `db:"avatar_url"`
	Bio         string    `db:"bio"`
	Location    string    `db:"location"`
	SpiritCount int       `db:"spirit_count"`
	CreatedAt   time.Time `db:"created_at"`
}

// Identity は外部IdPとの紐付け情報を表す。
// Google OAuthとホスト型認証プロバイダーの両方をこのテーブルで扱う。
type Identity struct {
	ID             string    `db:"id"`
	UserID         string    `db:"user_id"`
	Provider       string    `db:"provider"`
	ProviderUserID string    `db:"provider_user_id"`
	CreatedAt      time.Time `db:"created_at"`
}

// 既知のIdentityプロバイダー
const (
	ProviderGoogle   = "google"
	ProviderSupabase = "supabase"
)

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}
