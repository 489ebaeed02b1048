// Package auth はOAuth認証フロー、ホスト型認証プロバイダーとの連携、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/bourbonbuddy/internal/model"
	"github.com/hitoshi/bourbonbuddy/internal/repository"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,30}$`)

// OAuthUserInfo はIdPから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Name           string
	Username       string
	AvatarURL      string
	ProfileVersion int
	Provider       string // model.ProviderGoogle, model.ProviderSupabase
}

// OAuthProvider はOAuth認可コードフローを提供するIdPのインターフェース。
type OAuthProvider interface {
	GetLoginURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// AccessTokenVerifier はホスト型認証プロバイダーのアクセストークン検証インターフェース。
type AccessTokenVerifier interface {
	Verify(token string) (*ProviderClaims, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	verifier    AccessTokenVerifier
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
}

// NewService はServiceを生成する。oauthがnilの場合はGoogleログインを無効として扱う。
func NewService(
	oauth OAuthProvider,
	verifier AccessTokenVerifier,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		verifier:    verifier,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		config:      config,
	}
}

// OAuthEnabled はGoogleログインが利用可能かを返す。
func (s *Service) OAuthEnabled() bool {
	return s.oauth != nil
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if s.oauth == nil {
		return nil, model.NewNotConfiguredError("google login")
	}

	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	userID, err := s.findOrProvisionUser(ctx, userInfo)
	if err != nil {
		return nil, err
	}

	session, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// HandleProviderToken はホスト型認証プロバイダーのアクセストークンを検証し、セッションを発行する。
// トークンが無効な場合はUNAUTHORIZEDを返す。
func (s *Service) HandleProviderToken(ctx context.Context, accessToken string) (*model.Session, error) {
	claims, err := s.verify(accessToken)
	if err != nil {
		return nil, model.NewUnauthorizedError()
	}

	userID, err := s.findOrProvisionUser(ctx, userInfoFromClaims(claims))
	if err != nil {
		return nil, err
	}

	session, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// ResolveBearer はBearerトークンをリレーショナル側のユーザーIDに解決する。
// セッションは作成しない。未登録のidentityの場合は空文字列を返す。
func (s *Service) ResolveBearer(ctx context.Context, token string) (string, error) {
	claims, err := s.verify(token)
	if err != nil {
		return "", err
	}

	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, model.ProviderSupabase, claims.Subject)
	if err != nil {
		return "", fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil {
		return "", nil
	}
	return identity.UserID, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// GetCurrentUser は認証済みユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

func (s *Service) verify(token string) (*ProviderClaims, error) {
	if s.verifier == nil {
		return nil, ErrInvalidToken
	}
	return s.verifier.Verify(token)
}

// findOrProvisionUser はidentityからユーザーを特定する。
// 未登録の場合、確認済みメールアドレスが既存ユーザーと一致すればidentityを追加し、
// 一致しなければusersとidentitiesを同一トランザクションで作成する。
func (s *Service) findOrProvisionUser(ctx context.Context, info *OAuthUserInfo) (string, error) {
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return "", fmt.Errorf("failed to find identity: %w", err)
	}
	if identity != nil {
		slog.Info("existing user logged in",
			slog.String("user_id", identity.UserID),
			slog.String("provider", info.Provider),
		)
		return identity.UserID, nil
	}

	now := time.Now()

	if info.Email != "" && info.EmailVerified {
		existing, err := s.userRepo.FindByEmail(ctx, info.Email)
		if err != nil {
			return "", fmt.Errorf("failed to find user by email: %w", err)
		}
		if existing != nil {
			if err := s.identRepo.Create(ctx, newIdentity(existing.ID, info, now)); err != nil {
				return "", fmt.Errorf("failed to link identity: %w", err)
			}
			slog.Info("identity linked to existing user",
				slog.String("user_id", existing.ID),
				slog.String("provider", info.Provider),
			)
			return existing.ID, nil
		}
	}

	user := &model.User{
		ID:               uuid.New().String(),
		Email:            info.Email,
		Name:             info.Name,
		AvatarURL:        info.AvatarURL,
		ProfileVersion:   info.ProfileVersion,
		ProfileUpdatedAt: now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if username := strings.ToLower(info.Username); usernamePattern.MatchString(username) {
		user.Username = &username
	}

	err = s.userRepo.CreateWithIdentity(ctx, user, newIdentity(user.ID, info, now))
	if errors.Is(err, repository.ErrUsernameTaken) {
		// 初回取り込みのユーザー名が衝突した場合はユーザー名なしで作成する
		user.Username = nil
		err = s.userRepo.CreateWithIdentity(ctx, user, newIdentity(user.ID, info, now))
	}
	if err != nil {
		return "", fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("provider", info.Provider),
	)
	return user.ID, nil
}

func newIdentity(userID string, info *OAuthUserInfo, now time.Time) *model.Identity {
	return &model.Identity{
		ID:             uuid.New().String(),
		UserID:         userID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}
}

// userInfoFromClaims はプロバイダーのクレームを初回取り込み用のユーザー情報に変換する。
func userInfoFromClaims(claims *ProviderClaims) *OAuthUserInfo {
	name := claims.MetadataString("name")
	if name == "" {
		name = claims.MetadataString("full_name")
	}
	version := 0
	if v, ok := claims.UserMetadata["profile_version"].(float64); ok && v > 0 {
		version = int(v)
	}
	return &OAuthUserInfo{
		ProviderUserID: claims.Subject,
		Email:          claims.Email,
		EmailVerified:  claims.Email != "",
		Name:           name,
		Username:       claims.MetadataString("username"),
		AvatarURL:      claims.MetadataString("avatar_url"),
		ProfileVersion: version,
		Provider:       model.ProviderSupabase,
	}
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
