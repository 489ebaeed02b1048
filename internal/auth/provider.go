package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken はホスト型認証プロバイダーのアクセストークンが無効であることを表す。
var ErrInvalidToken = errors.New("invalid provider access token")

// ProviderClaims はホスト型認証プロバイダーが発行するアクセストークンのクレーム。
type ProviderClaims struct {
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

// MetadataString はuser_metadataから文字列値を取り出す。
func (c *ProviderClaims) MetadataString(key string) string {
	if c.UserMetadata == nil {
		return ""
	}
	s, _ := c.UserMetadata[key].(string)
	return s
}

// TokenVerifier はプロバイダーの共有シークレットでHS256署名を検証する。
type TokenVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewTokenVerifier はTokenVerifierを生成する。
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), now: time.Now}
}

// Verify はアクセストークンを検証してクレームを返す。
// 期限切れ、署名不一致、HS256以外のアルゴリズム、subの欠落はErrInvalidTokenとして扱う。
func (v *TokenVerifier) Verify(token string) (*ProviderClaims, error) {
	if token == "" || len(v.secret) == 0 {
		return nil, ErrInvalidToken
	}

	claims := &ProviderClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ProfileMetadata はプロバイダーのuser_metadataへ複製するプロフィール項目。
type ProfileMetadata struct {
	Name             string    `json:"name"`
	Username         string    `json:"username,omitempty"`
	AvatarURL        string    `json:"avatar_url"`
	ProfileVersion   int       `json:"profile_version"`
	ProfileUpdatedAt time.Time `json:"profile_updated_at"`
}

// MetadataClient はプロバイダーのユーザーメタデータを読み書きするインターフェース。
type MetadataClient interface {
	GetProfileMetadata(ctx context.Context, sub string) (*ProfileMetadata, error)
	PutProfileMetadata(ctx context.Context, sub string, meta ProfileMetadata) error
}

// AdminClient はプロバイダーの管理API（サービスキー認証）のクライアント。
type AdminClient struct {
	baseURL    string
	serviceKey string
	client     *http.Client
}

// NewAdminClient はAdminClientを生成する。baseURLかserviceKeyが空の場合はnilを返す。
func NewAdminClient(baseURL, serviceKey string, timeout time.Duration) *AdminClient {
	if baseURL == "" || serviceKey == "" {
		return nil
	}
	return &AdminClient{
		baseURL:    baseURL,
		serviceKey: serviceKey,
		client:     &http.Client{Timeout: timeout},
	}
}

type adminUser struct {
	ID           string          `json:"id"`
	UserMetadata json.RawMessage `json:"user_metadata"`
}

// GetProfileMetadata はプロバイダー上のユーザーメタデータを取得する。
// profile_versionが未設定の場合は0として返す。
func (c *AdminClient) GetProfileMetadata(ctx context.Context, sub string) (*ProfileMetadata, error) {
	req, err := c.newRequest(ctx, http.MethodGet, sub, nil)
	if err != nil {
		return nil, err
	}

	var user adminUser
	if err := c.do(req, &user); err != nil {
		return nil, fmt.Errorf("failed to get provider user: %w", err)
	}

	meta := &ProfileMetadata{}
	if len(user.UserMetadata) > 0 && string(user.UserMetadata) != "null" {
		if err := json.Unmarshal(user.UserMetadata, meta); err != nil {
			return nil, fmt.Errorf("failed to parse user metadata: %w", err)
		}
	}
	return meta, nil
}

// PutProfileMetadata はプロバイダー上のユーザーメタデータを上書きする。
func (c *AdminClient) PutProfileMetadata(ctx context.Context, sub string, meta ProfileMetadata) error {
	body, err := json.Marshal(map[string]any{"user_metadata": meta})
	if err != nil {
		return fmt.Errorf("failed to encode user metadata: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPut, sub, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("failed to update provider user: %w", err)
	}
	return nil
}

func (c *AdminClient) newRequest(ctx context.Context, method, sub string, body io.Reader) (*http.Request, error) {
	endpoint := c.baseURL + "/auth/v1/admin/users/" + url.PathEscape(sub)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("apikey", c.serviceKey)
	return req, nil
}

func (c *AdminClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

var _ MetadataClient = (*AdminClient)(nil)
