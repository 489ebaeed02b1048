package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	appleAudience = "https://appleid.apple.com"

	// AppleClientSecretMaxTTL はAppleが受け付けるクライアントシークレットの最大有効期間。
	AppleClientSecretMaxTTL = 180 * 24 * time.Hour
)

// AppleConfig はSign in with Appleのクライアントシークレット生成に必要な設定。
type AppleConfig struct {
	TeamID        string
	ClientID      string
	KeyID         string
	PrivateKeyPEM string
	TTL           time.Duration
}

// GenerateAppleClientSecret はES256で署名したクライアントシークレットJWTを生成する。
// TTLが未指定または上限を超える場合は180日に丸める。
func GenerateAppleClientSecret(cfg AppleConfig, now time.Time) (string, error) {
	var missing []string
	if cfg.TeamID == "" {
		missing = append(missing, "APPLE_TEAM_ID")
	}
	if cfg.ClientID == "" {
		missing = append(missing, "APPLE_CLIENT_ID")
	}
	if cfg.KeyID == "" {
		missing = append(missing, "APPLE_KEY_ID")
	}
	if cfg.PrivateKeyPEM == "" {
		missing = append(missing, "APPLE_PRIVATE_KEY")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("apple client secret settings are not set: %v", missing)
	}

	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(cfg.PrivateKeyPEM))
	if err != nil {
		return "", fmt.Errorf("failed to parse apple private key: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 || ttl > AppleClientSecretMaxTTL {
		ttl = AppleClientSecretMaxTTL
	}

	// audは配列ではなく単一文字列で送る必要がある
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": cfg.TeamID,
		"sub": cfg.ClientID,
		"aud": appleAudience,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	token.Header["kid"] = cfg.KeyID

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign apple client secret: %w", err)
	}
	return signed, nil
}
