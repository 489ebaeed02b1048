package video

import (
	"crypto/ecdsa"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	streamBaseURL = "https://stream.mux.com"
	imageBaseURL  = "https://image.mux.com"
)

// Playback はクライアントに返す再生情報。
type Playback struct {
	PlaybackID   string `json:"playback_id"`
	Token        string `json:"token,omitempty"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// PlaybackSigner は署名付き再生トークン（ES256）を発行する。
type PlaybackSigner struct {
	keyID string
	key   *ecdsa.PrivateKey
	ttl   time.Duration
}

// NewPlaybackSigner はPEM（またはBase64エンコードされたPEM）の秘密鍵からPlaybackSignerを生成する。
func NewPlaybackSigner(keyID, privateKey string, ttl time.Duration) (*PlaybackSigner, error) {
	if keyID == "" || privateKey == "" {
		return nil, fmt.Errorf("signing key id and private key are required")
	}

	pemData := []byte(privateKey)
	if !strings.HasPrefix(strings.TrimSpace(privateKey), "-----BEGIN") {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(privateKey))
		if err != nil {
			return nil, fmt.Errorf("signing key is neither PEM nor base64: %w", err)
		}
		pemData = decoded
	}

	key, err := jwt.ParseECPrivateKeyFromPEM(pemData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &PlaybackSigner{keyID: keyID, key: key, ttl: ttl}, nil
}

// Sign は再生ID用のトークンを発行する。audienceは"v"（動画）または"t"（サムネイル）。
func (s *PlaybackSigner) Sign(playbackID, audience string, now time.Time) (string, error) {
	// audは配列ではなく単一文字列で送る
	claims := jwt.MapClaims{
		"sub": playbackID,
		"aud": audience,
		"exp": now.Add(s.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign playback token: %w", err)
	}
	return signed, nil
}

// BuildPlayback は再生URLとサムネイルURLを組み立てる。
// signerがnilの場合は署名なしの公開URLを返す。
func BuildPlayback(signer *PlaybackSigner, playbackID string, now time.Time) (*Playback, error) {
	p := &Playback{
		PlaybackID:   playbackID,
		URL:          fmt.Sprintf("%s/%s.m3u8", streamBaseURL, playbackID),
		ThumbnailURL: fmt.Sprintf("%s/%s/thumbnail.jpg", imageBaseURL, playbackID),
	}
	if signer == nil {
		return p, nil
	}

	token, err := signer.Sign(playbackID, "v", now)
	if err != nil {
		return nil, err
	}
	thumbToken, err := signer.Sign(playbackID, "t", now)
	if err != nil {
		return nil, err
	}
	p.Token = token
	p.URL += "?token=" + token
	p.ThumbnailURL += "?token=" + thumbToken
	return p, nil
}
