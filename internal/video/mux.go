// Package video は外部動画処理サービスとの連携、動画行の状態管理、
// 状態照合（reconcile）を提供する。
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultMuxBaseURL は動画APIの既定エンドポイント。
const DefaultMuxBaseURL = "https://api.mux.com"

// ErrUpstreamNotFound は動画APIが404を返したことを表す。
var ErrUpstreamNotFound = errors.New("upstream resource not found")

// アップロードの状態（動画API側）
const (
	UploadWaiting      = "waiting"
	UploadAssetCreated = "asset_created"
	UploadErrored      = "errored"
	UploadCancelled    = "cancelled"
	UploadTimedOut     = "timed_out"
)

// アセットの状態（動画API側）
const (
	AssetPreparing = "preparing"
	AssetReady     = "ready"
	AssetErrored   = "errored"
)

// 再生ポリシー
const (
	PlaybackPolicyPublic = "public"
	PlaybackPolicySigned = "signed"
)

// Upload はダイレクトアップロードを表す。
type Upload struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Status  string `json:"status"`
	AssetID string `json:"asset_id"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// PlaybackID は再生IDとそのポリシー。
type PlaybackID struct {
	ID     string `json:"id"`
	Policy string `json:"policy"`
}

// Asset はエンコード対象のアセットを表す。
type Asset struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	PlaybackIDs []PlaybackID `json:"playback_ids"`
	Duration    float64      `json:"duration"`
	AspectRatio string       `json:"aspect_ratio"`
}

// PrimaryPlaybackID は最初の再生IDを返す。再生IDがない場合は空文字列を返す。
func (a *Asset) PrimaryPlaybackID() string {
	if len(a.PlaybackIDs) == 0 {
		return ""
	}
	return a.PlaybackIDs[0].ID
}

// MuxClient は動画APIのRESTクライアント。
// アクセストークンIDとシークレットのBasic認証を使う。
type MuxClient struct {
	baseURL     string
	tokenID     string
	tokenSecret string
	client      *http.Client
}

// NewMuxClient はMuxClientを生成する。baseURLが空の場合は既定エンドポイントを使う。
func NewMuxClient(baseURL, tokenID, tokenSecret string, timeout time.Duration) *MuxClient {
	if baseURL == "" {
		baseURL = DefaultMuxBaseURL
	}
	return &MuxClient{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		tokenID:     tokenID,
		tokenSecret: tokenSecret,
		client:      &http.Client{Timeout: timeout},
	}
}

// CreateDirectUpload はブラウザから直接アップロードするためのURLを発行する。
func (c *MuxClient) CreateDirectUpload(ctx context.Context, corsOrigin, playbackPolicy string) (*Upload, error) {
	body := map[string]any{
		"cors_origin": corsOrigin,
		"new_asset_settings": map[string]any{
			"playback_policy": []string{playbackPolicy},
		},
	}
	var out struct {
		Data Upload `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/video/v1/uploads", body, &out); err != nil {
		return nil, fmt.Errorf("failed to create direct upload: %w", err)
	}
	return &out.Data, nil
}

// GetUpload はアップロードの状態を取得する。
func (c *MuxClient) GetUpload(ctx context.Context, uploadID string) (*Upload, error) {
	var out struct {
		Data Upload `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/video/v1/uploads/"+url.PathEscape(uploadID), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get upload %s: %w", uploadID, err)
	}
	return &out.Data, nil
}

// GetAsset はアセットの状態を取得する。
func (c *MuxClient) GetAsset(ctx context.Context, assetID string) (*Asset, error) {
	var out struct {
		Data Asset `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/video/v1/assets/"+url.PathEscape(assetID), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get asset %s: %w", assetID, err)
	}
	return &out.Data, nil
}

// DeleteAsset はアセットを削除する。既に存在しない場合は成功として扱う。
func (c *MuxClient) DeleteAsset(ctx context.Context, assetID string) error {
	err := c.do(ctx, http.MethodDelete, "/video/v1/assets/"+url.PathEscape(assetID), nil, nil)
	if err != nil && !errors.Is(err, ErrUpstreamNotFound) {
		return fmt.Errorf("failed to delete asset %s: %w", assetID, err)
	}
	return nil
}

func (c *MuxClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.tokenID, c.tokenSecret)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrUpstreamNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
