// Package telemetry はブラウザから送られるエラーレポートを外部のエラー監視サービスへ中継する。
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/bourbonbuddy/internal/model"
	"github.com/hitoshi/bourbonbuddy/internal/security"
)

const (
	// MaxEnvelopeSize はエンベロープの最大サイズ（1MB）。
	MaxEnvelopeSize = 1 << 20

	defaultTimeout      = 10 * time.Second
	maxUpstreamRespSize = 64 << 10
)

// DSN は設定済みDSNから取り出した転送先情報。
type DSN struct {
	Host      string
	ProjectID string
}

// ParseDSN は https://{key}@{host}/{project} 形式のDSNを解析する。
func ParseDSN(raw string) (*DSN, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse dsn: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("dsn has no host")
	}
	project := strings.Trim(u.Path, "/")
	if i := strings.LastIndex(project, "/"); i >= 0 {
		project = project[i+1:]
	}
	if project == "" {
		return nil, fmt.Errorf("dsn has no project id")
	}
	return &DSN{Host: u.Host, ProjectID: project}, nil
}

// Response は上流から返されたステータスとボディ。
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Tunnel はエンベロープを検証して上流へ転送する。
type Tunnel struct {
	dsn        *DSN
	httpClient *http.Client
	logger     *slog.Logger
	// baseURL は転送先のスキームとホスト。テスト用に差し替え可能。
	baseURL string
}

// NewTunnel はTunnelを生成する。dsnが空の場合は未設定のTunnelを返し、
// Forwardは常にNOT_CONFIGUREDを返す。
func NewTunnel(dsn string, logger *slog.Logger) (*Tunnel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tunnel{
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
	if dsn == "" {
		return t, nil
	}
	parsed, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	t.dsn = parsed
	t.baseURL = "https://" + parsed.Host
	return t, nil
}

// Configured はDSNが設定されているかを返す。
func (t *Tunnel) Configured() bool {
	return t != nil && t.dsn != nil
}

// envelopeHeader はエンベロープ先頭行のJSONヘッダー。
type envelopeHeader struct {
	DSN string `json:"dsn"`
}

// Forward はエンベロープの先頭行のDSNを検証し、本文をそのまま上流へ転送する。
// DSNが解析できない場合はVALIDATION_FAILED、ホストまたはプロジェクトが
// 設定と異なる場合はFORBIDDENを返す。
func (t *Tunnel) Forward(ctx context.Context, envelope []byte) (*Response, error) {
	if !t.Configured() {
		return nil, model.NewNotConfiguredError("monitoring")
	}
	if len(envelope) > MaxEnvelopeSize {
		return nil, model.NewPayloadTooLargeError(MaxEnvelopeSize)
	}

	headerLine, _, _ := bytes.Cut(envelope, []byte("\n"))
	var header envelopeHeader
	if err := json.Unmarshal(headerLine, &header); err != nil || header.DSN == "" {
		return nil, model.NewValidationError("エンベロープのヘッダーが不正です")
	}
	got, err := ParseDSN(header.DSN)
	if err != nil {
		return nil, model.NewValidationError("エンベロープのDSNが不正です")
	}
	if got.Host != t.dsn.Host || got.ProjectID != t.dsn.ProjectID {
		t.logger.Warn("許可されていないDSNのエンベロープを拒否しました",
			slog.String("host", got.Host),
			slog.String("project_id", got.ProjectID),
		)
		return nil, model.NewForbiddenError("許可されていない送信先です")
	}

	upstreamURL := fmt.Sprintf("%s/api/%s/envelope/", t.baseURL, url.PathEscape(t.dsn.ProjectID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, upstreamURL, bytes.NewReader(envelope))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-sentry-envelope")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.logger.Error("エラーレポートの転送に失敗しました", slog.String("error", err.Error()))
		return nil, model.NewUpstreamFailedError("monitoring")
	}
	defer resp.Body.Close()

	body, err := security.ReadLimited(resp.Body, maxUpstreamRespSize)
	if err != nil {
		body = nil
	}
	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
