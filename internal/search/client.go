// Package search はサーバー側で保持するAPIキーを使ったWeb検索のプロキシを提供する。
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/bourbonbuddy/internal/model"
	"github.com/hitoshi/bourbonbuddy/internal/security"
)

const (
	// DefaultTimeout は上流APIへの問い合わせの既定タイムアウト。
	DefaultTimeout = 8 * time.Second
	// MaxQueryLength は検索語の最大文字数。
	MaxQueryLength = 400
	// DefaultCount は件数未指定時の取得件数。
	DefaultCount = 10
	// MaxCount は1回の検索で取得できる最大件数。
	MaxCount = 20

	maxResponseSize = 2 << 20
)

// Result は正規化した検索結果1件。
type Result struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

// upstreamResponse は上流APIのレスポンスのうち利用する部分。
type upstreamResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
			Thumbnail   struct {
				Src string `json:"src"`
			} `json:"thumbnail"`
		} `json:"results"`
	} `json:"web"`
}

// Client は検索APIのクライアント。
type Client struct {
	httpClient *http.Client
	sanitizer  security.ContentSanitizerService
	logger     *slog.Logger
	endpoint   string
	apiKey     string
	timeout    time.Duration
}

// NewClient はClientの新しいインスタンスを生成する。
// apiKeyが空の場合、SearchはNOT_CONFIGUREDを返す。
func NewClient(endpoint, apiKey string, timeout time.Duration, sanitizer security.ContentSanitizerService, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{},
		sanitizer:  sanitizer,
		logger:     logger,
		endpoint:   endpoint,
		apiKey:     apiKey,
		timeout:    timeout,
	}
}

// ValidateQuery は検索語と件数を検証し、正規化した値を返す。
// countが0の場合は既定件数を使う。
func ValidateQuery(q string, count int) (string, int, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return "", 0, model.NewValidationError("q は必須です")
	}
	if utf8.RuneCountInString(q) > MaxQueryLength {
		return "", 0, model.NewValidationError(fmt.Sprintf("q は%d文字以内で指定してください", MaxQueryLength))
	}
	if count == 0 {
		count = DefaultCount
	}
	if count < 1 || count > MaxCount {
		return "", 0, model.NewValidationError(fmt.Sprintf("count は1から%dの範囲で指定してください", MaxCount))
	}
	return q, count, nil
}

// Search は検索APIを呼び出し、結果を正規化して返す。
// タイムアウトはUPSTREAM_TIMEOUT、上流の2xx以外はUPSTREAM_FAILEDとして返す。
func (c *Client) Search(ctx context.Context, q string, count int) ([]Result, error) {
	if c.apiKey == "" {
		return nil, model.NewNotConfiguredError("search")
	}
	q, count, err := ValidateQuery(q, count)
	if err != nil {
		return nil, err
	}

	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}
	params := reqURL.Query()
	params.Set("q", q)
	params.Set("count", strconv.Itoa(count))
	reqURL.RawQuery = params.Encode()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.logger.Warn("検索APIの応答がタイムアウトしました",
				slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
			)
			return nil, model.NewUpstreamTimeoutError("search")
		}
		c.logger.Error("検索APIの呼び出しに失敗しました", slog.String("error", err.Error()))
		return nil, model.NewUpstreamFailedError("search")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("検索APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewUpstreamFailedError("search")
	}

	body, err := security.ReadLimited(resp.Body, maxResponseSize)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, model.NewUpstreamTimeoutError("search")
		}
		c.logger.Error("検索APIのレスポンスの読み取りに失敗しました", slog.String("error", err.Error()))
		return nil, model.NewUpstreamFailedError("search")
	}

	var decoded upstreamResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		c.logger.Error("検索APIのレスポンスのパースに失敗しました", slog.String("error", err.Error()))
		return nil, model.NewUpstreamFailedError("search")
	}

	results := make([]Result, 0, len(decoded.Web.Results))
	for _, r := range decoded.Web.Results {
		results = append(results, Result{
			Title:       c.sanitizer.Sanitize(r.Title),
			URL:         r.URL,
			Description: c.sanitizer.Sanitize(r.Description),
			ImageURL:    r.Thumbnail.Src,
		})
	}
	return results, nil
}
