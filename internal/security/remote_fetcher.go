package security

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUpstreamStatus は取得先が2xx以外を返したことを表す。
var ErrUpstreamStatus = errors.New("unexpected upstream status")

// FetchedResource は外部URLから取得したレスポンス。
type FetchedResource struct {
	Body        []byte
	ContentType string
}

// RemoteFetcher はSSRF防止付きで外部URLの内容を取得する。
// ボトル画像のURLインポートで使用する。
type RemoteFetcher struct {
	guard  SSRFGuardService
	client *http.Client
}

// NewRemoteFetcher はRemoteFetcherを生成する。
func NewRemoteFetcher(guard SSRFGuardService, timeout time.Duration) *RemoteFetcher {
	return &RemoteFetcher{
		guard:  guard,
		client: guard.NewSafeClient(timeout),
	}
}

// Fetch はURLを検証してからGETし、maxBytesまでのボディを返す。
// 検証失敗はErrBlockedURL、サイズ超過はErrResponseTooLarge、
// 2xx以外はErrUpstreamStatusをラップして返す。
func (f *RemoteFetcher) Fetch(ctx context.Context, rawURL string, maxBytes int64) (*FetchedResource, error) {
	if err := f.guard.ValidateURL(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBlockedURL, err)
	}
	req.Header.Set("User-Agent", "BourbonBuddy/1.0")
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrUpstreamStatus, resp.StatusCode)
	}
	if resp.ContentLength > maxBytes {
		return nil, ErrResponseTooLarge
	}

	body, err := ReadLimited(resp.Body, maxBytes)
	if err != nil {
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}

	return &FetchedResource{Body: body, ContentType: contentType}, nil
}
