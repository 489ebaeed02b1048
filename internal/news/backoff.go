package news

import (
	"time"

	"github.com/hitoshi/bourbonbuddy/internal/model"
)

// FetchResult はHTTPステータスコードに基づくフェッチ結果の分類。
type FetchResult int

const (
	// FetchResultOK はフェッチ成功（200）。
	FetchResultOK FetchResult = iota
	// FetchResultNotModified はコンテンツ未変更（304）。
	FetchResultNotModified
	// FetchResultGone は長期間取得できない見込みのステータス（404/410/401/403）。
	FetchResultGone
	// FetchResultBackoff はバックオフが必要なステータス（429/5xx）。
	FetchResultBackoff
	// FetchResultUnknown は未知のステータスコード。
	FetchResultUnknown
)

const (
	// initialBackoff は指数バックオフの初回遅延（30分）。
	initialBackoff = 30 * time.Minute
	// maxBackoff は指数バックオフの最大遅延（12時間）。
	maxBackoff = 12 * time.Hour
)

// ClassifyHTTPStatus はHTTPステータスコードをフェッチ結果に分類する。
func ClassifyHTTPStatus(statusCode int) FetchResult {
	switch {
	case statusCode == 200:
		return FetchResultOK
	case statusCode == 304:
		return FetchResultNotModified
	case statusCode == 404 || statusCode == 410:
		return FetchResultGone
	case statusCode == 401 || statusCode == 403:
		return FetchResultGone
	case statusCode == 429:
		return FetchResultBackoff
	case statusCode >= 500:
		return FetchResultBackoff
	default:
		return FetchResultUnknown
	}
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回30分、2倍ずつ増加、最大12時間。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// ApplyBackoff は連続エラー回数をインクリメントし、指数バックオフでnext_fetch_atを設定する。
func ApplyBackoff(source *model.NewsSource, reason string, now time.Time) {
	source.ConsecutiveErrors++
	source.ErrorMessage = reason
	source.NextFetchAt = now.Add(CalculateBackoff(source.ConsecutiveErrors - 1))
	source.UpdatedAt = now
}

// ApplyGone は取得できないソースを最大遅延で再試行するよう設定する。
// ソースは設定から登録されるため停止はせず、設定の見直しまで低頻度で試行を続ける。
func ApplyGone(source *model.NewsSource, reason string, now time.Time) {
	source.ConsecutiveErrors++
	source.ErrorMessage = reason
	source.NextFetchAt = now.Add(maxBackoff)
	source.UpdatedAt = now
}

// ApplySuccess はフェッチ成功時に連続エラー回数とエラーメッセージをリセットし、
// interval後にnext_fetch_atを設定する。
func ApplySuccess(source *model.NewsSource, interval time.Duration, now time.Time) {
	source.ConsecutiveErrors = 0
	source.ErrorMessage = ""
	source.NextFetchAt = now.Add(interval)
	source.UpdatedAt = now
}
