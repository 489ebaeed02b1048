// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 照合結果のラベル値
const (
	ReconcileUpdated   = "updated"
	ReconcileUnchanged = "unchanged"
	ReconcileError     = "error"
)

// ニュース取得結果のラベル値
const (
	NewsFetchSuccess     = "success"
	NewsFetchNotModified = "not_modified"
	NewsFetchFailure     = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェア、動画照合、ニュースワーカーから利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method string, statusCode int, duration time.Duration)
	RecordVideoReconcile(outcome string)
	RecordNewsFetch(result string)
	RecordNewsItemsUpserted(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests      *prometheus.CounterVec
	httpDuration      prometheus.Histogram
	videoReconcile    *prometheus.CounterVec
	newsFetch         *prometheus.CounterVec
	newsItemsUpserted prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bourbonbuddy_http_requests_total",
			Help: "メソッドとステータスコード別のHTTPリクエスト数",
		}, []string{"method", "status"}),
		httpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bourbonbuddy_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		videoReconcile: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bourbonbuddy_video_reconcile_total",
			Help: "動画ステータス照合の結果別件数",
		}, []string{"outcome"}),
		newsFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bourbonbuddy_news_fetch_total",
			Help: "ニュースフィード取得の結果別件数",
		}, []string{"result"}),
		newsItemsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bourbonbuddy_news_items_upserted_total",
			Help: "アップサートされたニュース記事の合計数",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.videoReconcile,
		c.newsFetch,
		c.newsItemsUpserted,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの件数と処理時間を記録する。
func (c *Collector) RecordHTTPRequest(method string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.httpDuration.Observe(duration.Seconds())
}

// RecordVideoReconcile は1行分の照合結果を記録する。
func (c *Collector) RecordVideoReconcile(outcome string) {
	c.videoReconcile.WithLabelValues(outcome).Inc()
}

// RecordNewsFetch はニュースソース1件分の取得結果を記録する。
func (c *Collector) RecordNewsFetch(result string) {
	c.newsFetch.WithLabelValues(result).Inc()
}

// RecordNewsItemsUpserted はアップサートされた記事数を記録する。
func (c *Collector) RecordNewsItemsUpserted(count int) {
	c.newsItemsUpserted.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type NopCollector struct{}

func (NopCollector) RecordHTTPRequest(string, int, time.Duration) {}
func (NopCollector) RecordVideoReconcile(string)                  {}
func (NopCollector) RecordNewsFetch(string)                       {}
func (NopCollector) RecordNewsItemsUpserted(int)                  {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
