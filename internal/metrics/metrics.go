// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェア、スプレッドシートクライアント、認証、ワーカーから利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordSheetsCall(operation, outcome string, seconds float64)
	RecordSheetsBackoff(operation string)
	RecordAuthEvent(event string)
	RecordCleanupDeleted(kind string, count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus     *prometheus.CounterVec
	sheetsCalls    *prometheus.CounterVec
	sheetsLatency  *prometheus.HistogramVec
	sheetsBackoffs *prometheus.CounterVec
	authEvents     *prometheus.CounterVec
	cleanupDeleted *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "expenfyre_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		sheetsCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "expenfyre_sheets_calls_total",
			Help: "スプレッドシートAPI呼び出し数",
		}, []string{"operation", "outcome"}),
		sheetsLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "expenfyre_sheets_latency_seconds",
			Help:    "スプレッドシートAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		sheetsBackoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "expenfyre_sheets_backoff_total",
			Help: "429応答によるバックオフ回数",
		}, []string{"operation"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "expenfyre_auth_events_total",
			Help: "認証イベント数",
		}, []string{"event"}),
		cleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "expenfyre_cleanup_deleted_total",
			Help: "クリーンアップで削除したキー数",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.sheetsCalls,
		c.sheetsLatency,
		c.sheetsBackoffs,
		c.authEvents,
		c.cleanupDeleted,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSheetsCall はスプレッドシートAPI呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordSheetsCall(operation, outcome string, seconds float64) {
	c.sheetsCalls.WithLabelValues(operation, outcome).Inc()
	c.sheetsLatency.WithLabelValues(operation).Observe(seconds)
}

// RecordSheetsBackoff はバックオフを記録する。
func (c *Collector) RecordSheetsBackoff(operation string) {
	c.sheetsBackoffs.WithLabelValues(operation).Inc()
}

// RecordAuthEvent は認証イベントを記録する。
func (c *Collector) RecordAuthEvent(event string) {
	c.authEvents.WithLabelValues(event).Inc()
}

// RecordCleanupDeleted はクリーンアップの削除件数を記録する。
func (c *Collector) RecordCleanupDeleted(kind string, count int) {
	if count <= 0 {
		return
	}
	c.cleanupDeleted.WithLabelValues(kind).Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
