// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// HTTPミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
	RecordUserCreated()
	RecordValidationFailure(field string)
	RecordPhoneNormalization(result string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests       *prometheus.CounterVec
	httpLatency        *prometheus.HistogramVec
	usersCreated       prometheus.Counter
	validationFailures *prometheus.CounterVec
	phoneNormalized    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userapi_http_requests_total",
			Help: "ルート・ステータスコード別のHTTPリクエスト数",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "userapi_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		usersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "userapi_users_created_total",
			Help: "作成されたユーザーの合計数",
		}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userapi_validation_failures_total",
			Help: "フィールド別の入力検証エラー数",
		}, []string{"field"}),
		phoneNormalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userapi_phone_normalizations_total",
			Help: "結果別の電話番号正規化の回数",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.usersCreated,
		c.validationFailures,
		c.phoneNormalized,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの結果と処理時間を記録する。
// routeにはパスパラメータを含まないルートパターンを渡す。
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordUserCreated はユーザー作成を記録する。
func (c *Collector) RecordUserCreated() {
	c.usersCreated.Inc()
}

// RecordValidationFailure は入力検証エラーを記録する。
func (c *Collector) RecordValidationFailure(field string) {
	c.validationFailures.WithLabelValues(field).Inc()
}

// RecordPhoneNormalization は電話番号正規化の結果を記録する。
func (c *Collector) RecordPhoneNormalization(result string) {
	c.phoneNormalized.WithLabelValues(result).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ MetricsCollector = (*Collector)(nil)
