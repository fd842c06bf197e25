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
// 認証フロー、資格情報サービス、ワーカーから利用する。
type MetricsCollector interface {
	RecordLogin(result string)
	RecordStateConsume(result string)
	RecordTokenRefresh(success, rotated bool)
	RecordStatesSwept(count int64)
	RecordHTTPStatus(statusCode int)
	RecordProviderLatency(operation string, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins          *prometheus.CounterVec
	stateConsumes   *prometheus.CounterVec
	tokenRefreshes  *prometheus.CounterVec
	tokenRotations  prometheus.Counter
	statesSwept     prometheus.Counter
	httpStatus      *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voyage_logins_total",
			Help: "OAuthログイン試行の結果別合計数",
		}, []string{"result"}),
		stateConsumes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voyage_state_consume_total",
			Help: "stateトークン消費の結果別合計数",
		}, []string{"result"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voyage_token_refresh_total",
			Help: "アクセストークン再取得の結果別合計数",
		}, []string{"result"}),
		tokenRotations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voyage_token_rotation_total",
			Help: "リフレッシュトークンがローテーションされた回数",
		}),
		statesSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voyage_states_swept_total",
			Help: "期限切れで削除されたstateトークンの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voyage_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voyage_provider_latency_seconds",
			Help:    "プロバイダー呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	reg.MustRegister(
		c.logins,
		c.stateConsumes,
		c.tokenRefreshes,
		c.tokenRotations,
		c.statesSwept,
		c.httpStatus,
		c.providerLatency,
	)

	return c
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordStateConsume はstateトークン消費の結果を記録する。
func (c *Collector) RecordStateConsume(result string) {
	c.stateConsumes.WithLabelValues(result).Inc()
}

// RecordTokenRefresh はアクセストークン再取得の結果を記録する。
func (c *Collector) RecordTokenRefresh(success, rotated bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.tokenRefreshes.WithLabelValues(result).Inc()
	if rotated {
		c.tokenRotations.Inc()
	}
}

// RecordStatesSwept はスイープで削除したstate数を記録する。
func (c *Collector) RecordStatesSwept(count int64) {
	c.statesSwept.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordProviderLatency はプロバイダー呼び出しのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(operation string, duration time.Duration) {
	c.providerLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
