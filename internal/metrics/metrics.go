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
// ハンドラー、インタープリタ、エグゼキュータ、セッション層から利用する。
type MetricsCollector interface {
	ObserveCommand(action, outcome string)
	ObserveLLM(outcome string, d time.Duration)
	RecordSessionRejection(reason string)
	RecordOAuthLogin(outcome string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	commands          *prometheus.CounterVec
	llmRequests       *prometheus.CounterVec
	llmLatency        prometheus.Histogram
	sessionRejections *prometheus.CounterVec
	oauthLogins       *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calmate_commands_total",
			Help: "アクション・結果別のカレンダーコマンド実行数",
		}, []string{"action", "outcome"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calmate_llm_requests_total",
			Help: "結果種別（json, chat, error）別のLLM呼び出し数",
		}, []string{"outcome"}),
		llmLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "calmate_llm_latency_seconds",
			Help:    "LLM呼び出しのレイテンシ（秒）",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
		sessionRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calmate_session_rejections_total",
			Help: "理由別のセッショントークン拒否数",
		}, []string{"reason"}),
		oauthLogins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calmate_oauth_logins_total",
			Help: "結果別のOAuthログイン数",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calmate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.commands,
		c.llmRequests,
		c.llmLatency,
		c.sessionRejections,
		c.oauthLogins,
		c.httpStatus,
	)

	return c
}

// ObserveCommand はコマンド1件の実行結果を記録する。
func (c *Collector) ObserveCommand(action, outcome string) {
	c.commands.WithLabelValues(action, outcome).Inc()
}

// ObserveLLM はLLM呼び出しの結果とレイテンシを記録する。
func (c *Collector) ObserveLLM(outcome string, d time.Duration) {
	c.llmRequests.WithLabelValues(outcome).Inc()
	c.llmLatency.Observe(d.Seconds())
}

// RecordSessionRejection はセッショントークンの拒否理由を記録する。
func (c *Collector) RecordSessionRejection(reason string) {
	c.sessionRejections.WithLabelValues(reason).Inc()
}

// RecordOAuthLogin はOAuthコールバックの結果を記録する。
func (c *Collector) RecordOAuthLogin(outcome string) {
	c.oauthLogins.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// メトリクス用ポートで公開し、アプリケーションのルーターとは分離する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
