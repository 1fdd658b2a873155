// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// モデルクライアントや推薦サービスから利用する。
type MetricsCollector interface {
	RecordRecommendation(source string)
	RecordModelLatency(duration time.Duration)
	RecordModelFailure(reason string)
	RecordHistorySaveFailure()
	SetModelBreakerState(state int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	recommendations    *prometheus.CounterVec
	modelLatency       prometheus.Histogram
	modelFailures      *prometheus.CounterVec
	historySaveFailure prometheus.Counter
	breakerState       prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "librarian_recommendations_total",
			Help: "推薦リクエストの合計数（提供経路別）",
		}, []string{"source"}),
		modelLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "librarian_model_request_duration_seconds",
			Help:    "モデルサービス呼び出しのレイテンシ（秒）",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		modelFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "librarian_model_failures_total",
			Help: "モデル経路の失敗の合計数（理由別）",
		}, []string{"reason"}),
		historySaveFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "librarian_history_save_failures_total",
			Help: "推薦履歴の保存失敗の合計数",
		}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "librarian_model_breaker_state",
			Help: "モデルサービス用サーキットブレーカーの状態（0=closed, 1=half-open, 2=open）",
		}),
	}

	reg.MustRegister(
		c.recommendations,
		c.modelLatency,
		c.modelFailures,
		c.historySaveFailure,
		c.breakerState,
	)

	return c
}

// RecordRecommendation は推薦を提供した経路を記録する。
func (c *Collector) RecordRecommendation(source string) {
	c.recommendations.WithLabelValues(source).Inc()
}

// RecordModelLatency はモデル呼び出し1回あたりのレイテンシを記録する。
func (c *Collector) RecordModelLatency(duration time.Duration) {
	c.modelLatency.Observe(duration.Seconds())
}

// RecordModelFailure はモデル経路の失敗を記録する。
func (c *Collector) RecordModelFailure(reason string) {
	c.modelFailures.WithLabelValues(reason).Inc()
}

// RecordHistorySaveFailure は推薦履歴の保存失敗を記録する。
func (c *Collector) RecordHistorySaveFailure() {
	c.historySaveFailure.Inc()
}

// SetModelBreakerState はサーキットブレーカーの状態を記録する。
func (c *Collector) SetModelBreakerState(state int) {
	c.breakerState.Set(float64(state))
}

// NopCollector は何も記録しないMetricsCollector。
// メトリクスを必要としないテストやコマンドで使用する。
type NopCollector struct{}

func (NopCollector) RecordRecommendation(string) {}
func (NopCollector) RecordModelLatency(time.Duration) {}
func (NopCollector) RecordModelFailure(string) {}
func (NopCollector) RecordHistorySaveFailure() {}
func (NopCollector) SetModelBreakerState(int) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
