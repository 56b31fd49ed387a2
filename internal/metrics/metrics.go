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
// 同期サービス・抽出サービス・ワーカーから利用する。
type MetricsCollector interface {
	RecordSyncItem(outcome string)
	RecordPriceDrop()
	RecordParse(method string)
	RecordParseFailure()
	RecordPriceCheckSuccess()
	RecordPriceCheckFailure()
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	syncItems         *prometheus.CounterVec
	priceDrops        prometheus.Counter
	parseResults      *prometheus.CounterVec
	parseFail         prometheus.Counter
	priceCheckSuccess prometheus.Counter
	priceCheckFail    prometheus.Counter
	httpStatus        *prometheus.CounterVec
	requestLatency    prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grabbit_sync_items_total",
			Help: "バッチ同期で処理されたアイテムの結果別合計数",
		}, []string{"outcome"}),
		priceDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grabbit_price_drops_total",
			Help: "検出された値下がりの合計数",
		}),
		parseResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grabbit_parse_total",
			Help: "商品抽出成功の手法別合計数",
		}, []string{"method"}),
		parseFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grabbit_parse_fail_total",
			Help: "商品抽出失敗の合計数",
		}),
		priceCheckSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grabbit_price_check_success_total",
			Help: "自動価格再チェック成功の合計数",
		}),
		priceCheckFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grabbit_price_check_fail_total",
			Help: "自動価格再チェック失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grabbit_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "grabbit_request_latency_seconds",
			Help:    "APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.syncItems,
		c.priceDrops,
		c.parseResults,
		c.parseFail,
		c.priceCheckSuccess,
		c.priceCheckFail,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordSyncItem はバッチ同期アイテムの処理結果（created/updated/skipped）を記録する。
func (c *Collector) RecordSyncItem(outcome string) {
	c.syncItems.WithLabelValues(outcome).Inc()
}

// RecordPriceDrop は値下がり検出を記録する。
func (c *Collector) RecordPriceDrop() {
	c.priceDrops.Inc()
}

// RecordParse は商品抽出成功を手法（heuristics/llm）別に記録する。
func (c *Collector) RecordParse(method string) {
	c.parseResults.WithLabelValues(method).Inc()
}

// RecordParseFailure は商品抽出失敗を記録する。
func (c *Collector) RecordParseFailure() {
	c.parseFail.Inc()
}

// RecordPriceCheckSuccess はワーカーの価格再チェック成功を記録する。
func (c *Collector) RecordPriceCheckSuccess() {
	c.priceCheckSuccess.Inc()
}

// RecordPriceCheckFailure はワーカーの価格再チェック失敗を記録する。
func (c *Collector) RecordPriceCheckFailure() {
	c.priceCheckFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はAPIリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
