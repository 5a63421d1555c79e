// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 書き込み拒否の理由ラベル
const (
	RejectPermission = "permission"
	RejectValidation = "validation"
)

// MetricsCollector はメトリクス収集のインターフェース。
// チャンネルサービス、HTTPミドルウェア、リレーワーカーから利用する。
type MetricsCollector interface {
	RecordMessagePosted()
	RecordPredictionPosted(withImage bool)
	RecordWriteRejected(reason string)
	RecordChannelLoad(duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordEventPublished(kind string)
	RecordEventFailure(dead bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	messagesPosted    prometheus.Counter
	predictionsPosted *prometheus.CounterVec
	writesRejected    *prometheus.CounterVec
	channelLoad       prometheus.Histogram
	httpStatus        *prometheus.CounterVec
	eventsPublished   *prometheus.CounterVec
	eventFailures     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		messagesPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vipchannel_messages_posted_total",
			Help: "投稿されたメッセージの合計数",
		}),
		predictionsPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vipchannel_predictions_posted_total",
			Help: "投稿されたVIP予想の合計数",
		}, []string{"with_image"}),
		writesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vipchannel_writes_rejected_total",
			Help: "拒否された書き込みの合計数（理由別）",
		}, []string{"reason"}),
		channelLoad: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vipchannel_channel_load_seconds",
			Help:    "チャンネル表示データの構築時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vipchannel_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vipchannel_events_published_total",
			Help: "Kafkaへ送信したチャンネルイベントの合計数",
		}, []string{"kind"}),
		eventFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vipchannel_event_failures_total",
			Help: "チャンネルイベント送信失敗の合計数",
		}, []string{"dead"}),
	}

	reg.MustRegister(
		c.messagesPosted,
		c.predictionsPosted,
		c.writesRejected,
		c.channelLoad,
		c.httpStatus,
		c.eventsPublished,
		c.eventFailures,
	)

	return c
}

// RecordMessagePosted はメッセージ投稿を記録する。
func (c *Collector) RecordMessagePosted() {
	c.messagesPosted.Inc()
}

// RecordPredictionPosted はVIP予想の投稿を記録する。
func (c *Collector) RecordPredictionPosted(withImage bool) {
	c.predictionsPosted.WithLabelValues(strconv.FormatBool(withImage)).Inc()
}

// RecordWriteRejected は書き込み拒否を記録する。
func (c *Collector) RecordWriteRejected(reason string) {
	c.writesRejected.WithLabelValues(reason).Inc()
}

// RecordChannelLoad はチャンネル表示データの構築時間を記録する。
func (c *Collector) RecordChannelLoad(duration time.Duration) {
	c.channelLoad.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordEventPublished はイベント送信成功を記録する。
func (c *Collector) RecordEventPublished(kind string) {
	c.eventsPublished.WithLabelValues(kind).Inc()
}

// RecordEventFailure はイベント送信失敗を記録する。
func (c *Collector) RecordEventFailure(dead bool) {
	c.eventFailures.WithLabelValues(strconv.FormatBool(dead)).Inc()
}

// Nop は何も記録しないMetricsCollector。メトリクス不要なコマンドやテストで使用する。
type Nop struct{}

func (Nop) RecordMessagePosted() {}
func (Nop) RecordPredictionPosted(bool) {}
func (Nop) RecordWriteRejected(string) {}
func (Nop) RecordChannelLoad(time.Duration) {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordEventPublished(string) {}
func (Nop) RecordEventFailure(bool) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
