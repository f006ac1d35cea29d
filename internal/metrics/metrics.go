// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// APIクライアント、認証状態機械、オフラインキューから利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method, path string, statusCode int, duration time.Duration)
	RecordConfirmAttempt(result string)
	RecordBootstrap(success bool)
	RecordFlush(result string)
	RecordEventsFlushed(count int)
	RecordMalformedEvents(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests    *prometheus.CounterVec
	httpLatency     prometheus.Histogram
	confirmAttempts *prometheus.CounterVec
	bootstrap       *prometheus.CounterVec
	flush           *prometheus.CounterVec
	eventsFlushed   prometheus.Counter
	eventsMalformed prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codetime_http_requests_total",
			Help: "セッションサービスへのリクエスト数（ステータスコード別、0は通信エラー）",
		}, []string{"method", "path", "status"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "codetime_http_request_duration_seconds",
			Help:    "セッションサービスへのリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		confirmAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codetime_confirm_attempts_total",
			Help: "プラグイントークン確認の試行数（結果別）",
		}, []string{"result"}),
		bootstrap: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codetime_bootstrap_total",
			Help: "匿名ユーザー作成の試行数（結果別）",
		}, []string{"result"}),
		flush: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codetime_flush_total",
			Help: "オフラインイベントログのフラッシュ回数（結果別）",
		}, []string{"result"}),
		eventsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codetime_events_flushed_total",
			Help: "バッチ送信が受け付けられたイベントの合計数",
		}),
		eventsMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codetime_events_malformed_total",
			Help: "パースできずに除外したイベント行の合計数",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.confirmAttempts,
		c.bootstrap,
		c.flush,
		c.eventsFlushed,
		c.eventsMalformed,
	)

	return c
}

// RecordHTTPRequest はリクエスト結果とレイテンシを記録する。
// パスはクエリを除き、数値セグメントを {id} に正規化してラベルの種類数を抑える。
func (c *Collector) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, NormalizePath(path), strconv.Itoa(statusCode)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

// RecordConfirmAttempt はトークン確認の試行を記録する。
func (c *Collector) RecordConfirmAttempt(result string) {
	c.confirmAttempts.WithLabelValues(result).Inc()
}

// RecordBootstrap は匿名ユーザー作成の結果を記録する。
func (c *Collector) RecordBootstrap(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.bootstrap.WithLabelValues(result).Inc()
}

// RecordFlush はフラッシュの結果を記録する。
func (c *Collector) RecordFlush(result string) {
	c.flush.WithLabelValues(result).Inc()
}

// RecordEventsFlushed は送信が受け付けられたイベント数を記録する。
func (c *Collector) RecordEventsFlushed(count int) {
	c.eventsFlushed.Add(float64(count))
}

// RecordMalformedEvents は除外したイベント行数を記録する。
func (c *Collector) RecordMalformedEvents(count int) {
	c.eventsMalformed.Add(float64(count))
}

// NormalizePath はメトリクスラベル用にリクエストパスを正規化する。
func NormalizePath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if _, err := strconv.ParseInt(seg, 10, 64); err == nil {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}
func (Nop) RecordConfirmAttempt(string) {}
func (Nop) RecordBootstrap(bool) {}
func (Nop) RecordFlush(string) {}
func (Nop) RecordEventsFlushed(int) {}
func (Nop) RecordMalformedEvents(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
