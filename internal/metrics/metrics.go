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
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordSignInSuccess()
	RecordSignInFailure()
	RecordTokenRefresh()
	RecordHabitCreated()
	RecordHabitToggled()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	signInSuccess  prometheus.Counter
	signInFail     prometheus.Counter
	tokenRefresh   prometheus.Counter
	habitsCreated  prometheus.Counter
	habitsToggled  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "habitman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "habitman_request_latency_seconds",
			Help:    "HTTPリクエスト処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		signInSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "habitman_signin_success_total",
			Help: "サインイン成功の合計数",
		}),
		signInFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "habitman_signin_fail_total",
			Help: "サインイン失敗の合計数",
		}),
		tokenRefresh: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "habitman_token_refresh_total",
			Help: "リフレッシュトークンによるセッション更新の合計数",
		}),
		habitsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "habitman_habits_created_total",
			Help: "作成された習慣の合計数",
		}),
		habitsToggled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "habitman_habits_toggled_total",
			Help: "完了フラグが切り替えられた回数の合計",
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.requestLatency,
		c.signInSuccess,
		c.signInFail,
		c.tokenRefresh,
		c.habitsCreated,
		c.habitsToggled,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理のレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordSignInSuccess はサインイン成功を記録する。
func (c *Collector) RecordSignInSuccess() {
	c.signInSuccess.Inc()
}

// RecordSignInFailure はサインイン失敗を記録する。
func (c *Collector) RecordSignInFailure() {
	c.signInFail.Inc()
}

// RecordTokenRefresh はトークンリフレッシュを記録する。
func (c *Collector) RecordTokenRefresh() {
	c.tokenRefresh.Inc()
}

// RecordHabitCreated は習慣の作成を記録する。
func (c *Collector) RecordHabitCreated() {
	c.habitsCreated.Inc()
}

// RecordHabitToggled は習慣の完了フラグ切り替えを記録する。
func (c *Collector) RecordHabitToggled() {
	c.habitsToggled.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Middleware はリクエストのステータスコードとレイテンシを記録するミドルウェアを返す。
func Middleware(collector MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			collector.RecordHTTPStatus(rec.statusCode)
			collector.RecordRequestLatency(time.Since(start))
		})
	}
}

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
