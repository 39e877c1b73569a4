// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン結果のラベル値
const (
	LoginSuccess            = "success"
	LoginInvalidCredentials = "invalid_credentials"
	LoginError              = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービス、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordLogin(result string)
	RecordLoginLatency(duration time.Duration)
	RecordLogout(all bool, sessions int64)
	RecordSessionValidation(state string)
	RecordRateLimited(scope string)
	RecordPasswordRehash(success bool)
	RecordSessionsSwept(count int64)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins            *prometheus.CounterVec
	loginLatency      prometheus.Histogram
	logouts           *prometheus.CounterVec
	sessionsRevoked   prometheus.Counter
	sessionValidation *prometheus.CounterVec
	rateLimited       *prometheus.CounterVec
	passwordRehash    *prometheus.CounterVec
	sessionsSwept     prometheus.Counter
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkpulse_login_attempts_total",
			Help: "結果別のログイン試行数",
		}, []string{"result"}),
		loginLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "linkpulse_login_duration_seconds",
			Help:    "ログイン処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkpulse_logouts_total",
			Help: "スコープ別のログアウト数",
		}, []string{"scope"}),
		sessionsRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkpulse_logout_sessions_deleted_total",
			Help: "ログアウトで削除されたセッションの合計数",
		}),
		sessionValidation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkpulse_session_validations_total",
			Help: "判定結果別のセッション検証数",
		}, []string{"state"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkpulse_rate_limited_total",
			Help: "レート制限で拒否されたリクエスト数",
		}, []string{"scope"}),
		passwordRehash: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkpulse_password_rehash_total",
			Help: "パスワードハッシュ更新の実行数",
		}, []string{"result"}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkpulse_sessions_swept_total",
			Help: "定期クリーンアップで削除された期限切れセッションの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkpulse_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.logins,
		c.loginLatency,
		c.logouts,
		c.sessionsRevoked,
		c.sessionValidation,
		c.rateLimited,
		c.passwordRehash,
		c.sessionsSwept,
		c.httpStatus,
	)

	return c
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordLoginLatency はログイン処理のレイテンシを記録する。
func (c *Collector) RecordLoginLatency(duration time.Duration) {
	c.loginLatency.Observe(duration.Seconds())
}

// RecordLogout はログアウトと削除したセッション数を記録する。
func (c *Collector) RecordLogout(all bool, sessions int64) {
	scope := "current"
	if all {
		scope = "all"
	}
	c.logouts.WithLabelValues(scope).Inc()
	c.sessionsRevoked.Add(float64(sessions))
}

// RecordSessionValidation はセッション検証の判定結果を記録する。
func (c *Collector) RecordSessionValidation(state string) {
	c.sessionValidation.WithLabelValues(state).Inc()
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(scope string) {
	c.rateLimited.WithLabelValues(scope).Inc()
}

// RecordPasswordRehash はパスワードハッシュ更新の結果を記録する。
func (c *Collector) RecordPasswordRehash(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.passwordRehash.WithLabelValues(result).Inc()
}

// RecordSessionsSwept は定期クリーンアップで削除したセッション数を記録する。
func (c *Collector) RecordSessionsSwept(count int64) {
	c.sessionsSwept.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RegisterGaugeFunc は呼び出し時に値を評価するゲージを登録する。
// レートリミッターの追跡キー数など、外部コンポーネントの状態公開に使用する。
func RegisterGaugeFunc(reg prometheus.Registerer, name, help string, fn func() float64) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	}, fn))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type NopCollector struct{}

func (NopCollector) RecordLogin(string) {}
func (NopCollector) RecordLoginLatency(time.Duration) {}
func (NopCollector) RecordLogout(bool, int64) {}
func (NopCollector) RecordSessionValidation(string) {}
func (NopCollector) RecordRateLimited(string) {}
func (NopCollector) RecordPasswordRehash(bool) {}
func (NopCollector) RecordSessionsSwept(int64) {}
func (NopCollector) RecordHTTPStatus(int) {}

// compile-time interface checks
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
