package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/linkpulse/internal/clientip"
	"github.com/hitoshi/linkpulse/internal/metrics"
)

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
// beforeHeaderはヘッダー送出直前に一度だけ呼ばれる。
type statusRecorder struct {
	http.ResponseWriter
	statusCode   int
	written      bool
	beforeHeader func(h http.Header)
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
		if sr.beforeHeader != nil {
			sr.beforeHeader(sr.Header())
		}
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.WriteHeader(http.StatusOK)
	}
	return sr.ResponseWriter.Write(b)
}

// LoggingConfig はアクセスログミドルウェアの設定。
type LoggingConfig struct {
	// Development がtrueの場合、X-Process-Timeヘッダーで処理時間を返す
	Development bool
	// TrustProxy がtrueの場合、クライアントIPをプロキシヘッダーから取得する
	TrustProxy bool
	// Metrics はステータスコード別のカウントを記録する。nilの場合は記録しない
	Metrics metrics.MetricsCollector
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_ms、request_id、マスク済みclient_ip、
// user_id（認証済みの場合）を含む。
func NewLoggingMiddleware(logger *slog.Logger, config LoggingConfig) func(next http.Handler) http.Handler {
	collector := config.Metrics
	if collector == nil {
		collector = metrics.NopCollector{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			if config.Development {
				rec.beforeHeader = func(h http.Header) {
					h.Set("X-Process-Time", fmt.Sprintf("%.6f", time.Since(start).Seconds()))
				}
			}

			// セッションガードは内側で動くため、ユーザーIDはsink経由で受け取る
			var userID string
			next.ServeHTTP(rec, r.WithContext(withUserIDSink(r.Context(), &userID)))

			duration := time.Since(start)
			durationMs := float64(duration.Nanoseconds()) / float64(time.Millisecond)
			collector.RecordHTTPStatus(rec.statusCode)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", durationMs),
				slog.String("client_ip", clientip.Mask(clientip.FromRequest(r, config.TrustProxy))),
			}
			if id := RequestIDFromContext(r.Context()); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}

			// ユーザーIDがコンテキストにある場合は追加
			if userID != "" {
				attrs = append(attrs, slog.String("user_id", userID))
			}

			// slogのログレベルをステータスコードに応じて変更
			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			logger.LogAttrs(r.Context(), level, "http_request", attrs...)
		})
	}
}
