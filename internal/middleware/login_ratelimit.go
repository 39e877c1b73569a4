package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/linkpulse/internal/clientip"
	"github.com/hitoshi/linkpulse/internal/metrics"
	"github.com/hitoshi/linkpulse/internal/ratelimit"
)

// AttemptLimiter はキーごとの試行回数制限インターフェース。
type AttemptLimiter interface {
	Hit(key string) ratelimit.Result
	Rate() ratelimit.Rate
}

// NewLoginRateLimitMiddleware はクライアントIPごとにログイン試行を制限するミドルウェアを返す。
// trustProxyがtrueの場合はX-Real-IPをキーにする。
// 拒否されたリクエストも試行として数えられる。
// 上限超過時は429とRetry-Afterヘッダーを返し、後続のハンドラーは呼ばない。
func NewLoginRateLimitMiddleware(limiter AttemptLimiter, trustProxy bool, collector metrics.MetricsCollector) func(next http.Handler) http.Handler {
	if collector == nil {
		collector = metrics.NopCollector{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientip.ForRateLimit(r, trustProxy)

			result := limiter.Hit(ip)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Rate().Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

			if !result.Allowed {
				collector.RecordRateLimited("login")
				writeRateLimitResponse(w, result.RetryAfter)
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", clientip.Mask(ip)),
					slog.String("limit_type", "login"),
					slog.String("request_id", RequestIDFromContext(r.Context())),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
