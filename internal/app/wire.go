package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/linkpulse/internal/auth"
	"github.com/hitoshi/linkpulse/internal/config"
	"github.com/hitoshi/linkpulse/internal/handler"
	"github.com/hitoshi/linkpulse/internal/metrics"
	"github.com/hitoshi/linkpulse/internal/middleware"
	"github.com/hitoshi/linkpulse/internal/password"
	"github.com/hitoshi/linkpulse/internal/ratelimit"
	"github.com/hitoshi/linkpulse/internal/repository"
	"github.com/hitoshi/linkpulse/internal/session"
	"github.com/hitoshi/linkpulse/internal/user"
)

// Services はリポジトリから組み立てたドメインサービス群。
// serve・worker・管理コマンドで共有する。
type Services struct {
	Users        repository.UserRepository
	Sessions     *session.Store
	Touches      *session.TouchBuffer // TOUCH_FLUSH_INTERVAL未設定時はnil
	Guard        *session.Guard
	Hasher       *password.Hasher
	Auth         *auth.Service
	Accounts     *user.Service
	LoginLimiter *ratelimit.Limiter
	Metrics      *metrics.Collector
	Registry     *prometheus.Registry
}

// NewServices は設定とリポジトリから全サービスをワイヤリングする。
func NewServices(cfg *config.Config, users repository.UserRepository, sessionRepo repository.SessionRepository) (*Services, error) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	var touches *session.TouchBuffer
	if cfg.TouchFlushInterval > 0 {
		touches = session.NewTouchBuffer(sessionRepo, cfg.TouchFlushInterval)
	}
	store := session.NewStore(sessionRepo, touches)
	hasher := password.New(cfg.PasswordParams())

	authService, err := auth.NewService(users, store, hasher, collector, auth.ServiceConfig{
		DefaultTTL:    cfg.SessionDefaultTTL,
		RememberTTL:   cfg.SessionRememberTTL,
		RehashTimeout: cfg.PasswordRehashTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}

	loginLimiter := ratelimit.New(cfg.LoginRateLimit)
	metrics.RegisterGaugeFunc(reg, "linkpulse_login_limiter_keys",
		"ログイン試行回数を追跡中のクライアント数",
		func() float64 { return float64(loginLimiter.Len()) })

	return &Services{
		Users:        users,
		Sessions:     store,
		Touches:      touches,
		Guard:        session.NewGuard(store),
		Hasher:       hasher,
		Auth:         authService,
		Accounts:     user.NewService(users, store, hasher),
		LoginLimiter: loginLimiter,
		Metrics:      collector,
		Registry:     reg,
	}, nil
}

// HTTPDeps はHTTPハンドラー構築時に外部から渡す運用系の依存関係。
type HTTPDeps struct {
	Logger          *slog.Logger
	HealthChecker   handler.HealthChecker
	MigrationStatus handler.MigrationStatusFunc
	Version         string
}

// NewHTTPHandler はServicesからAPIルーターを構築する。
// 返されたRateLimiterは終了時にStopを呼び出すこと。
func NewHTTPHandler(cfg *config.Config, svc *Services, deps HTTPDeps) (http.Handler, *middleware.RateLimiter) {
	rlConfig := middleware.DefaultRateLimiterConfig()
	// configのRateLimitGeneralはreq/min単位なのでreq/secに変換する
	rlConfig.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rlConfig.GeneralBurst = cfg.RateLimitGeneral
	rl := middleware.NewRateLimiter(rlConfig, svc.Metrics)
	metrics.RegisterGaugeFunc(svc.Registry, "linkpulse_general_limiter_users",
		"一般レート制限を追跡中のユーザー数",
		func() float64 { return float64(rl.LimiterCount()) })

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             deps.Logger,
		Development:        cfg.IsDevelopment(),
		TrustProxy:         cfg.TrustProxy,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		SessionValidator:   svc.Guard,
		UserFinder:         svc.Users,
		Cookie: middleware.SessionCookie{
			Name:   cfg.SessionCookieName,
			Secure: cfg.CookieSecure(),
		},
		LoginLimiter:    svc.LoginLimiter,
		RateLimiter:     rl,
		AuthService:     svc.Auth,
		HealthChecker:   deps.HealthChecker,
		MigrationStatus: deps.MigrationStatus,
		Version:         deps.Version,
		Metrics:         svc.Metrics,
		MetricsHandler:  metrics.Handler(svc.Registry),
	})

	return router, rl
}
