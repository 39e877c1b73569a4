package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/linkpulse/internal/metrics"
	"github.com/hitoshi/linkpulse/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	Development        bool
	TrustProxy         bool
	CORSAllowedOrigins []string
	SessionValidator   middleware.SessionValidator
	UserFinder         middleware.UserFinder
	Cookie             middleware.SessionCookie
	LoginLimiter       middleware.AttemptLimiter
	RateLimiter        *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface

	// 運用
	HealthChecker   HealthChecker
	MigrationStatus MigrationStatusFunc
	Version         string
	Metrics         metrics.MetricsCollector
	MetricsHandler  http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS(開発時のみ)
//	  POST /api/login:   LoginRateLimit
//	  認証が必要なルート: SessionGuard → RateLimit(General)
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, middleware.LoggingConfig{
		Development: deps.Development,
		TrustProxy:  deps.TrustProxy,
		Metrics:     deps.Metrics,
	}))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	if deps.Development && len(deps.CORSAllowedOrigins) > 0 {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))
	}

	authHandler := NewAuthHandler(deps.AuthService, AuthHandlerConfig{Cookie: deps.Cookie})
	systemHandler := NewSystemHandler(deps.HealthChecker, deps.MigrationStatus, deps.Version)

	// --- 認証不要のルート ---
	r.Get("/health", systemHandler.Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", systemHandler.Version)
		r.Get("/migration", systemHandler.Migration)

		// POST /api/login - クライアントIPごとの試行回数制限を適用
		login := r.With()
		if deps.LoginLimiter != nil {
			login = r.With(middleware.NewLoginRateLimitMiddleware(deps.LoginLimiter, deps.TrustProxy, deps.Metrics))
		}
		login.Post("/login", authHandler.Login)

		// --- 認証が必要なルート ---
		// ミドルウェアスタック: SessionGuard → RateLimit(General)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionGuard(deps.SessionValidator, deps.UserFinder, deps.Cookie, true, deps.Metrics))
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.GeneralMiddleware())
			}

			r.Post("/logout", authHandler.Logout)
			r.Get("/session", authHandler.Session)
		})
	})

	return r
}
