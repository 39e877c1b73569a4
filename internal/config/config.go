// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/hitoshi/linkpulse/internal/password"
	"github.com/hitoshi/linkpulse/internal/ratelimit"
)

// EnvironmentDevelopment は開発環境を示すENVIRONMENTの値。
const EnvironmentDevelopment = "development"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// Server
	Environment     string        `env:"ENVIRONMENT" envDefault:"production"`
	ServerPort      string        `env:"SERVER_PORT" envDefault:"8000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	TrustProxy      bool          `env:"TRUST_PROXY" envDefault:"false"`

	// Logging
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	// Session
	SessionCookieName    string        `env:"SESSION_COOKIE_NAME" envDefault:"session"`
	SessionDefaultTTL    time.Duration `env:"SESSION_DEFAULT_TTL" envDefault:"12h"`
	SessionRememberTTL   time.Duration `env:"SESSION_REMEMBER_TTL" envDefault:"336h"`
	TouchFlushInterval   time.Duration `env:"TOUCH_FLUSH_INTERVAL" envDefault:"0s"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1h"`

	// Rate Limit
	LoginRateLimit   ratelimit.Rate `env:"LOGIN_RATE_LIMIT" envDefault:"6/minute"`
	RateLimitGeneral int            `env:"RATE_LIMIT_GENERAL" envDefault:"120"` // 1分あたり

	// Password
	Argon2MemoryKiB       uint32        `env:"ARGON2_MEMORY_KIB" envDefault:"65536"`
	Argon2Iterations      uint32        `env:"ARGON2_ITERATIONS" envDefault:"3"`
	Argon2Parallelism     uint8         `env:"ARGON2_PARALLELISM" envDefault:"4"`
	PasswordRehashTimeout time.Duration `env:"PASSWORD_REHASH_TIMEOUT" envDefault:"10s"`

	// CORS（開発環境のみ有効）
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

// Load は.envファイル（存在する場合）と環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合や値が不正な場合はエラーを返す。
// 既に設定済みの環境変数は.envの値で上書きしない。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return parse(env.Options{})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.SessionDefaultTTL <= 0 {
		errs = append(errs, errors.New("SESSION_DEFAULT_TTL must be positive"))
	}
	if c.SessionRememberTTL < c.SessionDefaultTTL {
		errs = append(errs, errors.New("SESSION_REMEMBER_TTL must not be shorter than SESSION_DEFAULT_TTL"))
	}
	if c.TouchFlushInterval < 0 {
		errs = append(errs, errors.New("TOUCH_FLUSH_INTERVAL must not be negative"))
	}
	if c.RateLimitGeneral <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_GENERAL must be positive"))
	}
	if c.Argon2MemoryKiB == 0 || c.Argon2Iterations == 0 || c.Argon2Parallelism == 0 {
		errs = append(errs, errors.New("ARGON2_* parameters must be positive"))
	} else if err := c.PasswordParams().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ARGON2_* parameters: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// IsDevelopment は開発環境で動作しているかを返す。
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvironmentDevelopment
}

// CookieSecure はセッションCookieにSecure属性を付与するかを返す。
// 開発環境ではHTTPで動作させるため付与しない。
func (c *Config) CookieSecure() bool {
	return !c.IsDevelopment()
}

// PasswordParams はArgon2idのハッシュパラメータを返す。
func (c *Config) PasswordParams() password.Params {
	params := password.DefaultParams()
	params.MemoryKiB = c.Argon2MemoryKiB
	params.Iterations = c.Argon2Iterations
	params.Parallelism = c.Argon2Parallelism
	return params
}
