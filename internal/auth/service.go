// Package auth はメールアドレスとパスワードによるログイン・ログアウトを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/linkpulse/internal/metrics"
	"github.com/hitoshi/linkpulse/internal/model"
	"github.com/hitoshi/linkpulse/internal/repository"
	"github.com/hitoshi/linkpulse/internal/session"
)

// ErrInvalidCredentials はメールアドレス未登録とパスワード不一致の両方を表す。
// 呼び出し側はどちらの理由かを区別できない。
var ErrInvalidCredentials = errors.New("invalid email or password")

// dummyPassword はユーザー不在時のダミー検証に使うハッシュの元文字列。
const dummyPassword = "linkpulse-timing-equalization"

// PasswordHasher はパスワードハッシュの生成・検証インターフェース。
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
	// VerifyAndUpdate は検証に加え、ハッシュの更新が必要な場合に新しいハッシュを返す。
	VerifyAndUpdate(password, encoded string) (ok bool, newHash string, err error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	DefaultTTL    time.Duration // remember_meなしのセッション有効期間
	RememberTTL   time.Duration // remember_me指定時のセッション有効期間
	RehashTimeout time.Duration // ハッシュ更新の保存に許す時間
}

// DefaultServiceConfig は12時間/14日の標準設定を返す。
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		DefaultTTL:    12 * time.Hour,
		RememberTTL:   14 * 24 * time.Hour,
		RehashTimeout: 10 * time.Second,
	}
}

// LoginInput はログインの入力。
type LoginInput struct {
	Email      string
	Password   string
	RememberMe bool
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	User     *model.User
	Session  *model.Session
	Duration time.Duration
}

// Service はログイン・ログアウトのビジネスロジックを提供する。
type Service struct {
	users     repository.UserRepository
	sessions  *session.Store
	hasher    PasswordHasher
	metrics   metrics.MetricsCollector
	config    ServiceConfig
	dummyHash string

	rehashWG sync.WaitGroup
}

// NewService はServiceを生成する。
// ユーザー不在時の検証に使うダミーハッシュを、実ハッシュと同じパラメータでここで計算する。
func NewService(
	users repository.UserRepository,
	sessions *session.Store,
	hasher PasswordHasher,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) (*Service, error) {
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to compute dummy password hash: %w", err)
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	def := DefaultServiceConfig()
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = def.DefaultTTL
	}
	if config.RememberTTL <= 0 {
		config.RememberTTL = def.RememberTTL
	}
	if config.RehashTimeout <= 0 {
		config.RehashTimeout = def.RehashTimeout
	}

	return &Service{
		users:     users,
		sessions:  sessions,
		hasher:    hasher,
		metrics:   collector,
		config:    config,
		dummyHash: dummyHash,
	}, nil
}

// SessionDuration はremember_meに応じたセッション有効期間を返す。
func (s *Service) SessionDuration(rememberMe bool) time.Duration {
	if rememberMe {
		return s.config.RememberTTL
	}
	return s.config.DefaultTTL
}

// Login はメールアドレスとパスワードを検証し、セッションを作成する。
// 認証失敗時は理由によらずErrInvalidCredentialsを返す。
// ユーザーが存在しない場合もダミーハッシュで検証を行い、処理時間を揃える。
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	start := time.Now()
	defer func() { s.metrics.RecordLoginLatency(time.Since(start)) }()

	email := NormalizeEmail(in.Email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginError)
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if !user.IsActive() {
		_, _ = s.hasher.Verify(in.Password, s.dummyHash)
		s.metrics.RecordLogin(metrics.LoginInvalidCredentials)
		reason := "unknown_email"
		if user != nil {
			reason = "inactive_user"
		}
		slog.Info("login failed", slog.String("reason", reason))
		return nil, ErrInvalidCredentials
	}

	ok, newHash, err := s.hasher.VerifyAndUpdate(in.Password, user.PasswordHash)
	if err != nil && !ok {
		// 保存済みハッシュの破損はログに残し、応答は認証失敗と区別しない
		s.metrics.RecordLogin(metrics.LoginError)
		slog.Error("failed to verify password",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		// 検証は成功しハッシュ更新のみ失敗した
		slog.Warn("password rehash failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordPasswordRehash(false)
	}
	if !ok {
		s.metrics.RecordLogin(metrics.LoginInvalidCredentials)
		slog.Info("login failed",
			slog.String("reason", "wrong_password"),
			slog.String("user_id", user.ID),
		)
		return nil, ErrInvalidCredentials
	}

	if newHash != "" {
		s.persistRehash(ctx, user.ID, newHash)
	}

	duration := s.SessionDuration(in.RememberMe)
	sess, err := s.sessions.Create(ctx, user.ID, duration)
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginError)
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.metrics.RecordLogin(metrics.LoginSuccess)
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.Bool("remember_me", in.RememberMe),
		slog.Time("expiry", sess.Expiry),
	)

	return &LoginResult{User: user, Session: sess, Duration: duration}, nil
}

// persistRehash は更新後のハッシュをバックグラウンドで保存する。
// ログインのレスポンスは保存完了を待たない。
func (s *Service) persistRehash(ctx context.Context, userID, newHash string) {
	s.rehashWG.Add(1)
	go func() {
		defer s.rehashWG.Done()

		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.RehashTimeout)
		defer cancel()

		if err := s.users.UpdatePasswordHash(bgCtx, userID, newHash, time.Now()); err != nil {
			s.metrics.RecordPasswordRehash(false)
			slog.Error("failed to persist upgraded password hash",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			return
		}
		s.metrics.RecordPasswordRehash(true)
		slog.Info("password hash upgraded", slog.String("user_id", userID))
	}()
}

// Wait は保留中のハッシュ更新がすべて完了するまで待つ。
// シャットダウン時およびテストで使用する。
func (s *Service) Wait() {
	s.rehashWG.Wait()
}

// Logout は現在のセッションを削除する。allがtrueの場合はユーザーの全セッションを削除する。
// 削除したセッション数を返す。
func (s *Service) Logout(ctx context.Context, sess *model.Session, all bool) (int64, error) {
	if sess == nil {
		return 0, fmt.Errorf("session is required")
	}

	var count int64
	if all {
		n, err := s.sessions.DeleteAllForUser(ctx, sess.UserID)
		if err != nil {
			return 0, fmt.Errorf("failed to delete user sessions: %w", err)
		}
		count = n
	} else {
		if err := s.sessions.Delete(ctx, sess); err != nil {
			return 0, fmt.Errorf("failed to delete session: %w", err)
		}
		count = 1
	}

	s.metrics.RecordLogout(all, count)
	slog.Info("user logged out",
		slog.String("user_id", sess.UserID),
		slog.Bool("all", all),
		slog.Int64("sessions_deleted", count),
	)
	return count, nil
}
