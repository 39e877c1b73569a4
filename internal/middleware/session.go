// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/linkpulse/internal/metrics"
	"github.com/hitoshi/linkpulse/internal/model"
	"github.com/hitoshi/linkpulse/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	sessionContextKey    = contextKey("session")
	userContextKey       = contextKey("user")
	userIDSinkContextKey = contextKey("user_id_sink")
)

// SessionValidator はセッショントークンの検証インターフェース。
type SessionValidator interface {
	Validate(ctx context.Context, token string) (session.Validation, error)
}

// UserFinder はユーザーの検索に必要なインターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// NewSessionGuard はCookieのセッショントークンを検証するミドルウェアを返す。
// 有効なセッションの場合、セッションとユーザーをリクエストコンテキストに注入する。
// requiredがtrueの場合、欠落・不明・期限切れのセッションには401を返す。
// falseの場合はセッションなしで後続に進む。
// 不明・期限切れのトークンが送られてきた場合はCookieを削除する。
func NewSessionGuard(
	validator SessionValidator,
	users UserFinder,
	cookie SessionCookie,
	required bool,
	collector metrics.MetricsCollector,
) func(next http.Handler) http.Handler {
	if collector == nil {
		collector = metrics.NopCollector{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			// 1. Cookieからトークンを取得して検証
			v, err := validator.Validate(ctx, cookie.Read(r))
			if err != nil {
				slog.Error("failed to validate session",
					slog.String("request_id", RequestIDFromContext(ctx)),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			// 2. 有効なセッションのユーザーを解決
			var user *model.User
			if v.State == session.StateValid {
				user, err = users.FindByID(ctx, v.Session.UserID)
				if err != nil {
					slog.Error("failed to find session user",
						slog.String("request_id", RequestIDFromContext(ctx)),
						slog.String("error", err.Error()),
					)
					WriteInternalServerError(w)
					return
				}
				// 退会済み・不在のユーザーは不明なセッションとして扱う
				if !user.IsActive() {
					v = session.Validation{State: session.StateNotFound}
				}
			}
			collector.RecordSessionValidation(v.State.String())

			if v.State == session.StateValid {
				if sink, ok := ctx.Value(userIDSinkContextKey).(*string); ok {
					*sink = v.Session.UserID
				}
				next.ServeHTTP(w, r.WithContext(ContextWithSession(ctx, v.Session, user)))
				return
			}

			if v.State == session.StateNotFound || v.State == session.StateExpired {
				cookie.Clear(w)
			}
			if required {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
// セッションガードを通過した有効なリクエストでのみ値が存在する。
func SessionFromContext(ctx context.Context) (*model.Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(*model.Session)
	return s, ok && s != nil
}

// UserFromContext はリクエストコンテキストからユーザーを取得する。
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userContextKey).(*model.User)
	return u, ok && u != nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションガードを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	s, ok := SessionFromContext(ctx)
	if !ok || s.UserID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return s.UserID, nil
}

// withUserIDSink は認証済みユーザーIDの書き込み先をコンテキストに登録する。
// 外側のアクセスログが内側のセッションガードの結果を参照するために使う。
func withUserIDSink(ctx context.Context, sink *string) context.Context {
	return context.WithValue(ctx, userIDSinkContextKey, sink)
}

// ContextWithSession はコンテキストにセッションとユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, s *model.Session, u *model.User) context.Context {
	ctx = context.WithValue(ctx, sessionContextKey, s)
	return context.WithValue(ctx, userContextKey, u)
}
