// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/linkpulse/internal/auth"
	"github.com/hitoshi/linkpulse/internal/middleware"
	"github.com/hitoshi/linkpulse/internal/model"
)

// maxLoginBodyBytes はログインリクエストボディの上限。
const maxLoginBodyBytes = 4 << 10

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, in auth.LoginInput) (*auth.LoginResult, error)
	Logout(ctx context.Context, s *model.Session, all bool) (int64, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	Cookie middleware.SessionCookie
}

// AuthHandler はログイン・ログアウト関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type loginResponse struct {
	Email  string    `json:"email"`
	Expiry time.Time `json:"expiry"`
}

// Login はメールアドレスとパスワードでログインし、セッションCookieを発行する。
// POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	// 1. リクエストボディの解析
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBodyBytes)).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnprocessableEntity, model.NewValidationError(map[string]string{
			"body": "JSON形式のリクエストボディが必要です。",
		}))
		return
	}

	// 2. 入力形式の検証
	if fields := auth.ValidateCredentials(req.Email, req.Password); fields != nil {
		middleware.WriteErrorResponse(w, http.StatusUnprocessableEntity, model.NewValidationError(fields))
		return
	}

	// 3. 認証とセッション作成
	result, err := h.service.Login(r.Context(), auth.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: req.RememberMe,
	})
	if errors.Is(err, auth.ErrInvalidCredentials) {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
		return
	}
	if err != nil {
		slog.Error("login failed",
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	// 4. セッションCookieを設定（HTTP Only）
	h.config.Cookie.Set(w, result.Session.Token, result.Duration)

	writeJSON(w, http.StatusOK, loginResponse{
		Email:  result.User.Email,
		Expiry: result.Session.Expiry,
	})
}

// Logout は現在のセッションを破棄する。?all=true の場合は同じユーザーの全セッションを破棄する。
// POST /api/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	all := false
	if v := r.URL.Query().Get("all"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			middleware.WriteErrorResponse(w, http.StatusUnprocessableEntity, model.NewValidationError(map[string]string{
				"all": "true または false を指定してください。",
			}))
			return
		}
		all = parsed
	}

	if _, err := h.service.Logout(r.Context(), sess, all); err != nil {
		slog.Error("logout failed",
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("user_id", sess.UserID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	h.config.Cookie.Clear(w)
	w.WriteHeader(http.StatusOK)
}

// Session は現在のログインユーザー情報を返す。
// GET /api/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]string{
			"email": user.Email,
		},
	})
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
