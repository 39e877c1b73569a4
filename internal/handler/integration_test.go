package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/linkpulse/internal/auth"
	"github.com/hitoshi/linkpulse/internal/middleware"
	"github.com/hitoshi/linkpulse/internal/model"
	"github.com/hitoshi/linkpulse/internal/password"
	"github.com/hitoshi/linkpulse/internal/ratelimit"
	"github.com/hitoshi/linkpulse/internal/repository"
	"github.com/hitoshi/linkpulse/internal/session"
)

// --- 統合テスト用のスタック構築 ---

type integrationStack struct {
	router   http.Handler
	users    *repository.MemoryUserRepo
	sessions *repository.MemorySessionRepo
	authSvc  *auth.Service
}

func newIntegrationStack(t *testing.T) *integrationStack {
	t.Helper()

	users := repository.NewMemoryUserRepo()
	sessions := repository.NewMemorySessionRepo()
	store := session.NewStore(sessions, nil)
	hasher := password.New(password.Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1})

	authSvc, err := auth.NewService(users, store, hasher, nil, auth.ServiceConfig{
		DefaultTTL:  12 * time.Hour,
		RememberTTL: 14 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(authSvc.Wait)

	hash, err := hasher.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	now := time.Now().UTC()
	if err := users.Create(context.Background(), &model.User{
		ID:           "user-alice",
		Email:        "alice@example.com",
		PasswordHash: hash,
		Status:       model.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		t.Fatalf("Create user failed: %v", err)
	}

	router := NewRouter(&RouterDeps{
		Logger:           slog.New(slog.NewJSONHandler(io.Discard, nil)),
		SessionValidator: session.NewGuard(store),
		UserFinder:       users,
		LoginLimiter:     ratelimit.New(ratelimit.Rate{Limit: 6, Window: time.Minute}),
		AuthService:      authSvc,
		Version:          "test",
	})

	return &integrationStack{router: router, users: users, sessions: sessions, authSvc: authSvc}
}

func (s *integrationStack) do(method, target, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.RemoteAddr = "198.51.100.20:40000"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *integrationStack) login(t *testing.T, rememberMe bool) *http.Cookie {
	t.Helper()
	body, _ := json.Marshal(map[string]any{
		"email":       "alice@example.com",
		"password":    "correct horse battery",
		"remember_me": rememberMe,
	})
	w := s.do(http.MethodPost, "/api/login", string(body), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}
	c := findCookie(w.Result(), middleware.DefaultSessionCookieName)
	if c == nil {
		t.Fatal("login did not set session cookie")
	}
	return c
}

// --- 統合テスト ---

// TestIntegration_LoginSessionLogout はログインからログアウトまでの一連の流れを検証する。
func TestIntegration_LoginSessionLogout(t *testing.T) {
	stack := newIntegrationStack(t)

	// 1. ログイン
	cookie := stack.login(t, false)
	if len(cookie.Value) != model.TokenLength {
		t.Errorf("token length = %d, want %d", len(cookie.Value), model.TokenLength)
	}
	if cookie.MaxAge != int((12 * time.Hour).Seconds()) {
		t.Errorf("MaxAge = %d, want %d", cookie.MaxAge, int((12 * time.Hour).Seconds()))
	}

	// 2. セッション確認
	w := stack.do(http.MethodGet, "/api/session", "", cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("session status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		User struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.User.Email != "alice@example.com" {
		t.Errorf("email = %q, want %q", body.User.Email, "alice@example.com")
	}

	// last_usedが記録される
	stored, _ := stack.sessions.FindByToken(context.Background(), cookie.Value)
	if stored == nil || stored.LastUsed == nil {
		t.Errorf("last_used should be recorded after use: %+v", stored)
	}

	// 3. ログアウト
	w = stack.do(http.MethodPost, "/api/logout", "", cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("logout status = %d, want %d", w.Code, http.StatusOK)
	}
	if c := findCookie(w.Result(), middleware.DefaultSessionCookieName); c == nil || c.MaxAge >= 0 {
		t.Errorf("logout should clear cookie: %+v", c)
	}

	// 4. ログアウト後のセッションは無効
	w = stack.do(http.MethodGet, "/api/session", "", cookie)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("session after logout status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	w = stack.do(http.MethodPost, "/api/logout", "", cookie)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("second logout status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// TestIntegration_RememberMe は長期セッションのCookie有効期間を検証する。
func TestIntegration_RememberMe(t *testing.T) {
	stack := newIntegrationStack(t)

	cookie := stack.login(t, true)
	if cookie.MaxAge != int((14 * 24 * time.Hour).Seconds()) {
		t.Errorf("MaxAge = %d, want %d", cookie.MaxAge, int((14 * 24 * time.Hour).Seconds()))
	}
}

// TestIntegration_LogoutAll は全セッションのログアウトを検証する。
func TestIntegration_LogoutAll(t *testing.T) {
	stack := newIntegrationStack(t)

	first := stack.login(t, false)
	second := stack.login(t, false)

	w := stack.do(http.MethodPost, "/api/logout?all=true", "", first)
	if w.Code != http.StatusOK {
		t.Fatalf("logout status = %d, want %d", w.Code, http.StatusOK)
	}

	if stack.sessions.Len() != 0 {
		t.Errorf("remaining sessions = %d, want 0", stack.sessions.Len())
	}
	w = stack.do(http.MethodGet, "/api/session", "", second)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("other session status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// TestIntegration_LoginFailuresAreIndistinguishable は未登録とパスワード不一致のレスポンスが同一であることを検証する。
func TestIntegration_LoginFailuresAreIndistinguishable(t *testing.T) {
	stack := newIntegrationStack(t)

	now := time.Now().UTC()
	if err := stack.users.Create(context.Background(), &model.User{
		ID:           "user-corrupt",
		Email:        "corrupt@example.com",
		PasswordHash: "$argon2id$v=19$broken",
		Status:       model.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		t.Fatalf("Create user failed: %v", err)
	}

	wrong := stack.do(http.MethodPost, "/api/login", `{"email":"alice@example.com","password":"nope"}`, nil)
	unknown := stack.do(http.MethodPost, "/api/login", `{"email":"nobody@example.com","password":"nope"}`, nil)
	corrupt := stack.do(http.MethodPost, "/api/login", `{"email":"corrupt@example.com","password":"nope"}`, nil)

	if wrong.Code != http.StatusUnauthorized || unknown.Code != http.StatusUnauthorized || corrupt.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d / %d / %d, want 401", wrong.Code, unknown.Code, corrupt.Code)
	}
	if !bytes.Equal(wrong.Body.Bytes(), unknown.Body.Bytes()) {
		t.Errorf("bodies differ:\n%s\n%s", wrong.Body.String(), unknown.Body.String())
	}
	if !bytes.Equal(wrong.Body.Bytes(), corrupt.Body.Bytes()) {
		t.Errorf("bodies differ:\n%s\n%s", wrong.Body.String(), corrupt.Body.String())
	}
	if stack.sessions.Len() != 0 {
		t.Errorf("no session should be created, got %d", stack.sessions.Len())
	}
}

// TestIntegration_LoginRateLimit は同一IPからの7回目のログイン試行が429になることを検証する。
func TestIntegration_LoginRateLimit(t *testing.T) {
	stack := newIntegrationStack(t)

	for i := 0; i < 6; i++ {
		w := stack.do(http.MethodPost, "/api/login", `{"email":"alice@example.com","password":"nope"}`, nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want %d", i+1, w.Code, http.StatusUnauthorized)
		}
	}

	// 正しいパスワードでも拒否される
	w := stack.do(http.MethodPost, "/api/login", `{"email":"alice@example.com","password":"correct horse battery"}`, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if stack.sessions.Len() != 0 {
		t.Errorf("rate limited login must not create a session, got %d", stack.sessions.Len())
	}
}

// TestIntegration_ExpiredSessionIsRevoked は期限切れセッションが401となり削除されることを検証する。
func TestIntegration_ExpiredSessionIsRevoked(t *testing.T) {
	stack := newIntegrationStack(t)

	created := time.Now().UTC().Add(-2 * time.Hour)
	expired := &model.Session{
		Token:     strings.Repeat("E", model.TokenLength),
		UserID:    "user-alice",
		CreatedAt: created,
		Expiry:    created.Add(time.Hour),
	}
	if err := stack.sessions.Create(context.Background(), expired); err != nil {
		t.Fatalf("Create session failed: %v", err)
	}

	w := stack.do(http.MethodGet, "/api/session", "",
		&http.Cookie{Name: middleware.DefaultSessionCookieName, Value: expired.Token})

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if c := findCookie(w.Result(), middleware.DefaultSessionCookieName); c == nil || c.MaxAge >= 0 {
		t.Errorf("expired session cookie should be cleared: %+v", c)
	}
	if found, _ := stack.sessions.FindByToken(context.Background(), expired.Token); found != nil {
		t.Error("expired session should be deleted")
	}
}

// TestIntegration_DeletedUserCannotLogin は論理削除済みユーザーのログインとセッションが拒否されることを検証する。
func TestIntegration_DeletedUserCannotLogin(t *testing.T) {
	stack := newIntegrationStack(t)
	cookie := stack.login(t, false)

	if err := stack.users.MarkDeleted(context.Background(), "user-alice", time.Now()); err != nil {
		t.Fatalf("MarkDeleted failed: %v", err)
	}

	w := stack.do(http.MethodGet, "/api/session", "", cookie)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("session status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	w = stack.do(http.MethodPost, "/api/login", `{"email":"alice@example.com","password":"correct horse battery"}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("login status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// TestIntegration_NoCookie は認証が必要なルートにCookieなしでアクセスすると401になることを検証する。
func TestIntegration_NoCookie(t *testing.T) {
	stack := newIntegrationStack(t)

	for _, tc := range []struct{ method, target string }{
		{http.MethodGet, "/api/session"},
		{http.MethodPost, "/api/logout"},
	} {
		w := stack.do(tc.method, tc.target, "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want %d", tc.method, tc.target, w.Code, http.StatusUnauthorized)
		}
	}
}
