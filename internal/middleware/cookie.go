package middleware

import (
	"net/http"
	"time"
)

// DefaultSessionCookieName はセッションCookieの既定名。
const DefaultSessionCookieName = "session"

// SessionCookie はセッショントークンを運ぶCookieの設定。
// HttpOnly、Path=/、SameSite=Laxで発行する。
type SessionCookie struct {
	Name   string
	Secure bool
}

func (c SessionCookie) name() string {
	if c.Name == "" {
		return DefaultSessionCookieName
	}
	return c.Name
}

// Read はリクエストからセッショントークンを読み取る。Cookieがない場合は空文字列を返す。
func (c SessionCookie) Read(r *http.Request) string {
	cookie, err := r.Cookie(c.name())
	if err != nil {
		return ""
	}
	return cookie.Value
}

// Set はセッショントークンをCookieに設定する。Max-Ageはセッションの有効期間に合わせる。
func (c SessionCookie) Set(w http.ResponseWriter, token string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear はセッションCookieを削除する。
func (c SessionCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
