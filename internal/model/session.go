package model

import (
	"fmt"
	"time"
)

const (
	// TokenLength はセッショントークンの文字数。
	TokenLength = 32
	// TokenAlphabet はセッショントークンに使用する62文字。
	TokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Session はユーザーのログインセッションを表す。
// 時刻はすべてUTCで保持する。
type Session struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	Expiry    time.Time
	LastUsed  *time.Time
}

// Validate は書き込み前にセッションの不変条件を検証する。
// DBのCHECK制約と同じ条件をアプリケーション側でも確認する。
func (s *Session) Validate() error {
	if len(s.Token) != TokenLength {
		return fmt.Errorf("session token must be %d characters, got %d", TokenLength, len(s.Token))
	}
	for i := 0; i < len(s.Token); i++ {
		if !isTokenChar(s.Token[i]) {
			return fmt.Errorf("session token contains invalid character at %d", i)
		}
	}
	if s.UserID == "" {
		return fmt.Errorf("session user ID is required")
	}
	if !s.Expiry.After(s.CreatedAt) {
		return fmt.Errorf("session expiry %s must be after created_at %s",
			s.Expiry.Format(time.RFC3339Nano), s.CreatedAt.Format(time.RFC3339Nano))
	}
	if s.LastUsed != nil && s.LastUsed.Before(s.CreatedAt) {
		return fmt.Errorf("session last_used must not precede created_at")
	}
	return nil
}

// ExpiresIn はnowから失効までの残り時間を返す。
func (s *Session) ExpiresIn(now time.Time) time.Duration {
	return s.Expiry.UTC().Sub(now.UTC())
}

func isTokenChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
