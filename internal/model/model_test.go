package model

import (
	"strings"
	"testing"
	"time"
)

func TestSession_Validate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	before := now.Add(-time.Minute)
	valid := func() *Session {
		return &Session{
			Token:     strings.Repeat("a", TokenLength),
			UserID:    "user-1",
			CreatedAt: now,
			Expiry:    now.Add(time.Hour),
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid session rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(s *Session)
	}{
		{"短いトークン", func(s *Session) { s.Token = "abc" }},
		{"記号を含むトークン", func(s *Session) { s.Token = strings.Repeat("a", TokenLength-1) + "_" }},
		{"ユーザーIDなし", func(s *Session) { s.UserID = "" }},
		{"expiryがcreated_atと同じ", func(s *Session) { s.Expiry = s.CreatedAt }},
		{"last_usedがcreated_atより前", func(s *Session) { s.LastUsed = &before }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			if err := s.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestSession_ExpiresIn(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &Session{Expiry: now.Add(90 * time.Minute)}

	if got := s.ExpiresIn(now); got != 90*time.Minute {
		t.Errorf("ExpiresIn = %v, want %v", got, 90*time.Minute)
	}
	if got := s.ExpiresIn(now.Add(2 * time.Hour)); got >= 0 {
		t.Errorf("ExpiresIn after expiry = %v, want negative", got)
	}
}

func TestUser_IsActive(t *testing.T) {
	deletedAt := time.Now()
	tests := []struct {
		name string
		user *User
		want bool
	}{
		{"有効", &User{Status: UserStatusActive}, true},
		{"論理削除済み", &User{Status: UserStatusDeleted, DeletedAt: &deletedAt}, false},
		{"状態は有効だがdeleted_atあり", &User{Status: UserStatusActive, DeletedAt: &deletedAt}, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.IsActive(); got != tt.want {
				t.Errorf("IsActive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAPIError_Constructors(t *testing.T) {
	tests := []struct {
		err      *APIError
		code     string
		category string
	}{
		{NewInvalidCredentialsError(), ErrCodeInvalidCredentials, "auth"},
		{NewUnauthorizedError(), ErrCodeUnauthorized, "auth"},
		{NewValidationError(map[string]string{"email": "x"}), ErrCodeValidationFailed, "validation"},
		{NewRateLimitError(), ErrCodeRateLimitExceeded, "rate_limit"},
	}

	for _, tt := range tests {
		if tt.err.Code != tt.code || tt.err.Category != tt.category {
			t.Errorf("got %s/%s, want %s/%s", tt.err.Code, tt.err.Category, tt.code, tt.category)
		}
		if tt.err.Message == "" || tt.err.Action == "" {
			t.Errorf("%s: message and action must be set", tt.code)
		}
		if !strings.Contains(tt.err.Error(), tt.code) {
			t.Errorf("Error() = %q, should contain code", tt.err.Error())
		}
	}
}
