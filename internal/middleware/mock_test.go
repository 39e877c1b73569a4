package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/hitoshi/linkpulse/internal/model"
	"github.com/hitoshi/linkpulse/internal/session"
)

// --- モック定義 ---

type mockSessionValidator struct {
	validateFn func(ctx context.Context, token string) (session.Validation, error)
}

func (m *mockSessionValidator) Validate(ctx context.Context, token string) (session.Validation, error) {
	if m.validateFn != nil {
		return m.validateFn(ctx, token)
	}
	return session.Validation{State: session.StateMissing}, nil
}

type mockUserFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return &model.User{ID: id, Email: id + "@example.com", Status: model.UserStatusActive}, nil
}

var validToken = strings.Repeat("a", model.TokenLength)

// validatorFor はvalidTokenのみを有効とするバリデーターを返す。
func validatorFor(userID string) *mockSessionValidator {
	return &mockSessionValidator{
		validateFn: func(ctx context.Context, token string) (session.Validation, error) {
			switch token {
			case "":
				return session.Validation{State: session.StateMissing}, nil
			case validToken:
				now := time.Now()
				return session.Validation{
					State: session.StateValid,
					Session: &model.Session{
						Token:     token,
						UserID:    userID,
						CreatedAt: now,
						Expiry:    now.Add(time.Hour),
					},
				}, nil
			default:
				return session.Validation{State: session.StateNotFound}, nil
			}
		},
	}
}
