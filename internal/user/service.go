// Package user はユーザー管理のドメインロジックを提供する。
// 登録と退会（論理削除）は管理コマンドから呼び出される。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/linkpulse/internal/auth"
	"github.com/hitoshi/linkpulse/internal/model"
	"github.com/hitoshi/linkpulse/internal/repository"
)

// ErrUserNotFound は対象ユーザーが存在しないことを示す。
var ErrUserNotFound = errors.New("user not found")

// ValidationError は登録入力の検証エラー。
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid user input: %v", e.Fields)
}

// PasswordHasher はパスワードハッシュの生成インターフェース。
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// SessionRevoker はユーザーの全セッション削除インターフェース。
type SessionRevoker interface {
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo repository.UserRepository
	sessions SessionRevoker
	hasher   PasswordHasher
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, sessions SessionRevoker, hasher PasswordHasher) *Service {
	return &Service{
		userRepo: userRepo,
		sessions: sessions,
		hasher:   hasher,
		now:      time.Now,
	}
}

// Register はユーザーを登録する。
// メールアドレスは正規化して保存する。重複時はrepository.ErrDuplicateEmailを返す。
func (s *Service) Register(ctx context.Context, email, password string) (*model.User, error) {
	if fields := auth.ValidateCredentials(email, password); fields != nil {
		return nil, &ValidationError{Fields: fields}
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	now := s.now().UTC()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        auth.NormalizeEmail(email),
		PasswordHash: hash,
		Status:       model.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("ユーザーを登録しました",
		slog.String("user_id", user.ID),
	)
	return user, nil
}

// Withdraw はユーザーの退会処理を実行する。
// ユーザー行は論理削除として残し、全セッションを削除する。
// 論理削除済みのユーザーはログインできない。
func (s *Service) Withdraw(ctx context.Context, email string) error {
	user, err := s.userRepo.FindByEmail(ctx, auth.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return ErrUserNotFound
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", user.ID),
	)

	// 1. 論理削除（以降のログインを拒否）
	if err := s.userRepo.MarkDeleted(ctx, user.ID, s.now()); err != nil {
		return fmt.Errorf("ユーザーの論理削除に失敗しました: %w", err)
	}

	// 2. セッションを削除
	count, err := s.sessions.DeleteAllForUser(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", user.ID),
		slog.Int64("sessions_deleted", count),
	)

	return nil
}
