// Package session はセッションのライフサイクル管理とリクエスト単位の検証を提供する。
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/linkpulse/internal/model"
	"github.com/hitoshi/linkpulse/internal/repository"
)

// maxTokenAttempts はトークン衝突時の生成試行回数の上限。
const maxTokenAttempts = 3

// ErrTokenExhausted はトークン生成が試行回数の上限に達したことを示す。
var ErrTokenExhausted = errors.New("session token generation exhausted retries")

// Store はセッションの作成・参照・失効・削除を担う。
// セッション行を変更するのはStoreのみ。
type Store struct {
	repo    repository.SessionRepository
	touches *TouchBuffer

	now           func() time.Time
	generateToken func() (string, error)
}

// NewStore はStoreを生成する。
// touchesがnilの場合、last_usedの更新は同期的に書き込む。
func NewStore(repo repository.SessionRepository, touches *TouchBuffer) *Store {
	return &Store{
		repo:          repo,
		touches:       touches,
		now:           time.Now,
		generateToken: GenerateToken,
	}
}

// Now はStoreが使用する現在時刻（UTC）を返す。
func (s *Store) Now() time.Time {
	return s.now().UTC()
}

// Create は新しいセッションを作成する。
// CreatedAtは現在時刻、Expiryは現在時刻+durationとなる。
// トークンが既存行と衝突した場合は再生成し、上限に達するとErrTokenExhaustedを返す。
// それ以外の制約違反はそのまま返す。
func (s *Store) Create(ctx context.Context, userID string, duration time.Duration) (*model.Session, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("session duration must be positive: %s", duration)
	}

	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		token, err := s.generateToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session token: %w", err)
		}

		now := s.Now()
		sess := &model.Session{
			Token:     token,
			UserID:    userID,
			CreatedAt: now,
			Expiry:    now.Add(duration),
		}
		if err := sess.Validate(); err != nil {
			return nil, fmt.Errorf("invalid session: %w", err)
		}

		err = s.repo.Create(ctx, sess)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, repository.ErrDuplicateToken) {
			return nil, err
		}

		slog.Warn("session token collision, regenerating",
			slog.String("user_id", userID),
			slog.Int("attempt", attempt),
		)
	}

	return nil, ErrTokenExhausted
}

// Get はトークンの完全一致でセッションを取得する。見つからない場合はnilを返す。
func (s *Store) Get(ctx context.Context, token string) (*model.Session, error) {
	if len(token) != model.TokenLength {
		return nil, nil
	}
	return s.repo.FindByToken(ctx, token)
}

// IsExpired はExpiryがnowより前であればtrueを返す。
// revokeがtrueで期限切れの場合、戻る前にセッションを削除する。
// 削除は期限切れ条件付きの単一ステートメントで行う。
func (s *Store) IsExpired(ctx context.Context, sess *model.Session, now time.Time, revoke bool) (bool, error) {
	if !sess.Expiry.UTC().Before(now.UTC()) {
		return false, nil
	}
	if !revoke {
		return true, nil
	}

	if _, err := s.repo.DeleteExpiredByToken(ctx, sess.Token, now.UTC()); err != nil {
		return true, fmt.Errorf("failed to revoke expired session: %w", err)
	}
	if s.touches != nil {
		s.touches.Forget(sess.Token)
	}
	return true, nil
}

// Touch はlast_usedをnowに更新する。
// last_usedは単調非減少であり、CreatedAtより前の時刻はCreatedAtに丸める。
// TouchBuffer設定時は書き込みを集約し、非同期にフラッシュする。
func (s *Store) Touch(ctx context.Context, sess *model.Session, now time.Time) error {
	t := now.UTC()
	if t.Before(sess.CreatedAt) {
		t = sess.CreatedAt.UTC()
	}
	if sess.LastUsed != nil && !t.After(*sess.LastUsed) {
		return nil
	}

	if s.touches != nil {
		s.touches.Add(sess.Token, t)
	} else if err := s.repo.UpdateLastUsed(ctx, sess.Token, t); err != nil {
		return err
	}

	sess.LastUsed = &t
	return nil
}

// Delete はセッションを削除する。
func (s *Store) Delete(ctx context.Context, sess *model.Session) error {
	if err := s.repo.DeleteByToken(ctx, sess.Token); err != nil {
		return err
	}
	if s.touches != nil {
		s.touches.Forget(sess.Token)
	}
	return nil
}

// DeleteAllForUser は指定ユーザーの全セッションを削除し、削除件数を返す。
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	return s.repo.DeleteByUserID(ctx, userID)
}

// DeleteExpired はnow時点で期限切れの全セッションを削除し、削除件数を返す。
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.DeleteExpired(ctx, now.UTC())
}
