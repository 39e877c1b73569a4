package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/linkpulse/internal/model"
)

// MemorySessionRepo はプロセス内マップでセッションを保持するリポジトリ。
// テストおよびDBを持たない結合テストで使用する。
// PostgreSQL実装と同じ制約（トークン一意・CHECK制約相当）を検証する。
type MemorySessionRepo struct {
	mu       sync.Mutex
	sessions map[string]model.Session
}

// NewMemorySessionRepo はMemorySessionRepoを生成する。
func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{
		sessions: make(map[string]model.Session),
	}
}

func (r *MemorySessionRepo) Create(ctx context.Context, session *model.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := session.Validate(); err != nil {
		return fmt.Errorf("failed to create session: %w: %v", ErrConstraintViolation, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.Token]; exists {
		return fmt.Errorf("failed to create session: %w", ErrDuplicateToken)
	}
	r.sessions[session.Token] = copySession(session)
	return nil
}

func (r *MemorySessionRepo) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok {
		return nil, nil
	}
	found := copySession(&s)
	return &found, nil
}

func (r *MemorySessionRepo) UpdateLastUsed(ctx context.Context, token string, lastUsed time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok {
		return nil
	}
	if s.LastUsed != nil && !s.LastUsed.Before(lastUsed) {
		return nil
	}
	if lastUsed.Before(s.CreatedAt) {
		return fmt.Errorf("failed to update session last_used: %w", ErrConstraintViolation)
	}
	t := lastUsed.UTC()
	s.LastUsed = &t
	r.sessions[token] = s
	return nil
}

func (r *MemorySessionRepo) DeleteByToken(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, token)
	return nil
}

func (r *MemorySessionRepo) DeleteExpiredByToken(ctx context.Context, token string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok || !s.Expiry.Before(now) {
		return false, nil
	}
	delete(r.sessions, token)
	return true, nil
}

func (r *MemorySessionRepo) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for token, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, token)
			deleted++
		}
	}
	return deleted, nil
}

func (r *MemorySessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for token, s := range r.sessions {
		if s.Expiry.Before(now) {
			delete(r.sessions, token)
			deleted++
		}
	}
	return deleted, nil
}

// Len は保持しているセッション数を返す。
func (r *MemorySessionRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// copySession はLastUsedポインタを含めてセッションを複製する。
func copySession(s *model.Session) model.Session {
	c := *s
	if s.LastUsed != nil {
		t := *s.LastUsed
		c.LastUsed = &t
	}
	return c
}

// compile-time interface check
var _ SessionRepository = (*MemorySessionRepo)(nil)
