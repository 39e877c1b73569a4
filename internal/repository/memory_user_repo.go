package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/linkpulse/internal/model"
)

// MemoryUserRepo はプロセス内マップでユーザーを保持するリポジトリ。
type MemoryUserRepo struct {
	mu      sync.RWMutex
	byID    map[string]*model.User
	byEmail map[string]string
}

// NewMemoryUserRepo はMemoryUserRepoを生成する。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		byID:    make(map[string]*model.User),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	found := *u
	return &found, nil
}

func (r *MemoryUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, nil
	}
	found := *r.byID[id]
	return &found, nil
}

func (r *MemoryUserRepo) Create(ctx context.Context, user *model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(user.Email) > model.MaxEmailLength {
		return fmt.Errorf("failed to insert user: %w: email too long", ErrConstraintViolation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[user.Email]; exists {
		return fmt.Errorf("failed to insert user: %w", ErrDuplicateEmail)
	}
	stored := *user
	r.byID[user.ID] = &stored
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *MemoryUserRepo) UpdatePasswordHash(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = updatedAt.UTC()
	return nil
}

func (r *MemoryUserRepo) MarkDeleted(ctx context.Context, id string, deletedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	t := deletedAt.UTC()
	u.Status = model.UserStatusDeleted
	u.DeletedAt = &t
	u.UpdatedAt = t
	return nil
}

// compile-time interface check
var _ UserRepository = (*MemoryUserRepo)(nil)
