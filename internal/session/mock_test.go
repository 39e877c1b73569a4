package session

import (
	"context"
	"time"

	"github.com/hitoshi/linkpulse/internal/model"
	"github.com/hitoshi/linkpulse/internal/repository"
)

// --- モック定義 ---

// mockSessionRepo は未設定の関数フィールドをMemorySessionRepoに委譲する。
type mockSessionRepo struct {
	*repository.MemorySessionRepo

	createFn               func(ctx context.Context, session *model.Session) error
	findByTokenFn          func(ctx context.Context, token string) (*model.Session, error)
	updateLastUsedFn       func(ctx context.Context, token string, lastUsed time.Time) error
	deleteExpiredByTokenFn func(ctx context.Context, token string, now time.Time) (bool, error)
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{MemorySessionRepo: repository.NewMemorySessionRepo()}
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return m.MemorySessionRepo.Create(ctx, session)
}

func (m *mockSessionRepo) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	if m.findByTokenFn != nil {
		return m.findByTokenFn(ctx, token)
	}
	return m.MemorySessionRepo.FindByToken(ctx, token)
}

func (m *mockSessionRepo) UpdateLastUsed(ctx context.Context, token string, lastUsed time.Time) error {
	if m.updateLastUsedFn != nil {
		return m.updateLastUsedFn(ctx, token, lastUsed)
	}
	return m.MemorySessionRepo.UpdateLastUsed(ctx, token, lastUsed)
}

func (m *mockSessionRepo) DeleteExpiredByToken(ctx context.Context, token string, now time.Time) (bool, error) {
	if m.deleteExpiredByTokenFn != nil {
		return m.deleteExpiredByTokenFn(ctx, token, now)
	}
	return m.MemorySessionRepo.DeleteExpiredByToken(ctx, token, now)
}

// --- compile-time interface checks ---
var _ repository.SessionRepository = (*mockSessionRepo)(nil)

var testEpoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// newTestStore は固定時刻を返すStoreを生成する。
func newTestStore(repo repository.SessionRepository, touches *TouchBuffer, now *time.Time) *Store {
	s := NewStore(repo, touches)
	s.now = func() time.Time { return *now }
	return s
}
