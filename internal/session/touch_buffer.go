package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/linkpulse/internal/repository"
)

// TouchBuffer はlast_usedの更新をトークンごとに集約し、一定間隔でまとめて書き込む。
// 同じトークンへの複数の更新は最大の時刻だけを保持する。
// DB側も条件付き更新のため、フラッシュ順序によってlast_usedが巻き戻ることはない。
type TouchBuffer struct {
	repo     repository.SessionRepository
	interval time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
}

// NewTouchBuffer はTouchBufferを生成する。Runを呼ぶまでフラッシュは行われない。
func NewTouchBuffer(repo repository.SessionRepository, interval time.Duration) *TouchBuffer {
	return &TouchBuffer{
		repo:     repo,
		interval: interval,
		pending:  make(map[string]time.Time),
	}
}

// Add はトークンのlast_used候補を記録する。既存の候補より新しい場合のみ置き換える。
func (b *TouchBuffer) Add(token string, t time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur, ok := b.pending[token]; ok && !t.After(cur) {
		return
	}
	b.pending[token] = t
}

// Forget は削除済みセッションの保留中の更新を破棄する。
func (b *TouchBuffer) Forget(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, token)
}

// Pending は保留中の更新件数を返す。
func (b *TouchBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush は保留中の更新をすべて書き込む。
// 書き込みに失敗した更新は保留に戻し、次回のフラッシュで再試行する。
func (b *TouchBuffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	batch := b.pending
	b.pending = make(map[string]time.Time, len(batch))
	b.mu.Unlock()

	var errs []error
	for token, t := range batch {
		if err := b.repo.UpdateLastUsed(ctx, token, t); err != nil {
			errs = append(errs, err)
			b.Add(token, t)
		}
	}
	return errors.Join(errs...)
}

// Run はintervalごとにFlushを実行する。ctxがキャンセルされると最終フラッシュを行って戻る。
func (b *TouchBuffer) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := b.Flush(ctx); err != nil {
				slog.Error("failed to flush session last_used updates", slog.String("error", err.Error()))
			}
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := b.Flush(flushCtx); err != nil {
				slog.Error("failed to flush session last_used updates on shutdown", slog.String("error", err.Error()))
			}
			cancel()
			return
		}
	}
}
