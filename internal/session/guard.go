package session

import (
	"context"

	"github.com/hitoshi/linkpulse/internal/model"
)

// State はリクエストに提示されたセッションの判定結果。
type State int

const (
	// StateMissing はトークンが提示されていない状態。
	StateMissing State = iota
	// StateNotFound はトークンに該当するセッションがない状態。
	StateNotFound
	// StateExpired は期限切れのセッション。判定時に削除済み。
	StateExpired
	// StateValid は有効なセッション。last_usedを更新済み。
	StateValid
)

func (s State) String() string {
	switch s {
	case StateMissing:
		return "missing"
	case StateNotFound:
		return "not_found"
	case StateExpired:
		return "expired"
	case StateValid:
		return "valid"
	default:
		return "unknown"
	}
}

// Validation はGuard.Validateの結果。SessionはStateValidの場合のみ設定される。
type Validation struct {
	State   State
	Session *model.Session
}

// Guard は提示されたトークンを有効なセッションに解決する。
// セッションを作成することはない。
type Guard struct {
	store *Store
}

// NewGuard はGuardを生成する。
func NewGuard(store *Store) *Guard {
	return &Guard{store: store}
}

// Validate はトークンを検証する。
// 期限切れのセッションは削除し、有効なセッションはlast_usedを更新する。
// ストレージのエラーはそのまま返す。
func (g *Guard) Validate(ctx context.Context, token string) (Validation, error) {
	if token == "" {
		return Validation{State: StateMissing}, nil
	}

	sess, err := g.store.Get(ctx, token)
	if err != nil {
		return Validation{}, err
	}
	if sess == nil {
		return Validation{State: StateNotFound}, nil
	}

	now := g.store.Now()
	expired, err := g.store.IsExpired(ctx, sess, now, true)
	if err != nil {
		return Validation{}, err
	}
	if expired {
		return Validation{State: StateExpired}, nil
	}

	if err := g.store.Touch(ctx, sess, now); err != nil {
		return Validation{}, err
	}

	return Validation{State: StateValid, Session: sess}, nil
}
