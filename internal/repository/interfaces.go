// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/linkpulse/internal/model"
)

var (
	// ErrDuplicateToken はセッショントークンが既存の行と衝突したことを示す。
	ErrDuplicateToken = errors.New("session token already exists")
	// ErrDuplicateEmail はメールアドレスが既に登録済みであることを示す。
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrConstraintViolation はCHECK制約などの整合性制約違反を示す。
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrUserNotFound は更新対象のユーザーが存在しないことを示す。
	ErrUserNotFound = errors.New("user not found")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	// emailは正規化（小文字化）済みであること。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレス重複時はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdatePasswordHash はパスワードハッシュを差し替える。
	// ハッシュパラメータ更新時の再ハッシュ保存に使用する。
	UpdatePasswordHash(ctx context.Context, id, passwordHash string, updatedAt time.Time) error

	// MarkDeleted はユーザーを論理削除する。行は残し、status と deleted_at を更新する。
	MarkDeleted(ctx context.Context, id string, deletedAt time.Time) error
}

// SessionRepository はセッションデータの永続化インターフェース。
// 各操作は単一ステートメントで完結し、個別にアトミックである。
type SessionRepository interface {
	// Create はセッションを作成する。トークン衝突時はErrDuplicateTokenを返す。
	Create(ctx context.Context, session *model.Session) error

	// FindByToken はトークンの完全一致でセッションを取得する。
	// 期限切れでも返す（失効判定は呼び出し側で行う）。見つからない場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.Session, error)

	// UpdateLastUsed はlast_usedを更新する。
	// 既存値より新しい場合のみ書き込み、値が過去に戻ることはない。
	UpdateLastUsed(ctx context.Context, token string, lastUsed time.Time) error

	// DeleteByToken は指定トークンのセッションを削除する。
	DeleteByToken(ctx context.Context, token string) error

	// DeleteExpiredByToken は指定トークンのセッションが now 時点で期限切れの場合のみ削除する。
	// 削除した場合はtrueを返す。
	DeleteExpiredByToken(ctx context.Context, token string, now time.Time) (bool, error)

	// DeleteByUserID は指定ユーザーの全セッションを削除し、削除件数を返す。
	DeleteByUserID(ctx context.Context, userID string) (int64, error)

	// DeleteExpired は now 時点で期限切れの全セッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
