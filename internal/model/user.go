package model

import "time"

// UserStatus はユーザーアカウントの状態を表す。
type UserStatus string

const (
	// UserStatusActive はログイン可能な通常状態。
	UserStatusActive UserStatus = "active"
	// UserStatusDeleted は論理削除済みの状態。ログインできない。
	UserStatusDeleted UserStatus = "deleted"
)

// MaxEmailLength はメールアドレスの最大長。
const MaxEmailLength = 45

// User はサービス利用ユーザーを表す。
// PasswordHashはエンコード済みのハッシュ文字列（パラメータとソルトを含む）。
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// IsActive はユーザーがログイン可能な状態かを返す。
func (u *User) IsActive() bool {
	return u != nil && u.Status == UserStatusActive && u.DeletedAt == nil
}
