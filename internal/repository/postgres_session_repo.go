package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/linkpulse/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	var lastUsed sql.NullTime
	if session.LastUsed != nil {
		lastUsed = sql.NullTime{Time: session.LastUsed.UTC(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, created_at, expiry, last_used)
		 VALUES ($1, $2, $3, $4, $5)`,
		session.Token, session.UserID, session.CreatedAt.UTC(), session.Expiry.UTC(), lastUsed,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", translatePQError(err, ErrDuplicateToken))
	}
	return nil
}

// FindByToken はトークンの完全一致でセッションを取得する。見つからない場合はnilを返す。
func (r *PostgresSessionRepo) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	session := &model.Session{}
	var lastUsed sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT token, user_id, created_at, expiry, last_used
		 FROM sessions
		 WHERE token = $1`,
		token,
	).Scan(&session.Token, &session.UserID, &session.CreatedAt, &session.Expiry, &lastUsed)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	session.CreatedAt = session.CreatedAt.UTC()
	session.Expiry = session.Expiry.UTC()
	if lastUsed.Valid {
		t := lastUsed.Time.UTC()
		session.LastUsed = &t
	}

	return session, nil
}

// UpdateLastUsed はlast_usedを単調増加となる条件付きで更新する。
func (r *PostgresSessionRepo) UpdateLastUsed(ctx context.Context, token string, lastUsed time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions
		 SET last_used = $2
		 WHERE token = $1 AND (last_used IS NULL OR last_used < $2)`,
		token, lastUsed.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update session last_used: %w", translatePQError(err, ErrDuplicateToken))
	}
	return nil
}

// DeleteByToken は指定トークンのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE token = $1`,
		token,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredByToken は期限切れの場合のみセッションを削除する。
// 判定と削除を1つのDELETE文で行うため、並行するlast_used更新と競合しない。
func (r *PostgresSessionRepo) DeleteExpiredByToken(ctx context.Context, token string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE token = $1 AND expiry < $2`,
		token, now.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to revoke expired session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user sessions: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// DeleteExpired は期限切れの全セッションを削除する。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expiry < $1`,
		now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
