package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgreSQLのSQLSTATEコード
const (
	pqUniqueViolation     = "23505"
	pqCheckViolation      = "23514"
	pqForeignKeyViolation = "23503"
)

// translatePQError はlib/pqのエラーをリポジトリ層のセンチネルエラーに変換する。
// 一意制約違反はuniqueErrに、CHECK・外部キー制約違反はErrConstraintViolationに対応付ける。
// 該当しないエラーはそのまま返す。
func translatePQError(err error, uniqueErr error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch pqErr.Code {
	case pqUniqueViolation:
		return fmt.Errorf("%w (constraint %s)", uniqueErr, pqErr.Constraint)
	case pqCheckViolation, pqForeignKeyViolation:
		return fmt.Errorf("%w: %s (constraint %s)", ErrConstraintViolation, pqErr.Message, pqErr.Constraint)
	default:
		return err
	}
}
