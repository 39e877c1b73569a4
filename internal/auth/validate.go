package auth

import (
	"regexp"
	"strings"

	"github.com/hitoshi/linkpulse/internal/model"
	"github.com/hitoshi/linkpulse/internal/password"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// NormalizeEmail は前後の空白を除去し小文字化する。
// ユーザーの保存時と検索時の両方で同じ正規化を使う。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateCredentials はメールアドレスとパスワードの形式を検証する。
// エラーがなければnilを、あればフィールド名ごとのメッセージを返す。
// アカウントの存在には触れないため、個別のエラーを返しても列挙の手がかりにならない。
func ValidateCredentials(email, pw string) map[string]string {
	fields := make(map[string]string)

	normalized := NormalizeEmail(email)
	switch {
	case normalized == "":
		fields["email"] = "メールアドレスを入力してください。"
	case len(normalized) > model.MaxEmailLength:
		fields["email"] = "メールアドレスが長すぎます。"
	case !emailPattern.MatchString(normalized):
		fields["email"] = "メールアドレスの形式が正しくありません。"
	}

	switch {
	case pw == "":
		fields["password"] = "パスワードを入力してください。"
	case len(pw) > password.MaxPasswordLength:
		fields["password"] = "パスワードが長すぎます。"
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}
