// Package password はパスワードハッシュの生成と検証を提供する。
//
// 新規ハッシュはArgon2idのPHC形式で生成する:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
//
// 移行元システムのbcryptハッシュ（$2a$, $2b$, $2y$）も検証でき、
// 検証成功時にArgon2idへの再ハッシュを要求する。
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const argon2Version = 19

// MaxPasswordLength はハッシュ対象として受け付けるパスワードの最大バイト数。
const MaxPasswordLength = 256

// MaxEncodedLength はusers.password_hashに保存できるPHC文字列の最大長。
const MaxEncodedLength = 255

var (
	// ErrInvalidHash は保存済みハッシュの形式が不正であることを示す。
	ErrInvalidHash = errors.New("invalid password hash")
	// ErrEmptyPassword は空のパスワードをハッシュしようとしたことを示す。
	ErrEmptyPassword = errors.New("password is empty")
	// ErrPasswordTooLong はパスワードがMaxPasswordLengthを超えることを示す。
	ErrPasswordTooLong = errors.New("password too long")
	// ErrEncodedTooLong はパラメータから生成されるハッシュがMaxEncodedLengthを超えることを示す。
	ErrEncodedTooLong = errors.New("encoded hash too long")
)

// Params はArgon2idのコストパラメータ。MemoryKiBはKiB単位。
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams はm=65536,t=3,p=4の標準パラメータを返す。
// この設定で生成したハッシュは97文字になる。
func DefaultParams() Params {
	return Params{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher は設定済みパラメータでハッシュの生成・検証を行う。
// 生成後は不変のため、複数のgoroutineから安全に使用できる。
type Hasher struct {
	params Params
}

// New はHasherを生成する。ゼロ値のフィールドはDefaultParamsの値で補う。
func New(params Params) *Hasher {
	def := DefaultParams()
	if params.MemoryKiB == 0 {
		params.MemoryKiB = def.MemoryKiB
	}
	if params.Iterations == 0 {
		params.Iterations = def.Iterations
	}
	if params.Parallelism == 0 {
		params.Parallelism = def.Parallelism
	}
	if params.SaltLength == 0 {
		params.SaltLength = def.SaltLength
	}
	if params.KeyLength == 0 {
		params.KeyLength = def.KeyLength
	}
	return &Hasher{params: params}
}

// EncodedLength はパラメータpで生成されるPHC文字列の長さを返す。
func EncodedLength(p Params) int {
	b64 := base64.RawStdEncoding
	return len(fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$$",
		argon2Version, p.MemoryKiB, p.Iterations, p.Parallelism)) +
		b64.EncodedLen(int(p.SaltLength)) + b64.EncodedLen(int(p.KeyLength))
}

// Validate はパラメータで生成されるハッシュが保存先の列に収まるかを確認する。
func (p Params) Validate() error {
	if n := EncodedLength(p); n > MaxEncodedLength {
		return fmt.Errorf("%w: %d > %d", ErrEncodedTooLong, n, MaxEncodedLength)
	}
	return nil
}

// Params は現在のハッシュパラメータを返す。
func (h *Hasher) Params() Params {
	return h.params
}

// Hash はパスワードをArgon2idでハッシュし、PHC形式の文字列を返す。
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > MaxPasswordLength {
		return "", ErrPasswordTooLong
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt,
		h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, h.params.KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		h.params.MemoryKiB, h.params.Iterations, h.params.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key),
	), nil
}

// Verify はパスワードがハッシュと一致するかを定数時間で比較する。
// 一致しない場合は(false, nil)、ハッシュ形式が不正な場合はErrInvalidHashを返す。
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	ok, _, err := h.verify(password, encoded)
	return ok, err
}

// VerifyAndUpdate はパスワードを検証し、ハッシュの更新が必要な場合は新しいハッシュを返す。
// 更新が必要なのは、bcryptハッシュ、またはパラメータが現在の設定と異なるArgon2idハッシュの場合。
// 検証失敗時や更新不要時はnewHashが空文字列になる。
func (h *Hasher) VerifyAndUpdate(password, encoded string) (ok bool, newHash string, err error) {
	ok, stale, err := h.verify(password, encoded)
	if err != nil || !ok || !stale {
		return ok, "", err
	}

	newHash, err = h.Hash(password)
	if err != nil {
		// 検証結果はtrueのまま返す
		return true, "", fmt.Errorf("failed to rehash password: %w", err)
	}
	return true, newHash, nil
}

// NeedsRehash はハッシュが現在のパラメータで生成されていない場合にtrueを返す。
func (h *Hasher) NeedsRehash(encoded string) bool {
	if isBcrypt(encoded) {
		return true
	}
	params, _, _, err := decode(encoded)
	if err != nil {
		return true
	}
	return params != h.params
}

// verify はパスワードを検証し、一致したハッシュが再ハッシュ対象かどうかも返す。
func (h *Hasher) verify(password, encoded string) (ok, stale bool, err error) {
	if isBcrypt(encoded) {
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
		switch {
		case err == nil:
			return true, true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, false, nil
		default:
			return false, false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
		}
	}

	params, salt, expected, err := decode(encoded)
	if err != nil {
		return false, false, err
	}
	if !withinBounds(params, h.params) {
		return false, false, ErrInvalidHash
	}

	key := argon2.IDKey([]byte(password), salt,
		params.Iterations, params.MemoryKiB, params.Parallelism, uint32(len(expected)))

	if subtle.ConstantTimeCompare(key, expected) != 1 {
		return false, false, nil
	}
	return true, params != h.params, nil
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

// withinBounds は保存済みハッシュのコストが設定値から大きく外れていないかを確認する。
// 古い小さな設定のハッシュは許容し、極端に大きな設定は拒否する。
func withinBounds(got, limits Params) bool {
	if got.MemoryKiB > limits.MemoryKiB*2 {
		return false
	}
	if got.Iterations > limits.Iterations*2 {
		return false
	}
	if uint32(got.Parallelism) > uint32(limits.Parallelism)*2 {
		return false
	}
	if got.SaltLength < 8 || got.SaltLength > 64 {
		return false
	}
	if got.KeyLength < 16 || got.KeyLength > 128 {
		return false
	}
	return true
}

// decode はPHC形式のArgon2idハッシュを解析する。
func decode(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, nil, nil, ErrInvalidHash
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2Version) {
		return Params{}, nil, nil, ErrInvalidHash
	}

	var mem, iter, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iter, &par); err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}
	if mem == 0 || iter == 0 || par == 0 || par > 255 {
		return Params{}, nil, nil, ErrInvalidHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}

	params := Params{
		MemoryKiB:   mem,
		Iterations:  iter,
		Parallelism: uint8(par),
		SaltLength:  uint32(len(salt)),
		KeyLength:   uint32(len(key)),
	}
	return params, salt, key, nil
}
