package session

import (
	"crypto/rand"
	"fmt"

	"github.com/hitoshi/linkpulse/internal/model"
)

// 62の倍数のうち256未満で最大の値。これ以上のバイトは棄却して偏りをなくす。
const maxUnbiasedByte = 256 - 256%len(model.TokenAlphabet)

// GenerateToken はcrypto/randを用いて62文字のアルファベットから32文字のトークンを生成する。
func GenerateToken() (string, error) {
	token := make([]byte, 0, model.TokenLength)
	buf := make([]byte, model.TokenLength*2)

	for len(token) < model.TokenLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiasedByte {
				continue
			}
			token = append(token, model.TokenAlphabet[int(b)%len(model.TokenAlphabet)])
			if len(token) == model.TokenLength {
				break
			}
		}
	}

	return string(token), nil
}
