package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// tokenKeySize はAES-256の鍵長（バイト）。
	tokenKeySize = 32
	// tokenNonceSize はGCMの標準ノンス長（96bit）。
	tokenNonceSize = 12
)

var (
	// ErrInvalidKey は暗号鍵がデコードできない、または長さが不正な場合のエラー。
	ErrInvalidKey = errors.New("invalid token encryption key")
	// ErrMalformed は暗号文の構造が不正な場合のエラー（ストレージ破損・不正値）。
	ErrMalformed = errors.New("malformed encrypted token")
	// ErrTampered は認証タグの検証に失敗した場合のエラー（改ざん・鍵違い）。
	ErrTampered = errors.New("encrypted token failed authentication")
)

// TokenCipher はリフレッシュトークンを保存用にAES-256-GCMで暗号化する。
// 起動時に1回だけ生成し、各コンポーネントに注入する。
type TokenCipher struct {
	aead   cipher.AEAD
	random io.Reader
}

// NewTokenCipher はbase64エンコードされた32バイト鍵からTokenCipherを生成する。
// 鍵が不正な場合はErrInvalidKeyを返す。
func NewTokenCipher(base64Key string) (*TokenCipher, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(base64Key))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode base64: %v", ErrInvalidKey, err)
	}
	if len(key) != tokenKeySize {
		return nil, fmt.Errorf("%w: must be %d bytes (got %d)", ErrInvalidKey, tokenKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, tokenNonceSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	return &TokenCipher{aead: aead, random: rand.Reader}, nil
}

// Encrypt は平文を暗号化し、base64(nonce || ciphertext || tag) を返す。
// ノンスは呼び出しごとに乱数から新規生成する。
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, tokenNonceSize, tokenNonceSize+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(c.random, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt はEncryptの出力を復号する。
// 構造が不正な場合はErrMalformed、認証に失敗した場合はErrTamperedを返す。
func (c *TokenCipher) Decrypt(encoded string) (string, error) {
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(payload) < tokenNonceSize+c.aead.Overhead() {
		return "", fmt.Errorf("%w: payload too short (%d bytes)", ErrMalformed, len(payload))
	}

	nonce, ciphertext := payload[:tokenNonceSize], payload[tokenNonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrTampered
	}
	return string(plaintext), nil
}
