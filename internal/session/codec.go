// Package session はセッショントークンの暗号化・署名・検証とCookieへの束縛を提供する。
package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrDecryption は暗号文が不正・切り詰め・別鍵で生成された場合に返される。
// 呼び出し側は「有効なセッションなし」として扱うこと。
var ErrDecryption = errors.New("session: decryption failed")

const codecInfo = "calmate session token v1"

// Codec はセッショントークンの外側の暗号化層。
// AES-256-GCMでトークンごとにランダムなnonceを使い、nonceは暗号文の先頭に付加する。
type Codec struct {
	aead cipher.AEAD
}

// NewCodec は鍵素材からCodecを生成する。
// saltは任意で、鍵導出（HKDF-SHA256）のソルトとしてのみ使われる。
func NewCodec(key, salt []byte) (*Codec, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("encryption key is required")
	}

	derived := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, salt, []byte(codecInfo)), derived); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Codec{aead: aead}, nil
}

// Encrypt は平文を暗号化し、base64url（パディングなし）文字列で返す。
func (c *Codec) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt はEncryptの出力を復号する。失敗はすべてErrDecryptionに畳み込む。
func (c *Codec) Decrypt(ciphertext string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, ErrDecryption
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize+c.aead.Overhead() {
		return nil, ErrDecryption
	}

	plaintext, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}
