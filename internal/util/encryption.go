package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const sealedTokenPrefix = "v1:"

var ErrTokenCipherMissing = errors.New("bot token is sealed but no encryption key is configured")

// TokenCipher seals Slack bot tokens with AES-256-GCM. The team id is bound
// as additional data, so a sealed token copied onto another workspace's row
// does not open. A nil *TokenCipher stores tokens as plain text.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher parses a 64 hex character key. An empty key yields a nil
// cipher.
func NewTokenCipher(hexKey string) (*TokenCipher, error) {
	if hexKey == "" {
		return nil, nil
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes (64 hex chars)")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &TokenCipher{aead: aead}, nil
}

// Seal returns "v1:<base64(nonce|ciphertext)>" for token.
func (c *TokenCipher) Seal(teamID, token string) (string, error) {
	if c == nil {
		return token, nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(token), []byte(teamID))
	return sealedTokenPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as is;
// they were stored before a key was configured.
func (c *TokenCipher) Open(teamID, stored string) (string, error) {
	encoded, sealed := strings.CutPrefix(stored, sealedTokenPrefix)
	if !sealed {
		return stored, nil
	}
	if c == nil {
		return "", ErrTokenCipherMissing
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode sealed token: %w", err)
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("sealed token too short")
	}

	token, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], []byte(teamID))
	if err != nil {
		return "", fmt.Errorf("open sealed token: %w", err)
	}
	return string(token), nil
}
