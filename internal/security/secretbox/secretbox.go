// Package secretbox encrypts stored OAuth tokens with AES-256-GCM.
//
// The master key is injected at construction; nothing in this package reads
// process-global state, which keeps the cipher trivially testable.
package secretbox

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
	nonceSizeGCM      = 12  // 96-bit nonce, the GCM recommendation
	requiredKeyLength = 32  // 32 bytes => AES-256
	sep               = "|" // nonce|ciphertext, both base64
)

// ErrDecrypt marks ciphertext that could not be authenticated or parsed.
// It means key rotation without re-encryption, or data corruption; callers
// must propagate it, never swallow it.
var ErrDecrypt = errors.New("secretbox: decrypt failed")

// Cipher performs symmetric encryption with a fixed master key.
type Cipher struct {
	key []byte
}

// New builds a Cipher from a base64-encoded 32-byte key.
func New(keyB64 string) (*Cipher, error) {
	k, err := base64.StdEncoding.DecodeString(strings.TrimSpace(keyB64))
	if err != nil {
		return nil, fmt.Errorf("secretbox: decode master key: %w", err)
	}
	return NewFromBytes(k)
}

// NewFromBytes builds a Cipher from a raw 32-byte key.
func NewFromBytes(key []byte) (*Cipher, error) {
	if len(key) != requiredKeyLength {
		return nil, fmt.Errorf("secretbox: master key must be %d bytes, got %d", requiredKeyLength, len(key))
	}
	c := &Cipher{key: make([]byte, requiredKeyLength)}
	copy(c.key, key)
	return c, nil
}

// Encrypt seals plainText and returns base64(nonce)|base64(ciphertext).
// The empty string is a sentinel: it is returned as-is without touching the
// cipher, so "no token" round-trips as "no token".
func (c *Cipher) Encrypt(plainText string) (string, error) {
	if plainText == "" {
		return "", nil
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}

	ct := aesgcm.Seal(nil, nonce, []byte(plainText), nil)

	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt opens base64(nonce)|base64(ciphertext) and returns the plaintext.
// The empty sentinel decrypts to the empty string with no error. Every other
// failure wraps ErrDecrypt.
func (c *Cipher) Decrypt(cipherText string) (string, error) {
	if cipherText == "" {
		return "", nil
	}

	parts := strings.Split(cipherText, sep)
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: want base64(nonce)|base64(ciphertext)", ErrDecrypt)
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: decode nonce: %v", ErrDecrypt, err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: decode ciphertext: %v", ErrDecrypt, err)
	}
	if len(nonce) != nonceSizeGCM {
		return "", fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrDecrypt, nonceSizeGCM, len(nonce))
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	pt, err := aesgcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("%w: gcm auth: %v", ErrDecrypt, err)
	}
	return string(pt), nil
}

// GenerateKey returns a fresh random key, base64-encoded, ready for config.
func GenerateKey() (string, error) {
	k := make([]byte, requiredKeyLength)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(k), nil
}
