package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// SealedPrefix marks a config value sealed with Seal
	SealedPrefix = "enc:"

	keyEnv = "ENCRYPTION_KEY"
)

// ErrNoKey is returned when a sealed value is found but ENCRYPTION_KEY is unset
var ErrNoKey = errors.New("ENCRYPTION_KEY is not set")

// Sealer encrypts and decrypts secrets with AES-256-GCM
type Sealer struct {
	key []byte
}

// NewSealer creates a sealer from a base64 key. Keys that are not 32 bytes
// long are stretched with SHA-256.
func NewSealer(encodedKey string) (*Sealer, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encodedKey))
	if err != nil {
		return nil, fmt.Errorf("invalid %s format (must be base64): %w", keyEnv, err)
	}
	if len(decoded) == 0 {
		return nil, ErrNoKey
	}

	key := decoded
	if len(decoded) != 32 {
		hash := sha256.Sum256(decoded)
		key = hash[:]
	}
	return &Sealer{key: key}, nil
}

// NewSealerFromEnv creates a sealer from ENCRYPTION_KEY
func NewSealerFromEnv() (*Sealer, error) {
	keyStr := os.Getenv(keyEnv)
	if keyStr == "" {
		return nil, ErrNoKey
	}
	return NewSealer(keyStr)
}

// GenerateKey returns a random base64 key for ENCRYPTION_KEY
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Encrypt encrypts plaintext using AES-256-GCM. The nonce is prepended.
func (s *Sealer) Encrypt(plaintext string) ([]byte, error) {
	aesGCM, err := s.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aesGCM.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt decrypts ciphertext produced by Encrypt
func (s *Sealer) Decrypt(ciphertext []byte) (string, error) {
	aesGCM, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := aesGCM.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

func (s *Sealer) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}

// Seal encrypts a secret into an "enc:" config value
func (s *Sealer) Seal(plaintext string) (string, error) {
	ciphertext, err := s.Encrypt(plaintext)
	if err != nil {
		return "", err
	}
	return SealedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open decrypts an "enc:" value. Other values are returned unchanged.
func (s *Sealer) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed value: %w", err)
	}
	return s.Decrypt(decoded)
}

// IsSealed reports whether value was produced by Seal
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// Reveal opens value with ENCRYPTION_KEY when it is sealed
func Reveal(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	sealer, err := NewSealerFromEnv()
	if err != nil {
		return "", err
	}
	return sealer.Open(value)
}
