package crypto

import (
	"encoding/base64"
	"errors"
	"testing"
)

func testKey() string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	sealer, err := NewSealer(testKey())
	if err != nil {
		t.Fatalf("failed to create sealer: %v", err)
	}

	ciphertext, err := sealer.Encrypt("secret")
	if err != nil {
		t.Fatalf("failed to encrypt: %v", err)
	}

	plaintext, err := sealer.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("failed to decrypt: %v", err)
	}

	if plaintext != "secret" {
		t.Fatalf("expected plaintext to match, got %s", plaintext)
	}
}

func TestSealOpen(t *testing.T) {
	sealer, err := NewSealer(testKey())
	if err != nil {
		t.Fatalf("failed to create sealer: %v", err)
	}

	sealed, err := sealer.Seal("hunter2")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !IsSealed(sealed) {
		t.Fatalf("expected %q to carry the enc: prefix", sealed)
	}

	opened, err := sealer.Open(sealed)
	if err != nil || opened != "hunter2" {
		t.Fatalf("Open = %q, %v", opened, err)
	}

	plain, err := sealer.Open("not-sealed")
	if err != nil || plain != "not-sealed" {
		t.Fatalf("plain values must pass through, got %q, %v", plain, err)
	}
}

func TestOpenWithWrongKeyFails(t *testing.T) {
	sealer, _ := NewSealer(testKey())
	sealed, err := sealer.Seal("hunter2")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	other, err := NewSealer(base64.StdEncoding.EncodeToString([]byte("another key")))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	if _, err := other.Open(sealed); err == nil {
		t.Fatalf("expected a different key to fail")
	}
}

func TestRevealNeedsKey(t *testing.T) {
	t.Setenv(keyEnv, "")

	if value, err := Reveal("plain"); err != nil || value != "plain" {
		t.Fatalf("plain values need no key, got %q, %v", value, err)
	}
	if _, err := Reveal(SealedPrefix + "AAAA"); !errors.Is(err, ErrNoKey) {
		t.Fatalf("expected ErrNoKey, got %v", err)
	}

	t.Setenv(keyEnv, testKey())
	sealer, _ := NewSealer(testKey())
	sealed, _ := sealer.Seal("token")
	if value, err := Reveal(sealed); err != nil || value != "token" {
		t.Fatalf("Reveal = %q, %v", value, err)
	}
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(decoded) != 32 {
		t.Fatalf("expected 32 byte base64 key, got %q", key)
	}
}
