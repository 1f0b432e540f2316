package backup

import (
	"bytes"
	"fmt"
	"os"

	"github.com/yourusername/craft-server-manager/internal/crypto"
)

// ReadPrivateKeyBytes loads an SSH private key. A file holding a single
// sealed value, as written by EncodeEncryptedKey, is opened with
// ENCRYPTION_KEY.
func ReadPrivateKeyBytes(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	trimmed := string(bytes.TrimSpace(data))
	if !crypto.IsSealed(trimmed) {
		return data, nil
	}
	key, err := crypto.Reveal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("open sealed key %s: %w", path, err)
	}
	return []byte(key), nil
}

// EncodeEncryptedKey seals a private key into file contents
func EncodeEncryptedKey(sealer *crypto.Sealer, key []byte) ([]byte, error) {
	sealed, err := sealer.Seal(string(key))
	if err != nil {
		return nil, err
	}
	return []byte(sealed + "\n"), nil
}
