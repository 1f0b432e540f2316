package backup

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/yourusername/craft-server-manager/internal/config"
	"github.com/yourusername/craft-server-manager/internal/crypto"
)

// Destination represents a backup storage destination
type Destination interface {
	// Upload stores the contents of reader under filename
	Upload(filename string, reader io.Reader, sizeBytes int64) error

	// Download writes a stored file to writer
	Download(filename string, writer io.Writer) error

	// Delete removes a file from the destination
	Delete(filename string) error

	// List returns all backup files at the destination
	List() ([]BackupFile, error)

	// GetType returns the destination type identifier
	GetType() string

	// Close releases connections held by the destination
	Close() error
}

// BackupFile represents a file in a backup destination
type BackupFile struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	CreatedAt int64  `json:"created_at"` // Unix timestamp
}

// NewDestination creates a backup destination from config. Sealed
// credentials are opened with ENCRYPTION_KEY.
func NewDestination(cfg config.BackupDestinationConfig) (Destination, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalDestination(cfg.Path), nil
	case "sftp":
		password, err := crypto.Reveal(cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("sftp password: %w", err)
		}
		cfg.Password = password
		return NewSFTPDestination(cfg)
	case "s3":
		secret, err := crypto.Reveal(cfg.SecretKey)
		if err != nil {
			return nil, fmt.Errorf("s3 secret key: %w", err)
		}
		cfg.SecretKey = secret
		return NewS3Destination(cfg)
	default:
		return nil, fmt.Errorf("unsupported destination type: %s", cfg.Type)
	}
}

// tempPrefix marks in-flight uploads. List skips hidden names.
const tempPrefix = ".upload-"

// checkName accepts only plain archive names. Hidden names are reserved
// for in-flight uploads.
func checkName(filename string) error {
	if filename == "" || filename != path.Base(filename) || strings.ContainsAny(filename, `/\`) || strings.HasPrefix(filename, ".") {
		return fmt.Errorf("%w: %q", ErrUnsafePath, filename)
	}
	return nil
}
