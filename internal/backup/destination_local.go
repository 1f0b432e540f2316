package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalDestination keeps archives in a directory on this host
type LocalDestination struct {
	dir string
}

// NewLocalDestination creates a local destination rooted at dir
func NewLocalDestination(dir string) *LocalDestination {
	return &LocalDestination{dir: dir}
}

// resolve rejects names that are not a single path element
func (ld *LocalDestination) resolve(filename string) (string, error) {
	if err := checkName(filename); err != nil {
		return "", err
	}
	return filepath.Join(ld.dir, filename), nil
}

// Upload writes reader to a hidden temp file, syncs it and renames it into
// place, so List never sees a partial archive. sizeBytes is checked unless
// negative.
func (ld *LocalDestination) Upload(filename string, reader io.Reader, sizeBytes int64) error {
	target, err := ld.resolve(filename)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(ld.dir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	tmp, err := os.CreateTemp(ld.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	written, err := io.Copy(tmp, reader)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	if sizeBytes >= 0 && written != sizeBytes {
		return fmt.Errorf("size mismatch for %s: expected %d bytes, wrote %d", filename, sizeBytes, written)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filename, err)
	}
	if err := os.Chmod(tmp.Name(), 0640); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", filename, err)
	}
	committed = true
	return nil
}

// Download copies a stored archive to writer
func (ld *LocalDestination) Download(filename string, writer io.Writer) error {
	source, err := ld.resolve(filename)
	if err != nil {
		return err
	}
	file, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filename, err)
	}
	defer file.Close()

	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}
	return nil
}

// Delete removes an archive. A missing file is not an error.
func (ld *LocalDestination) Delete(filename string) error {
	target, err := ld.resolve(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", filename, err)
	}
	return nil
}

// List returns the finished archives in the directory
func (ld *LocalDestination) List() ([]BackupFile, error) {
	entries, err := os.ReadDir(ld.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []BackupFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	files := make([]BackupFile, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, BackupFile{
			Filename:  entry.Name(),
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime().Unix(),
		})
	}
	return files, nil
}

// Exists reports whether filename is stored
func (ld *LocalDestination) Exists(filename string) bool {
	target, err := ld.resolve(filename)
	if err != nil {
		return false
	}
	_, err = os.Stat(target)
	return err == nil
}

func (ld *LocalDestination) GetType() string { return "local" }

func (ld *LocalDestination) Close() error { return nil }
