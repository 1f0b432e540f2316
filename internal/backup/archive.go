package backup

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNothingToBackup is returned when none of the configured paths exist
	ErrNothingToBackup = errors.New("none of the backup paths exist")
	// ErrUnsafePath is returned for archive entries that would land outside
	// the extraction directory
	ErrUnsafePath = errors.New("archive entry escapes destination")
)

// ArchiveInfo contains metadata about a created archive
type ArchiveInfo struct {
	Filename    string            `json:"filename"`
	Path        string            `json:"-"`
	SizeBytes   int64             `json:"size_bytes"`
	CreatedAt   time.Time         `json:"created_at"`
	Paths       []string          `json:"paths"`
	FileCount   int               `json:"file_count"`
	Compression CompressionConfig `json:"compression"`
}

// ArchiveFilename names an archive after its creation time and backup ID
func ArchiveFilename(at time.Time, id string, compression CompressionConfig) string {
	return fmt.Sprintf("backup_%s_%s.%s", at.Format("2006-01-02_15-04-05"), id, compression.extension())
}

// CreateArchive writes paths, relative to workingDir, into a tar archive at
// archivePath. Paths that do not exist are skipped. Entries whose base name
// or relative path matches an exclude pattern are left out.
func CreateArchive(ctx context.Context, workingDir string, paths, exclude []string, archivePath string, compression CompressionConfig) (info *ArchiveInfo, err error) {
	compression = normalizeCompression(compression)

	file, err := os.OpenFile(archivePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0640)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if err != nil {
			file.Close()
			os.Remove(archivePath)
		}
	}()

	out, err := newCompressor(file, compression)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s writer: %w", compression.Type, err)
	}
	tw := tar.NewWriter(out)

	var included []string
	fileCount := 0
	for _, p := range paths {
		rel := filepath.Clean(p)
		if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("%w: %s", ErrUnsafePath, p)
		}

		root := filepath.Join(workingDir, rel)
		if _, statErr := os.Lstat(root); statErr != nil {
			if os.IsNotExist(statErr) {
				log.Printf("[Archive] Skipping missing path %s", rel)
				continue
			}
			return nil, fmt.Errorf("failed to stat %s: %w", rel, statErr)
		}
		included = append(included, filepath.ToSlash(rel))

		n, walkErr := addTree(ctx, tw, workingDir, root, exclude)
		fileCount += n
		if walkErr != nil {
			return nil, fmt.Errorf("failed to archive %s: %w", rel, walkErr)
		}
	}
	if len(included) == 0 {
		return nil, ErrNothingToBackup
	}

	if err = tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	if err = out.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish compression: %w", err)
	}
	if err = file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close archive: %w", err)
	}

	stat, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	return &ArchiveInfo{
		Filename:    filepath.Base(archivePath),
		Path:        archivePath,
		SizeBytes:   stat.Size(),
		CreatedAt:   stat.ModTime(),
		Paths:       included,
		FileCount:   fileCount,
		Compression: compression,
	}, nil
}

func addTree(ctx context.Context, tw *tar.Writer, workingDir, root string, exclude []string) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(current string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(workingDir, current)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if isExcluded(name, exclude) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		link := ""
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(current); err != nil {
				return err
			}
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		header.Name = name
		if d.IsDir() {
			header.Name += "/"
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			return nil
		}
		src, err := os.Open(current)
		if err != nil {
			return err
		}
		_, err = io.CopyN(tw, src, header.Size)
		src.Close()
		if err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

func isExcluded(name string, exclude []string) bool {
	base := path.Base(name)
	for _, pattern := range exclude {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// ExtractArchive unpacks an archive into dest and returns the number of
// files written. Symlinks and special files are skipped.
func ExtractArchive(ctx context.Context, r io.Reader, dest string, compression CompressionConfig) (int, error) {
	in, err := newDecompressor(r, compression)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s stream: %w", normalizeCompression(compression).Type, err)
	}
	defer in.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return 0, fmt.Errorf("failed to create destination directory: %w", err)
	}

	tr := tar.NewReader(in)
	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		header, err := tr.Next()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("failed to read archive: %w", err)
		}

		target, err := safeJoin(dest, header.Name)
		if err != nil {
			return count, err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, dirMode(header)); err != nil {
				return count, err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return count, err
			}
			if err := writeFile(target, tr, os.FileMode(header.Mode).Perm()); err != nil {
				return count, err
			}
			count++
		default:
			log.Printf("[Archive] Skipping %s (type %c)", header.Name, header.Typeflag)
		}
	}
}

func safeJoin(dest, name string) (string, error) {
	if name == "" || path.IsAbs(name) || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	target := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return target, nil
}

func dirMode(header *tar.Header) os.FileMode {
	mode := os.FileMode(header.Mode).Perm()
	if mode == 0 {
		mode = 0755
	}
	return mode | 0700
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if perm == 0 {
		perm = 0644
	}
	file, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
