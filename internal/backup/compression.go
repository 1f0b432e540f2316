package backup

import (
	"compress/gzip"
	"io"
	"path"
	"strings"
)

// Compression types
const (
	CompressionGzip = "gzip"
	CompressionNone = "none"
)

// CompressionConfig controls archive compression
type CompressionConfig struct {
	Type  string `json:"type"`
	Level int    `json:"level,omitempty"`
}

// normalizeCompression defaults to gzip at level 6. Only "none" disables it.
func normalizeCompression(c CompressionConfig) CompressionConfig {
	if strings.EqualFold(strings.TrimSpace(c.Type), CompressionNone) {
		return CompressionConfig{Type: CompressionNone}
	}
	level := c.Level
	if level == 0 {
		level = 6
	}
	return CompressionConfig{
		Type:  CompressionGzip,
		Level: max(gzip.BestSpeed, min(level, gzip.BestCompression)),
	}
}

func (c CompressionConfig) extension() string {
	if normalizeCompression(c).Type == CompressionNone {
		return "tar"
	}
	return "tar.gz"
}

// compressionForFilename picks the codec of a stored archive by suffix
func compressionForFilename(filename string) CompressionConfig {
	if strings.HasSuffix(strings.ToLower(path.Base(filename)), ".tar") {
		return CompressionConfig{Type: CompressionNone}
	}
	return normalizeCompression(CompressionConfig{})
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// newCompressor wraps w. Closing the result flushes the codec, not w.
func newCompressor(w io.Writer, c CompressionConfig) (io.WriteCloser, error) {
	c = normalizeCompression(c)
	if c.Type == CompressionNone {
		return nopWriteCloser{w}, nil
	}
	return gzip.NewWriterLevel(w, c.Level)
}

func newDecompressor(r io.Reader, c CompressionConfig) (io.ReadCloser, error) {
	if normalizeCompression(c).Type == CompressionNone {
		return io.NopCloser(r), nil
	}
	return gzip.NewReader(r)
}
