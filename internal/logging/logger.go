package logging

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/yourusername/craft-server-manager/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	current atomic.Pointer[slog.Logger]
	discard = slog.New(slog.NewJSONHandler(io.Discard, nil))

	mu     sync.Mutex
	closer io.Closer
)

// Init builds the process logger from cfg and routes the standard library
// logger through it. Calling Init again replaces the previous logger and
// closes its file.
func Init(cfg config.LoggingConfig) (*slog.Logger, error) {
	mu.Lock()
	defer mu.Unlock()

	output, fileCloser := buildOutput(cfg)
	options := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(output, options)
	} else {
		handler = slog.NewJSONHandler(output, options)
	}
	logger := slog.New(handler)

	if closer != nil {
		closer.Close()
	}
	closer = fileCloser
	current.Store(logger)

	slog.SetDefault(logger)
	log.SetFlags(0)
	log.SetOutput(stdWriter{logger: logger})
	return logger, nil
}

// L returns the process logger, or a discarding logger before Init
func L() *slog.Logger {
	if logger := current.Load(); logger != nil {
		return logger
	}
	return discard
}

// Component returns L() tagged with a component attribute
func Component(name string) *slog.Logger {
	return L().With("component", name)
}

// Close closes the log file, if any
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}

// stdWriter turns log.Printf lines into slog records. A leading "[Tag]"
// becomes the component attribute and the level is taken from the wording.
type stdWriter struct {
	logger *slog.Logger
}

func (w stdWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}

	var attrs []any
	if tag, rest, ok := splitTag(msg); ok {
		msg = rest
		attrs = append(attrs, "component", strings.ToLower(tag))
	}
	w.logger.Log(context.Background(), levelFor(msg), msg, attrs...)
	return len(p), nil
}

func splitTag(msg string) (tag, rest string, ok bool) {
	if !strings.HasPrefix(msg, "[") {
		return "", msg, false
	}
	end := strings.IndexByte(msg, ']')
	if end <= 1 {
		return "", msg, false
	}
	rest = strings.TrimSpace(msg[end+1:])
	if rest == "" {
		return "", msg, false
	}
	return msg[1:end], rest, true
}

// levelFor maps the prefixes used across log.Printf calls to a level
func levelFor(msg string) slog.Level {
	switch {
	case strings.HasPrefix(msg, "Warning:"):
		return slog.LevelWarn
	case strings.HasPrefix(msg, "Failed"), strings.HasPrefix(msg, "Error"):
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildOutput(cfg config.LoggingConfig) (io.Writer, io.Closer) {
	if strings.TrimSpace(cfg.File) == "" {
		return os.Stdout, nil
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, file), file
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		if strings.EqualFold(strings.TrimSpace(level), "warning") {
			return slog.LevelWarn
		}
		return slog.LevelInfo
	}
	return l
}
