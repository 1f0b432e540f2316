package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/yourusername/craft-server-manager/internal/config"
)

func TestInitAndCloseLogger(t *testing.T) {
	root := t.TempDir()
	logPath := filepath.Join(root, "app.log")

	_, err := Init(config.LoggingConfig{
		Level:      "info",
		Format:     "json",
		File:       logPath,
		MaxSize:    10,
		MaxBackups: 1,
		MaxAge:     1,
	})
	if err != nil {
		t.Fatalf("failed to init logger: %v", err)
	}

	L().Info("test_log")
	Component("supervisor").Info("component_log")
	if err := Close(); err != nil {
		t.Fatalf("failed to close logger: %v", err)
	}
}

func TestSlogWriterExtractsComponent(t *testing.T) {
	var buf bytes.Buffer
	w := stdWriter{logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	if _, err := w.Write([]byte("[Supervisor] Server started (pid 42)\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("invalid json record %q: %v", buf.String(), err)
	}
	if record["msg"] != "Server started (pid 42)" || record["component"] != "supervisor" {
		t.Fatalf("unexpected record: %v", record)
	}

	buf.Reset()
	if _, err := w.Write([]byte("[Backup] Failed to open destination\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	record = nil
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("invalid json record %q: %v", buf.String(), err)
	}
	if record["level"] != "ERROR" {
		t.Fatalf("expected error level, got %v", record["level"])
	}
}

func TestSplitTag(t *testing.T) {
	cases := []struct {
		in, tag, rest string
		ok            bool
	}{
		{"[Scheduler] Started", "Scheduler", "Started", true},
		{"[] nothing", "", "[] nothing", false},
		{"[Tag]", "", "[Tag]", false},
		{"plain line", "", "plain line", false},
	}
	for _, c := range cases {
		tag, rest, ok := splitTag(c.in)
		if tag != c.tag || rest != c.rest || ok != c.ok {
			t.Errorf("splitTag(%q) = %q, %q, %v", c.in, tag, rest, ok)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}
