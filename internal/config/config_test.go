package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestResolveConfigPathPrefersParentConfigs(t *testing.T) {
	root := t.TempDir()
	configsDir := filepath.Join(root, "configs")
	if err := os.MkdirAll(configsDir, 0755); err != nil {
		t.Fatalf("failed to create configs dir: %v", err)
	}
	configPath := filepath.Join(configsDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("server:\n  host: 0.0.0.0\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	backendDir := filepath.Join(root, "backend")
	if err := os.MkdirAll(backendDir, 0755); err != nil {
		t.Fatalf("failed to create backend dir: %v", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get cwd: %v", err)
	}
	defer func() {
		_ = os.Chdir(cwd)
	}()

	if err := os.Chdir(backendDir); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}

	resolved := resolveConfigPath()
	if resolved != "../configs/config.yaml" {
		t.Fatalf("expected ../configs/config.yaml, got %s", resolved)
	}
}

func TestResolveConfigPathUsesLocalConfigs(t *testing.T) {
	root := t.TempDir()
	configsDir := filepath.Join(root, "configs")
	if err := os.MkdirAll(configsDir, 0755); err != nil {
		t.Fatalf("failed to create configs dir: %v", err)
	}
	configPath := filepath.Join(configsDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("server:\n  host: 0.0.0.0\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get cwd: %v", err)
	}
	defer func() {
		_ = os.Chdir(cwd)
	}()

	if err := os.Chdir(root); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}

	resolved := resolveConfigPath()
	if resolved != "./configs/config.yaml" {
		t.Fatalf("expected ./configs/config.yaml, got %s", resolved)
	}
}

func TestNormalizeStoragePathsDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.normalizeStoragePaths("configs/config.yaml")

	if cfg.Storage.ConfigDir == "" {
		t.Fatalf("expected ConfigDir to be set")
	}
	if cfg.Storage.DataDir == "" {
		t.Fatalf("expected DataDir to be set")
	}
	if !filepath.IsAbs(cfg.Game.WorkingDir) || filepath.Base(cfg.Game.WorkingDir) != "server" {
		t.Fatalf("expected absolute server working dir, got %s", cfg.Game.WorkingDir)
	}
}

func TestNormalizeKeepsBareJavaCommand(t *testing.T) {
	cfg := &Config{Game: GameConfig{JavaPath: "java"}}
	cfg.normalizeStoragePaths("configs/config.yaml")
	if cfg.Game.JavaPath != "java" {
		t.Fatalf("bare command must stay on PATH lookup, got %s", cfg.Game.JavaPath)
	}

	cfg = &Config{Game: GameConfig{JavaPath: "jdk/bin/java"}}
	cfg.normalizeStoragePaths("configs/config.yaml")
	if !filepath.IsAbs(cfg.Game.JavaPath) {
		t.Fatalf("relative java path must be resolved, got %s", cfg.Game.JavaPath)
	}
}

func TestLoadAppliesFileAndEnv(t *testing.T) {
	root := t.TempDir()
	configsDir := filepath.Join(root, "configs")
	if err := os.MkdirAll(configsDir, 0755); err != nil {
		t.Fatalf("failed to create configs dir: %v", err)
	}
	configPath := filepath.Join(configsDir, "config.yaml")
	content := "game:\n  jar: paper.jar\n  stop_timeout: 45s\n  auto_restart: true\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("CONFIG_PATH", configPath)
	t.Setenv("JWT_SECRET", "test-secret-value")
	t.Setenv("SERVER_DIR", "/srv/minecraft")
	t.Setenv("JAVA_PATH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Game.Jar != "paper.jar" || !cfg.Game.AutoRestart {
		t.Fatalf("file values not applied: %+v", cfg.Game)
	}
	if cfg.Game.WorkingDir != filepath.Clean("/srv/minecraft") {
		t.Fatalf("expected SERVER_DIR override, got %s", cfg.Game.WorkingDir)
	}
	if Duration(cfg.Game.StopTimeout, time.Second) != 45*time.Second {
		t.Fatalf("unexpected stop timeout %s", cfg.Game.StopTimeout)
	}
	if cfg.Game.ProbeCommand != "list" {
		t.Fatalf("expected default probe command, got %q", cfg.Game.ProbeCommand)
	}
	if cfg.Storage.DataDir != filepath.Join(root, "data") {
		t.Fatalf("expected data dir next to configs, got %s", cfg.Storage.DataDir)
	}
}

func TestValidateRejectsDefaultSecret(t *testing.T) {
	cfg := Default()
	cfg.Auth.JWTSecret = "change-me-in-production"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected default secret to be rejected")
	}
}

func TestGameValidate(t *testing.T) {
	game := Default().Game
	if err := game.Validate(); err != nil {
		t.Fatalf("default game config must be valid: %v", err)
	}

	bad := game
	bad.ProbeInterval = "often"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected invalid duration to be rejected")
	}

	bad = game
	bad.StopCommand = "stop\nop Steve"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected multi-line stop command to be rejected")
	}
}

func TestBackupValidate(t *testing.T) {
	backup := Default().Backup
	if err := backup.Validate(); err != nil {
		t.Fatalf("default backup config must be valid: %v", err)
	}

	bad := backup
	bad.Paths = []string{"../outside"}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected path outside the working dir to be rejected")
	}

	bad = backup
	bad.Destination = BackupDestinationConfig{Type: "sftp", Host: "backup.example.com", Username: "mc"}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected sftp without credentials to be rejected")
	}

	bad = backup
	bad.Destination = BackupDestinationConfig{Type: "ftp"}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected unknown destination type to be rejected")
	}
}

func TestNormalizeBackupDestination(t *testing.T) {
	cfg := Default()
	cfg.Storage.DataDir = ""
	cfg.normalizeStoragePaths("configs/config.yaml")

	want := filepath.Join(cfg.Storage.DataDir, "backups")
	if cfg.Backup.Destination.Path != want {
		t.Fatalf("expected local backups under data dir %s, got %s", want, cfg.Backup.Destination.Path)
	}
	if cfg.Backup.Destination.KnownHosts == "" {
		t.Fatalf("expected known_hosts default")
	}
}

func TestDurationFallback(t *testing.T) {
	if Duration("", 5*time.Second) != 5*time.Second {
		t.Fatalf("expected fallback for empty value")
	}
	if Duration("nonsense", 5*time.Second) != 5*time.Second {
		t.Fatalf("expected fallback for invalid value")
	}
	if Duration("250ms", time.Second) != 250*time.Millisecond {
		t.Fatalf("expected parsed value")
	}
}

func TestNormalizeSelfSignedTLS(t *testing.T) {
	cfg := Default()
	cfg.Storage.DataDir = ""
	cfg.Server.TLS.Enabled = true
	cfg.Server.TLS.SelfSigned = true
	cfg.normalizeStoragePaths("configs/config.yaml")

	if cfg.Server.TLS.CertFile != filepath.Join(cfg.Storage.DataDir, "tls", "server.crt") {
		t.Fatalf("unexpected cert path %s", cfg.Server.TLS.CertFile)
	}
	if cfg.Server.TLS.KeyFile != filepath.Join(cfg.Storage.DataDir, "tls", "server.key") {
		t.Fatalf("unexpected key path %s", cfg.Server.TLS.KeyFile)
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Auth.JWTSecret = "${JWT_SECRET}"
	cfg.Auth.BcryptCost = 4
	cfg.Game.MaxRestarts = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{"unexpanded", "bcrypt_cost", "max_restarts"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestValidateAllowsJarDiscovery(t *testing.T) {
	cfg := Default()
	cfg.Game.Jar = ""

	if err := cfg.Game.Validate(); err != nil {
		t.Fatalf("empty game.jar picks the first jar in working_dir: %v", err)
	}
}
