package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	insecureJWTSecret = "change-me-in-production"
	defaultConfigPath = "./configs/config.yaml"
)

// envOverrides maps environment variables onto settings. An empty variable
// leaves the setting alone.
var envOverrides = []struct {
	name  string
	field func(*Config) *string
}{
	{"JWT_SECRET", func(c *Config) *string { return &c.Auth.JWTSecret }},
	{"DATABASE_PATH", func(c *Config) *string { return &c.Database.Path }},
	{"CONFIG_DIR", func(c *Config) *string { return &c.Storage.ConfigDir }},
	{"DATA_DIR", func(c *Config) *string { return &c.Storage.DataDir }},
	{"LOG_LEVEL", func(c *Config) *string { return &c.Logging.Level }},
	{"JAVA_PATH", func(c *Config) *string { return &c.Game.JavaPath }},
	{"SERVER_DIR", func(c *Config) *string { return &c.Game.WorkingDir }},
}

// Load builds the configuration from defaults, the YAML file at
// GetConfigPath and the environment, in that order. A missing file is not
// an error.
func Load() (*Config, error) {
	path := GetConfigPath()
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	for _, o := range envOverrides {
		if value := os.Getenv(o.name); value != "" {
			*o.field(cfg) = value
		}
	}
	cfg.normalizeStoragePaths(path)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// GetConfigPath returns CONFIG_PATH or the first configs/config.yaml found
// next to or above the working directory
func GetConfigPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return resolveConfigPath()
}

func resolveConfigPath() string {
	for _, candidate := range []string{"../configs/config.yaml", defaultConfigPath} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return defaultConfigPath
}

// pathResolver makes relative settings absolute against the install root,
// the parent of a configs directory or the config file's own directory
type pathResolver struct {
	configDir string
	root      string
}

func newPathResolver(configPath string) pathResolver {
	dir := filepath.Dir(configPath)
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	root := dir
	if filepath.Base(dir) == "configs" {
		root = filepath.Dir(dir)
	}
	return pathResolver{configDir: dir, root: root}
}

func (r pathResolver) abs(value string) string {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return ""
	case filepath.IsAbs(value):
		return filepath.Clean(value)
	default:
		return filepath.Join(r.root, value)
	}
}

// orDefault resolves value, or fallback when value is blank
func (r pathResolver) orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return r.abs(fallback)
	}
	return r.abs(value)
}

func (c *Config) normalizeStoragePaths(configPath string) {
	r := newPathResolver(configPath)

	c.Storage.ConfigDir = r.orDefault(c.Storage.ConfigDir, r.configDir)
	c.Storage.DataDir = r.orDefault(c.Storage.DataDir, "data")
	c.Game.WorkingDir = r.orDefault(c.Game.WorkingDir, "server")

	// a bare command name is looked up on PATH
	if java := strings.TrimSpace(c.Game.JavaPath); strings.ContainsRune(java, filepath.Separator) {
		c.Game.JavaPath = r.abs(java)
	}

	tls := &c.Server.TLS
	if tls.SelfSigned {
		tls.CertFile = r.orDefault(tls.CertFile, filepath.Join(c.Storage.DataDir, "tls", "server.crt"))
		tls.KeyFile = r.orDefault(tls.KeyFile, filepath.Join(c.Storage.DataDir, "tls", "server.key"))
	} else {
		tls.CertFile = r.abs(tls.CertFile)
		tls.KeyFile = r.abs(tls.KeyFile)
	}

	dest := &c.Backup.Destination
	if dest.Type == "" || dest.Type == "local" {
		dest.Path = r.orDefault(dest.Path, filepath.Join(c.Storage.DataDir, "backups"))
	}
	dest.KnownHosts = r.orDefault(dest.KnownHosts, filepath.Join(c.Storage.DataDir, "known_hosts"))
	dest.KeyFile = r.abs(dest.KeyFile)
}
