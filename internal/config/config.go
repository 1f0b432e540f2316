package config

import (
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Auth     AuthConfig     `yaml:"auth" json:"auth"`
	Security SecurityConfig `yaml:"security" json:"security"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
	Game     GameConfig     `yaml:"game" json:"game"`
	Backup   BackupConfig   `yaml:"backup" json:"backup"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string    `yaml:"host" json:"host"`
	Port int       `yaml:"port" json:"port"`
	TLS  TLSConfig `yaml:"tls" json:"tls"`
}

// TLSConfig contains TLS/HTTPS settings
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	CertFile string `yaml:"cert_file" json:"cert_file"`
	KeyFile  string `yaml:"key_file" json:"key_file"`
	// SelfSigned generates cert_file and key_file when they are missing
	SelfSigned bool     `yaml:"self_signed" json:"self_signed"`
	Hosts      []string `yaml:"hosts" json:"hosts"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path           string `yaml:"path" json:"path"`
	MaxConnections int    `yaml:"max_connections" json:"max_connections"`
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	JWTSecret           string `yaml:"jwt_secret" json:"-"`
	AccessTokenDuration string `yaml:"access_token_duration" json:"access_token_duration"`
	AdminUsername       string `yaml:"admin_username" json:"admin_username"`
	AdminPasswordHash   string `yaml:"admin_password_hash" json:"-"`
	BcryptCost          int    `yaml:"bcrypt_cost" json:"bcrypt_cost"`

	// Additional accounts besides the admin
	Users []UserConfig `yaml:"users" json:"users"`
}

// UserConfig is a console account with a fixed role
type UserConfig struct {
	Username     string `yaml:"username" json:"username"`
	PasswordHash string `yaml:"password_hash" json:"-"`
	Role         string `yaml:"role" json:"role"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" json:"cors"`
}

// RateLimitConfig contains rate limiting settings
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// CORSConfig contains CORS settings
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
}

// StorageConfig contains storage paths
type StorageConfig struct {
	ConfigDir string `yaml:"config_dir" json:"config_dir"`
	DataDir   string `yaml:"data_dir" json:"data_dir"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
}

// MetricsConfig contains resource sample retention settings
type MetricsConfig struct {
	Enabled       bool `yaml:"enabled" json:"enabled"`
	RetentionDays int  `yaml:"retention_days" json:"retention_days"`
}

// GameConfig describes the supervised game server process
type GameConfig struct {
	JavaPath   string   `yaml:"java_path" json:"java_path"`
	JVMArgs    []string `yaml:"jvm_args" json:"jvm_args"`
	Jar        string   `yaml:"jar" json:"jar"`
	ServerArgs []string `yaml:"server_args" json:"server_args"`
	WorkingDir string   `yaml:"working_dir" json:"working_dir"`

	StopCommand    string `yaml:"stop_command" json:"stop_command"`
	StopTimeout    string `yaml:"stop_timeout" json:"stop_timeout"`
	ProbeCommand   string `yaml:"probe_command" json:"probe_command"`
	ProbeInterval  string `yaml:"probe_interval" json:"probe_interval"`
	SampleInterval string `yaml:"sample_interval" json:"sample_interval"`
	EventBuffer    int    `yaml:"event_buffer" json:"event_buffer"`

	ConsoleBufferLines int `yaml:"console_buffer_lines" json:"console_buffer_lines"`

	AutoStart      bool   `yaml:"auto_start" json:"auto_start"`
	AutoRestart    bool   `yaml:"auto_restart" json:"auto_restart"`
	MaxRestarts    int    `yaml:"max_restarts" json:"max_restarts"`
	RestartBackoff string `yaml:"restart_backoff" json:"restart_backoff"`
}

// BackupConfig controls world backups of the game working directory
type BackupConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Paths are relative to game.working_dir
	Paths            []string `yaml:"paths" json:"paths"`
	Exclude          []string `yaml:"exclude" json:"exclude"`
	Compression      string   `yaml:"compression" json:"compression"`
	CompressionLevel int      `yaml:"compression_level" json:"compression_level"`
	// Retention is the number of completed backups to keep, 0 keeps all
	Retention int `yaml:"retention" json:"retention"`
	// SaveSettle is how long to wait after save-all before archiving
	SaveSettle  string                  `yaml:"save_settle" json:"save_settle"`
	Destination BackupDestinationConfig `yaml:"destination" json:"destination"`
}

// BackupDestinationConfig selects where archives are stored. Password and
// SecretKey may be "enc:" values sealed with ENCRYPTION_KEY.
type BackupDestinationConfig struct {
	Type string `yaml:"type" json:"type"` // local, sftp, s3
	Path string `yaml:"path" json:"path"`

	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port"`
	Username        string `yaml:"username" json:"username"`
	Password        string `yaml:"password" json:"-"`
	KeyFile         string `yaml:"key_file" json:"key_file"`
	KnownHosts      string `yaml:"known_hosts" json:"known_hosts"`
	TrustOnFirstUse bool   `yaml:"trust_on_first_use" json:"trust_on_first_use"`

	Bucket    string `yaml:"bucket" json:"bucket"`
	Region    string `yaml:"region" json:"region"`
	AccessKey string `yaml:"access_key" json:"-"`
	SecretKey string `yaml:"secret_key" json:"-"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Path:           "./data/craft-manager.db",
			MaxConnections: 25,
		},
		Auth: AuthConfig{
			JWTSecret:           insecureJWTSecret,
			AccessTokenDuration: "12h",
			AdminUsername:       "admin",
			BcryptCost:          12,
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
			},
			CORS: CORSConfig{
				AllowedOrigins: []string{"http://localhost:5173"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			},
		},
		Storage: StorageConfig{
			ConfigDir: "./configs",
			DataDir:   "./data",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			RetentionDays: 2,
		},
		Game: GameConfig{
			JVMArgs:            []string{"-Xms1G", "-Xmx2G"},
			Jar:                "server.jar",
			ServerArgs:         []string{"nogui"},
			WorkingDir:         "./server",
			StopCommand:        "stop",
			StopTimeout:        "30s",
			ProbeCommand:       "list",
			ProbeInterval:      "10s",
			SampleInterval:     "2s",
			EventBuffer:        256,
			ConsoleBufferLines: 1000,
			MaxRestarts:        3,
			RestartBackoff:     "10s",
		},
		Backup: BackupConfig{
			Paths:            []string{"world", "world_nether", "world_the_end"},
			Exclude:          []string{"session.lock"},
			Compression:      "gzip",
			CompressionLevel: 6,
			Retention:        7,
			SaveSettle:       "5s",
			Destination: BackupDestinationConfig{
				Type: "local",
				Port: 22,
			},
		},
	}
}

// Duration parses a duration setting, falling back when empty or invalid
func Duration(value string, fallback time.Duration) time.Duration {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
