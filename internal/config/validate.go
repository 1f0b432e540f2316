package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Validate reports every problem with the configuration at once
func (c *Config) Validate() error {
	var errs []error

	switch secret := c.Auth.JWTSecret; {
	case secret == "" || secret == insecureJWTSecret:
		errs = append(errs, errors.New("JWT_SECRET must be set to a secure value"))
	case strings.HasPrefix(secret, "${"):
		errs = append(errs, errors.New("JWT_SECRET contains unexpanded environment variable"))
	}

	if tls := c.Server.TLS; tls.Enabled && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("TLS is enabled but cert_file or key_file is missing"))
	}
	if c.Auth.BcryptCost < 10 || c.Auth.BcryptCost > 14 {
		errs = append(errs, errors.New("bcrypt_cost must be between 10 and 14"))
	}
	errs = append(errs, c.Auth.validateUsers())
	errs = append(errs, c.Game.Validate())
	if c.Backup.Enabled {
		errs = append(errs, c.Backup.Validate())
	}
	return errors.Join(errs...)
}

func (a AuthConfig) validateUsers() error {
	seen := map[string]bool{a.AdminUsername: true}
	for _, user := range a.Users {
		if user.Username == "" || user.PasswordHash == "" {
			return errors.New("auth.users entries need username and password_hash")
		}
		if seen[user.Username] {
			return fmt.Errorf("auth.users: duplicate username %q", user.Username)
		}
		seen[user.Username] = true
		if user.Role != "admin" && user.Role != "operator" && user.Role != "viewer" {
			return fmt.Errorf("auth.users: unknown role %q for %s", user.Role, user.Username)
		}
	}
	return nil
}

func checkDurations(prefix string, values map[string]string) error {
	for name, value := range values {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s.%s: %w", prefix, name, err)
		}
	}
	return nil
}

// Validate checks the game process settings
func (g GameConfig) Validate() error {
	if strings.ContainsAny(g.StopCommand+g.ProbeCommand, "\r\n") {
		return errors.New("game stop_command and probe_command must be single lines")
	}
	if g.MaxRestarts < 0 {
		return errors.New("game.max_restarts must not be negative")
	}
	return checkDurations("game", map[string]string{
		"stop_timeout":    g.StopTimeout,
		"probe_interval":  g.ProbeInterval,
		"sample_interval": g.SampleInterval,
		"restart_backoff": g.RestartBackoff,
	})
}

// Validate checks the backup settings
func (b BackupConfig) Validate() error {
	if len(b.Paths) == 0 {
		return errors.New("backup.paths must name at least one path")
	}
	for _, p := range b.Paths {
		clean := filepath.Clean(p)
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return fmt.Errorf("backup.paths must stay inside game.working_dir: %q", p)
		}
	}
	if b.Compression != "" && b.Compression != "gzip" && b.Compression != "none" {
		return errors.New("backup.compression must be gzip or none")
	}
	if b.Retention < 0 {
		return errors.New("backup.retention must not be negative")
	}
	if err := checkDurations("backup", map[string]string{"save_settle": b.SaveSettle}); err != nil {
		return err
	}
	return b.Destination.validate()
}

func (d BackupDestinationConfig) validate() error {
	switch d.Type {
	case "", "local":
		return nil
	case "sftp":
		if d.Host == "" || d.Username == "" {
			return errors.New("backup.destination: sftp needs host and username")
		}
		if d.Password == "" && d.KeyFile == "" {
			return errors.New("backup.destination: sftp needs password or key_file")
		}
		return nil
	case "s3":
		if d.Bucket == "" || d.Region == "" {
			return errors.New("backup.destination: s3 needs bucket and region")
		}
		return nil
	default:
		return errors.New("backup.destination.type must be local, sftp or s3")
	}
}
