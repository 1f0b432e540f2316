package backup

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/yourusername/craft-server-manager/internal/logging"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// NewHostKeyCallback verifies SFTP hosts against a known_hosts file. With
// trustOnFirstUse an unknown host is recorded; a changed key is always
// rejected.
func NewHostKeyCallback(knownHostsPath string, trustOnFirstUse bool) (ssh.HostKeyCallback, error) {
	if strings.TrimSpace(knownHostsPath) == "" {
		return nil, errors.New("known_hosts path is required")
	}
	// knownhosts.New needs the file to exist
	file, err := openKnownHosts(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("known_hosts %s: %w", knownHostsPath, err)
	}
	file.Close()

	check, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("parse known_hosts: %w", err)
	}

	logger := logging.Component("backup")
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := check(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if err == nil || !errors.As(err, &keyErr) {
			return err
		}

		fingerprint := ssh.FingerprintSHA256(key)
		if len(keyErr.Want) > 0 {
			logger.Warn("sftp_host_key_changed", "host", hostname, "fingerprint", fingerprint)
			return fmt.Errorf("host key for %s does not match known_hosts", hostname)
		}
		if !trustOnFirstUse {
			return fmt.Errorf("unknown SSH host key for %s (%s)", hostname, fingerprint)
		}

		if err := appendKnownHost(knownHostsPath, knownHostAddresses(hostname, remote), key); err != nil {
			return err
		}
		logger.Info("sftp_host_key_accepted", "host", hostname, "fingerprint", fingerprint)
		return nil
	}, nil
}

// openKnownHosts opens path for appending, creating it and its directory
// with owner-only permissions
func openKnownHosts(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
}

func appendKnownHost(path string, addresses []string, key ssh.PublicKey) error {
	file, err := openKnownHosts(path)
	if err != nil {
		return fmt.Errorf("known_hosts %s: %w", path, err)
	}
	defer file.Close()

	_, err = fmt.Fprintln(file, knownhosts.Line(addresses, key))
	return err
}

// knownHostAddresses lists the dialed name and, when different, the
// resolved address, both in known_hosts form
func knownHostAddresses(hostname string, remote net.Addr) []string {
	var addresses []string
	if hostname != "" {
		addresses = append(addresses, knownhosts.Normalize(hostname))
	}
	if remote != nil {
		resolved := knownhosts.Normalize(remote.String())
		if len(addresses) == 0 || resolved != addresses[0] {
			addresses = append(addresses, resolved)
		}
	}
	return addresses
}
