package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"github.com/yourusername/craft-server-manager/internal/config"
	xssh "golang.org/x/crypto/ssh"
)

const (
	sftpDialTimeout = 30 * time.Second
	sftpMaxPacket   = 128 * 1024
)

// SFTPDestination keeps archives in a directory on a remote host
type SFTPDestination struct {
	dir  string
	conn *xssh.Client
	fs   *sftp.Client
}

// NewSFTPDestination dials the host, opens an SFTP session and creates the
// target directory
func NewSFTPDestination(cfg config.BackupDestinationConfig) (*SFTPDestination, error) {
	clientConfig, err := sshClientConfig(cfg)
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	conn, err := xssh.Dial("tcp", addr, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	client, err := sftp.NewClient(conn,
		sftp.MaxPacketUnchecked(sftpMaxPacket),
		sftp.UseConcurrentWrites(true),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to start sftp session: %w", err)
	}

	dir := strings.TrimSuffix(cfg.Path, "/")
	if dir == "" {
		dir = "."
	}
	sd := &SFTPDestination{dir: dir, conn: conn, fs: client}
	if err := client.MkdirAll(dir); err != nil {
		sd.Close()
		return nil, fmt.Errorf("failed to create %s on %s: %w", dir, addr, err)
	}

	log.Printf("[Backup] SFTP destination ready at %s:%s", addr, dir)
	return sd, nil
}

func sshClientConfig(cfg config.BackupDestinationConfig) (*xssh.ClientConfig, error) {
	var method xssh.AuthMethod
	switch {
	case cfg.KeyFile != "":
		pem, err := ReadPrivateKeyBytes(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key: %w", err)
		}
		signer, err := xssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH key: %w", err)
		}
		method = xssh.PublicKeys(signer)
	case cfg.Password != "":
		method = xssh.Password(cfg.Password)
	default:
		return nil, errors.New("sftp destination needs key_file or password")
	}

	hostKeys, err := NewHostKeyCallback(cfg.KnownHosts, cfg.TrustOnFirstUse)
	if err != nil {
		return nil, fmt.Errorf("failed to configure host key verification: %w", err)
	}

	return &xssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []xssh.AuthMethod{method},
		HostKeyCallback: hostKeys,
		Timeout:         sftpDialTimeout,
	}, nil
}

func (sd *SFTPDestination) resolve(filename string) (string, error) {
	if err := checkName(filename); err != nil {
		return "", err
	}
	return path.Join(sd.dir, filename), nil
}

// Upload streams reader to a hidden remote file and renames it once the
// byte count checks out
func (sd *SFTPDestination) Upload(filename string, reader io.Reader, sizeBytes int64) error {
	target, err := sd.resolve(filename)
	if err != nil {
		return err
	}
	tmp := path.Join(sd.dir, tempPrefix+uuid.NewString()[:8])

	written, err := sd.put(tmp, reader)
	if err == nil && sizeBytes >= 0 && written != sizeBytes {
		err = fmt.Errorf("size mismatch for %s: expected %d bytes, wrote %d", filename, sizeBytes, written)
	}
	if err == nil {
		err = sd.fs.PosixRename(tmp, target)
	}
	if err != nil {
		sd.fs.Remove(tmp)
		return fmt.Errorf("sftp upload of %s failed: %w", filename, err)
	}
	return nil
}

func (sd *SFTPDestination) put(remote string, reader io.Reader) (int64, error) {
	file, err := sd.fs.Create(remote)
	if err != nil {
		return 0, err
	}
	written, err := file.ReadFrom(reader)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	return written, err
}

// Download copies a remote archive to writer
func (sd *SFTPDestination) Download(filename string, writer io.Writer) error {
	source, err := sd.resolve(filename)
	if err != nil {
		return err
	}
	file, err := sd.fs.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open remote %s: %w", filename, err)
	}
	defer file.Close()

	if _, err := file.WriteTo(writer); err != nil {
		return fmt.Errorf("failed to read remote %s: %w", filename, err)
	}
	return nil
}

// Delete removes a remote archive. A missing file is not an error.
func (sd *SFTPDestination) Delete(filename string) error {
	target, err := sd.resolve(filename)
	if err != nil {
		return err
	}
	if err := sd.fs.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete remote %s: %w", filename, err)
	}
	return nil
}

// List returns the finished archives in the remote directory
func (sd *SFTPDestination) List() ([]BackupFile, error) {
	entries, err := sd.fs.ReadDir(sd.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", sd.dir, err)
	}

	files := make([]BackupFile, 0, len(entries))
	for _, entry := range entries {
		if !entry.Mode().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		files = append(files, BackupFile{
			Filename:  entry.Name(),
			SizeBytes: entry.Size(),
			CreatedAt: entry.ModTime().Unix(),
		})
	}
	return files, nil
}

func (sd *SFTPDestination) GetType() string { return "sftp" }

// Close ends the SFTP session and the SSH connection under it
func (sd *SFTPDestination) Close() error {
	var errs []error
	if sd.fs != nil {
		errs = append(errs, sd.fs.Close())
	}
	if sd.conn != nil {
		errs = append(errs, sd.conn.Close())
	}
	return errors.Join(errs...)
}
