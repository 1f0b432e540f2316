package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/craft-server-manager/internal/config"
	"github.com/yourusername/craft-server-manager/internal/logging"
	"github.com/yourusername/craft-server-manager/internal/server"
)

var (
	// ErrBusy is returned while another backup or restore runs
	ErrBusy = errors.New("a backup or restore is already running")
	// ErrServerRunning is returned when restoring into a live world
	ErrServerRunning = errors.New("server must be stopped before restoring")
)

// Target is the server surface used to pause world saving
type Target interface {
	State() server.State
	SendCommand(text string) error
}

// Manager creates, restores and prunes world backups
type Manager struct {
	cfg        config.BackupConfig
	workingDir string
	stagingDir string
	target     Target
	store      *Store
	activity   *logging.ActivityLogger
	settle     time.Duration

	newDestination func() (Destination, error)

	// one backup or restore at a time
	busy sync.Mutex
}

// NewManager creates a backup manager. Archives are built in stagingDir
// before they are handed to the destination.
func NewManager(cfg config.BackupConfig, workingDir, stagingDir string, target Target, db *sql.DB, activity *logging.ActivityLogger) *Manager {
	return &Manager{
		cfg:        cfg,
		workingDir: workingDir,
		stagingDir: stagingDir,
		target:     target,
		store:      NewStore(db),
		activity:   activity,
		settle:     config.Duration(cfg.SaveSettle, 5*time.Second),
		newDestination: func() (Destination, error) {
			return NewDestination(cfg.Destination)
		},
	}
}

// Enabled reports whether backups are configured
func (m *Manager) Enabled() bool {
	return m.cfg.Enabled
}

// Busy reports whether a backup or restore is running
func (m *Manager) Busy() bool {
	if !m.busy.TryLock() {
		return true
	}
	m.busy.Unlock()
	return false
}

// List returns stored backups, newest first
func (m *Manager) List(limit int) ([]*Record, error) {
	return m.store.List("", limit)
}

// Get returns one backup record
func (m *Manager) Get(id string) (*Record, error) {
	return m.store.Get(id)
}

// Create archives the configured world paths and uploads the archive.
// While the server runs, autosave is paused around the archive step.
func (m *Manager) Create(ctx context.Context, actor string) (*Record, error) {
	if !m.busy.TryLock() {
		return nil, ErrBusy
	}
	defer m.busy.Unlock()

	record, err := m.create(ctx, actor)
	if m.activity != nil {
		id := ""
		if record != nil {
			id = record.ID
		}
		m.activity.LogBackup(actor, logging.ActivityBackupCreate, id, err)
	}
	if err != nil {
		return record, err
	}

	if m.cfg.Retention > 0 {
		if _, err := m.enforceRetention(m.cfg.Retention); err != nil {
			log.Printf("[Backup] Retention failed: %v", err)
		}
	}
	return record, nil
}

func (m *Manager) create(ctx context.Context, actor string) (*Record, error) {
	now := time.Now()
	compression := normalizeCompression(CompressionConfig{Type: m.cfg.Compression, Level: m.cfg.CompressionLevel})

	record := &Record{
		ID:              "backup-" + uuid.New().String()[:8],
		Status:          StatusCreating,
		CreatedAt:       now,
		DestinationType: destinationType(m.cfg.Destination),
		DestinationPath: m.cfg.Destination.Path,
		CreatedBy:       actor,
	}
	if err := m.store.Save(record); err != nil {
		return nil, err
	}
	log.Printf("[Backup] Creating backup %s", record.ID)

	fail := func(err error) (*Record, error) {
		record.Status = StatusFailed
		record.ErrorMessage = err.Error()
		if saveErr := m.store.Save(record); saveErr != nil {
			log.Printf("[Backup] Failed to record failure of %s: %v", record.ID, saveErr)
		}
		return record, err
	}

	if err := os.MkdirAll(m.stagingDir, 0755); err != nil {
		return fail(fmt.Errorf("failed to create staging directory: %w", err))
	}
	archivePath := filepath.Join(m.stagingDir, ArchiveFilename(now, record.ID, compression))
	defer os.Remove(archivePath)

	resume := m.pauseSaving(ctx)
	info, err := CreateArchive(ctx, m.workingDir, m.cfg.Paths, m.cfg.Exclude, archivePath, compression)
	resume()
	if err != nil {
		return fail(err)
	}

	if err := m.upload(info); err != nil {
		return fail(err)
	}

	completed := time.Now()
	record.Status = StatusCompleted
	record.CompletedAt = &completed
	record.Filename = info.Filename
	record.SizeBytes = info.SizeBytes
	record.Metadata = map[string]interface{}{
		"paths":       info.Paths,
		"exclude":     m.cfg.Exclude,
		"file_count":  info.FileCount,
		"compression": info.Compression,
	}
	if err := m.store.Save(record); err != nil {
		log.Printf("[Backup] Warning: Failed to update backup status: %v", err)
	}

	log.Printf("[Backup] Backup %s created: %s (%d bytes, %d files)",
		record.ID, info.Filename, info.SizeBytes, info.FileCount)
	return record, nil
}

// pauseSaving turns autosave off and flushes the world when the server is
// running. The returned func turns autosave back on.
func (m *Manager) pauseSaving(ctx context.Context) func() {
	if m.target == nil || m.target.State() != server.StateRunning {
		return func() {}
	}

	if err := m.target.SendCommand("save-off"); err != nil {
		log.Printf("[Backup] Could not pause autosave: %v", err)
		return func() {}
	}
	if err := m.target.SendCommand("save-all flush"); err != nil {
		log.Printf("[Backup] Could not flush world: %v", err)
	}

	timer := time.NewTimer(m.settle)
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	timer.Stop()

	return func() {
		if m.target.State() != server.StateRunning {
			return
		}
		if err := m.target.SendCommand("save-on"); err != nil {
			log.Printf("[Backup] Could not resume autosave: %v", err)
		}
	}
}

func (m *Manager) upload(info *ArchiveInfo) error {
	dest, err := m.newDestination()
	if err != nil {
		return fmt.Errorf("failed to open destination: %w", err)
	}
	defer dest.Close()

	file, err := os.Open(info.Path)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	if err := dest.Upload(info.Filename, file, info.SizeBytes); err != nil {
		return fmt.Errorf("failed to upload to %s destination: %w", dest.GetType(), err)
	}
	return nil
}

// Restore replaces the world with the contents of a completed backup. The
// server must be stopped. Top-level entries in the archive replace their
// counterparts in the working directory; other files are left alone.
func (m *Manager) Restore(ctx context.Context, id, actor string) error {
	if !m.busy.TryLock() {
		return ErrBusy
	}
	defer m.busy.Unlock()

	err := m.restore(ctx, id)
	if m.activity != nil {
		m.activity.LogBackup(actor, logging.ActivityBackupRestore, id, err)
	}
	return err
}

func (m *Manager) restore(ctx context.Context, id string) error {
	if m.target != nil && m.target.State() != server.StateStopped {
		return ErrServerRunning
	}

	record, err := m.store.Get(id)
	if err != nil {
		return err
	}
	if record.Status != StatusCompleted {
		return fmt.Errorf("backup %s is %s, not completed", id, record.Status)
	}

	dest, err := m.newDestination()
	if err != nil {
		return fmt.Errorf("failed to open destination: %w", err)
	}
	defer dest.Close()
	if dest.GetType() != record.DestinationType {
		return fmt.Errorf("backup %s is stored in %s, current destination is %s", id, record.DestinationType, dest.GetType())
	}

	if err := os.MkdirAll(m.stagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	download, err := os.CreateTemp(m.stagingDir, "restore-*.part")
	if err != nil {
		return fmt.Errorf("failed to create download file: %w", err)
	}
	defer os.Remove(download.Name())
	defer download.Close()

	if err := dest.Download(record.Filename, download); err != nil {
		return err
	}
	if _, err := download.Seek(0, 0); err != nil {
		return err
	}

	// extract next to the world so the final renames stay on one filesystem
	extractDir := filepath.Join(m.workingDir, ".restore-"+record.ID)
	if err := os.RemoveAll(extractDir); err != nil {
		return err
	}
	defer os.RemoveAll(extractDir)

	count, err := ExtractArchive(ctx, download, extractDir, compressionForFilename(record.Filename))
	if err != nil {
		return fmt.Errorf("failed to extract backup: %w", err)
	}

	entries, err := os.ReadDir(extractDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		target := filepath.Join(m.workingDir, entry.Name())
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("failed to replace %s: %w", entry.Name(), err)
		}
		if err := os.Rename(filepath.Join(extractDir, entry.Name()), target); err != nil {
			return fmt.Errorf("failed to move %s into place: %w", entry.Name(), err)
		}
	}

	log.Printf("[Backup] Restored %s (%d files)", record.ID, count)
	return nil
}

// Delete removes a backup from its destination and marks it deleted
func (m *Manager) Delete(id, actor string) error {
	err := m.delete(id)
	if m.activity != nil {
		m.activity.LogBackup(actor, logging.ActivityBackupDelete, id, err)
	}
	return err
}

func (m *Manager) delete(id string) error {
	record, err := m.store.Get(id)
	if err != nil {
		return err
	}
	if record.Status == StatusDeleted {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if record.Filename != "" {
		dest, err := m.newDestination()
		if err != nil {
			return fmt.Errorf("failed to open destination: %w", err)
		}
		defer dest.Close()

		if dest.GetType() == record.DestinationType {
			if err := dest.Delete(record.Filename); err != nil {
				log.Printf("[Backup] Warning: Failed to delete %s from destination: %v", record.Filename, err)
			}
		}
	}

	record.Status = StatusDeleted
	return m.store.Save(record)
}

func destinationType(cfg config.BackupDestinationConfig) string {
	if cfg.Type == "" {
		return "local"
	}
	return cfg.Type
}
