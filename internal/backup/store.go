package backup

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"
)

// Backup statuses
const (
	StatusCreating  = "creating"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusDeleted   = "deleted"
)

// ErrNotFound is returned for unknown backup IDs
var ErrNotFound = errors.New("backup not found")

// Record represents a backup row in the database
type Record struct {
	ID              string                 `json:"id"`
	Filename        string                 `json:"filename"`
	SizeBytes       int64                  `json:"size_bytes"`
	CreatedAt       time.Time              `json:"created_at"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	DestinationType string                 `json:"destination_type"`
	DestinationPath string                 `json:"destination_path"`
	Status          string                 `json:"status"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedBy       string                 `json:"created_by,omitempty"`
}

// Store persists backup records
type Store struct {
	db *sql.DB
}

// NewStore creates a backup record store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const recordColumns = `id, filename, size_bytes, created_at, completed_at,
	destination_type, destination_path, status, error_message, metadata, created_by`

// Save inserts or updates a record
func (s *Store) Save(record *Record) error {
	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO backups (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		record.Filename,
		record.SizeBytes,
		record.CreatedAt.UTC(),
		nullTime(record.CompletedAt),
		record.DestinationType,
		record.DestinationPath,
		record.Status,
		record.ErrorMessage,
		string(metadataJSON),
		record.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to save backup record: %w", err)
	}
	return nil
}

// Get returns one record, including deleted ones
func (s *Store) Get(id string) (*Record, error) {
	row := s.db.QueryRow(`SELECT `+recordColumns+` FROM backups WHERE id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query backup: %w", err)
	}
	return record, nil
}

// List returns records that are not deleted, newest first. status filters
// when not empty.
func (s *Store) List(status string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + recordColumns + ` FROM backups WHERE status != ?`
	args := []interface{}{StatusDeleted}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query backups: %w", err)
	}
	defer rows.Close()

	records := []*Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	record := &Record{}
	var (
		completedAt  sql.NullTime
		errorMsg     sql.NullString
		metadataJSON sql.NullString
		createdBy    sql.NullString
	)

	err := row.Scan(
		&record.ID,
		&record.Filename,
		&record.SizeBytes,
		&record.CreatedAt,
		&completedAt,
		&record.DestinationType,
		&record.DestinationPath,
		&record.Status,
		&errorMsg,
		&metadataJSON,
		&createdBy,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		t := completedAt.Time
		record.CompletedAt = &t
	}
	record.ErrorMessage = errorMsg.String
	record.CreatedBy = createdBy.String
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &record.Metadata); err != nil {
			log.Printf("[Backup] Warning: Failed to parse metadata of %s: %v", record.ID, err)
		}
	}
	return record, nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
