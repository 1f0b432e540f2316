package metrics

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/yourusername/craft-server-manager/internal/config"
	"github.com/yourusername/craft-server-manager/internal/database"
	"github.com/yourusername/craft-server-manager/internal/server"
)

// cleanupInterval bounds how often retention pruning runs
const cleanupInterval = 6 * time.Hour

// Point is one stored resource sample
type Point struct {
	Timestamp   time.Time `json:"timestamp"`
	PID         int       `json:"pid"`
	CPUPercent  float64   `json:"cpu_percent"`
	MemoryBytes uint64    `json:"memory_bytes"`
	PlayerCount int       `json:"player_count"`
}

// Summary aggregates points over a window
type Summary struct {
	Samples        int     `json:"samples"`
	AvgCPUPercent  float64 `json:"avg_cpu_percent"`
	MaxCPUPercent  float64 `json:"max_cpu_percent"`
	AvgMemoryBytes uint64  `json:"avg_memory_bytes"`
	MaxMemoryBytes uint64  `json:"max_memory_bytes"`
	MaxPlayers     int     `json:"max_players"`
}

// Recorder stores supervisor resource samples and prunes them by retention
type Recorder struct {
	cfg         config.MetricsConfig
	db          *database.DB
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	mu          sync.Mutex
	lastCleanup time.Time
}

func NewRecorder(cfg config.MetricsConfig, db *database.DB) *Recorder {
	return &Recorder{
		cfg:    cfg,
		db:     db,
		stopCh: make(chan struct{}),
	}
}

// Start runs the retention loop
func (r *Recorder) Start() {
	if !r.cfg.Enabled {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()

		r.cleanupOldMetrics(time.Now())
		for {
			select {
			case now := <-ticker.C:
				r.cleanupOldMetrics(now)
			case <-r.stopCh:
				return
			}
		}
	}()
}

func (r *Recorder) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// Record stores one sample with the player count at the time it was taken
func (r *Recorder) Record(sample server.ResourceSample, playerCount int) error {
	if !r.cfg.Enabled || r.db == nil {
		return nil
	}

	timestamp := sample.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	_, err := r.db.Exec(`
		INSERT INTO server_metrics (timestamp, pid, cpu_percent, memory_bytes, player_count)
		VALUES (?, ?, ?, ?, ?)
	`,
		timestamp.UTC(),
		sample.PID,
		clampCPU(sample.CPUPercent),
		int64(sample.MemoryBytes),
		playerCount,
	)
	if err != nil {
		return fmt.Errorf("failed to record metrics: %w", err)
	}
	return nil
}

// clampCPU keeps bogus readings out of storage. Multi-threaded servers
// legitimately exceed 100.
func clampCPU(value float64) float64 {
	if value < 0 {
		return 0
	}
	return value
}

// Latest returns the most recent point, or nil when none exist
func (r *Recorder) Latest() (*Point, error) {
	if r.db == nil {
		return nil, fmt.Errorf("database not available")
	}

	row := r.db.QueryRow(`
		SELECT timestamp, pid, cpu_percent, memory_bytes, player_count
		FROM server_metrics
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`)

	point, err := scanPoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest metrics: %w", err)
	}
	return point, nil
}

// Range returns points newer than since in chronological order
func (r *Recorder) Range(since time.Time, limit int) ([]Point, error) {
	if r.db == nil {
		return nil, fmt.Errorf("database not available")
	}
	if limit <= 0 {
		limit = 1000
	}

	// newest `limit` rows, flipped back to ascending below
	rows, err := r.db.Query(`
		SELECT timestamp, pid, cpu_percent, memory_bytes, player_count
		FROM server_metrics
		WHERE timestamp >= ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	points := make([]Point, 0)
	for rows.Next() {
		point, err := scanPoint(rows)
		if err != nil {
			log.Printf("[Metrics] Error scanning row: %v", err)
			continue
		}
		points = append(points, *point)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

// Summarize aggregates the points newer than since
func (r *Recorder) Summarize(since time.Time) (Summary, error) {
	if r.db == nil {
		return Summary{}, fmt.Errorf("database not available")
	}

	var summary Summary
	var avgCPU, maxCPU, avgMem sql.NullFloat64
	var maxMem, maxPlayers sql.NullInt64

	err := r.db.QueryRow(`
		SELECT COUNT(*), AVG(cpu_percent), MAX(cpu_percent), AVG(memory_bytes), MAX(memory_bytes), MAX(player_count)
		FROM server_metrics
		WHERE timestamp >= ?
	`, since.UTC()).Scan(&summary.Samples, &avgCPU, &maxCPU, &avgMem, &maxMem, &maxPlayers)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to summarize metrics: %w", err)
	}

	summary.AvgCPUPercent = avgCPU.Float64
	summary.MaxCPUPercent = maxCPU.Float64
	summary.AvgMemoryBytes = uint64(avgMem.Float64)
	summary.MaxMemoryBytes = uint64(maxMem.Int64)
	summary.MaxPlayers = int(maxPlayers.Int64)
	return summary, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPoint(row rowScanner) (*Point, error) {
	var point Point
	var memory int64
	if err := row.Scan(&point.Timestamp, &point.PID, &point.CPUPercent, &memory, &point.PlayerCount); err != nil {
		return nil, err
	}
	point.MemoryBytes = uint64(memory)
	return &point, nil
}

func (r *Recorder) cleanupOldMetrics(now time.Time) {
	if r.db == nil || r.cfg.RetentionDays <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lastCleanup.IsZero() && now.Sub(r.lastCleanup) < cleanupInterval {
		return
	}

	cutoff := now.Add(-time.Duration(r.cfg.RetentionDays) * 24 * time.Hour)
	result, err := r.db.Exec("DELETE FROM server_metrics WHERE timestamp < ?", cutoff.UTC())
	if err != nil {
		log.Printf("[Metrics] Retention cleanup failed: %v", err)
		return
	}
	if removed, _ := result.RowsAffected(); removed > 0 {
		log.Printf("[Metrics] Removed %d samples older than %d days", removed, r.cfg.RetentionDays)
	}
	r.lastCleanup = now
}
