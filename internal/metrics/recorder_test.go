package metrics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/yourusername/craft-server-manager/internal/config"
	"github.com/yourusername/craft-server-manager/internal/database"
	"github.com/yourusername/craft-server-manager/internal/server"
)

func newTestRecorder(t *testing.T, retentionDays int) (*Recorder, *database.DB) {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "metrics.db"))
	if err != nil {
		t.Fatalf("failed to create db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewRecorder(config.MetricsConfig{Enabled: true, RetentionDays: retentionDays}, db), db
}

func TestRecordAndQuery(t *testing.T) {
	recorder, _ := newTestRecorder(t, 2)
	base := time.Now().Add(-time.Minute)

	for i := 0; i < 3; i++ {
		sample := server.ResourceSample{
			PID:         100,
			CPUPercent:  float64(10 * (i + 1)),
			MemoryBytes: uint64(1<<20) * uint64(i+1),
			Timestamp:   base.Add(time.Duration(i) * time.Second),
		}
		if err := recorder.Record(sample, i); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	latest, err := recorder.Latest()
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest == nil || latest.CPUPercent != 30 || latest.PlayerCount != 2 {
		t.Fatalf("unexpected latest point: %+v", latest)
	}

	points, err := recorder.Range(base.Add(-time.Second), 2)
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	if len(points) != 2 || points[0].CPUPercent != 20 || points[1].CPUPercent != 30 {
		t.Fatalf("expected the two newest points in order, got %+v", points)
	}

	summary, err := recorder.Summarize(base.Add(-time.Second))
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if summary.Samples != 3 || summary.MaxCPUPercent != 30 || summary.MaxMemoryBytes != 3<<20 || summary.MaxPlayers != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestLatestWithoutSamples(t *testing.T) {
	recorder, _ := newTestRecorder(t, 2)
	latest, err := recorder.Latest()
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest != nil {
		t.Fatalf("expected no point, got %+v", latest)
	}
}

func TestCleanupOldMetrics(t *testing.T) {
	recorder, db := newTestRecorder(t, 1)

	old := server.ResourceSample{PID: 1, CPUPercent: 5, MemoryBytes: 10, Timestamp: time.Now().Add(-48 * time.Hour)}
	fresh := server.ResourceSample{PID: 1, CPUPercent: 7, MemoryBytes: 10, Timestamp: time.Now()}
	for _, sample := range []server.ResourceSample{old, fresh} {
		if err := recorder.Record(sample, 0); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	recorder.cleanupOldMetrics(time.Now())

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM server_metrics").Scan(&count); err != nil {
		t.Fatalf("failed to count metrics: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected only the fresh sample to remain, got %d", count)
	}
}

func TestRecordNegativeCPUIsClamped(t *testing.T) {
	recorder, _ := newTestRecorder(t, 1)
	if err := recorder.Record(server.ResourceSample{PID: 1, CPUPercent: -3, Timestamp: time.Now()}, 0); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	latest, err := recorder.Latest()
	if err != nil || latest == nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.CPUPercent != 0 {
		t.Fatalf("expected clamped cpu, got %v", latest.CPUPercent)
	}
}

func TestStartStop(t *testing.T) {
	recorder, _ := newTestRecorder(t, 1)
	recorder.Start()
	recorder.Stop()
	recorder.Stop()
}

func TestHostSnapshot(t *testing.T) {
	snapshot, err := Host(context.Background(), t.TempDir())
	if err != nil {
		t.Skipf("host memory not readable here: %v", err)
	}
	if snapshot.LogicalCPUs <= 0 || snapshot.MemoryTotal == 0 {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}
