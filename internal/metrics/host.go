package metrics

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostSnapshot describes the machine the game server runs on
type HostSnapshot struct {
	LogicalCPUs     int     `json:"logical_cpus"`
	Load1           float64 `json:"load1"`
	MemoryTotal     uint64  `json:"memory_total"`
	MemoryAvailable uint64  `json:"memory_available"`
	DiskPath        string  `json:"disk_path"`
	DiskTotal       uint64  `json:"disk_total"`
	DiskFree        uint64  `json:"disk_free"`
}

// Host reads memory, load and disk usage for the filesystem holding path.
// Parts that cannot be read on this platform are left zero.
func Host(ctx context.Context, path string) (HostSnapshot, error) {
	snapshot := HostSnapshot{LogicalCPUs: runtime.NumCPU(), DiskPath: path}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return snapshot, err
	}
	snapshot.MemoryTotal = vm.Total
	snapshot.MemoryAvailable = vm.Available

	if avg, err := load.AvgWithContext(ctx); err == nil {
		snapshot.Load1 = avg.Load1
	}

	if path != "" {
		if usage, err := disk.UsageWithContext(ctx, path); err == nil {
			snapshot.DiskTotal = usage.Total
			snapshot.DiskFree = usage.Free
		}
	}

	return snapshot, nil
}
