package recorder

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"
	"go.uber.org/zap"
)

const bytesPerGB = 1 << 30

// DiskUsage describes the filesystem holding the recording path.
type DiskUsage struct {
	TotalBytes     uint64  `json:"total_bytes"`
	UsedBytes      uint64  `json:"used_bytes"`
	FreeBytes      uint64  `json:"free_bytes"`
	UsedPercentage float64 `json:"used_percentage"`
}

// DiskUsageProvider reports capacity of the filesystem containing path.
type DiskUsageProvider interface {
	Usage(ctx context.Context, path string) (DiskUsage, error)
}

// SystemDisk reads filesystem usage through gopsutil.
type SystemDisk struct{}

func (SystemDisk) Usage(ctx context.Context, path string) (DiskUsage, error) {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return DiskUsage{}, fmt.Errorf("disk usage %s: %w", path, err)
	}
	return DiskUsage{
		TotalBytes:     u.Total,
		UsedBytes:      u.Used,
		FreeBytes:      u.Free,
		UsedPercentage: u.UsedPercent,
	}, nil
}

// StorageGuard admits new recordings only while free space is at least
// 10% of the configured maximum recording size.
type StorageGuard struct {
	disk      DiskUsageProvider
	path      string
	maxSizeGB float64
	logger    *zap.Logger
}

// NewStorageGuard creates a guard for the filesystem holding path.
func NewStorageGuard(d DiskUsageProvider, path string, maxSizeGB float64, logger *zap.Logger) *StorageGuard {
	if d == nil {
		d = SystemDisk{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StorageGuard{disk: d, path: path, maxSizeGB: maxSizeGB, logger: logger}
}

// RequiredFreeGB is the free space below which starts are refused.
func (g *StorageGuard) RequiredFreeGB() float64 {
	return g.maxSizeGB * 0.1
}

// HasCapacity fails closed: any error reading the filesystem means no capacity.
func (g *StorageGuard) HasCapacity(ctx context.Context) bool {
	u, err := g.disk.Usage(ctx, g.path)
	if err != nil {
		g.logger.Warn("storage check failed", zap.String("path", g.path), zap.Error(err))
		return false
	}
	freeGB := float64(u.FreeBytes) / bytesPerGB
	if freeGB < g.RequiredFreeGB() {
		g.logger.Warn("insufficient storage",
			zap.Float64("free_gb", freeGB),
			zap.Float64("required_gb", g.RequiredFreeGB()),
		)
		return false
	}
	return true
}

// Usage returns current disk figures for statistics and health.
func (g *StorageGuard) Usage(ctx context.Context) (DiskUsage, error) {
	return g.disk.Usage(ctx, g.path)
}
