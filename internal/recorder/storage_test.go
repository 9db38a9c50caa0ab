package recorder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageGuardHasCapacity(t *testing.T) {
	tests := []struct {
		name string
		disk fakeDisk
		want bool
	}{
		{"well above threshold", fakeDisk{usage: DiskUsage{FreeBytes: 50 * bytesPerGB}}, true},
		{"exactly ten percent", fakeDisk{usage: DiskUsage{FreeBytes: 10 * bytesPerGB}}, true},
		{"just below", fakeDisk{usage: DiskUsage{FreeBytes: 10*bytesPerGB - 1}}, false},
		{"disk full", fakeDisk{usage: DiskUsage{FreeBytes: 0}}, false},
		{"query failure fails closed", fakeDisk{err: errors.New("permission denied")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewStorageGuard(tt.disk, "/recordings", 100, nil)
			assert.Equal(t, tt.want, g.HasCapacity(context.Background()))
		})
	}
}

func TestSystemDiskUsage(t *testing.T) {
	u, err := SystemDisk{}.Usage(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Positive(t, u.TotalBytes)
	assert.LessOrEqual(t, u.FreeBytes, u.TotalBytes)

	_, err = SystemDisk{}.Usage(context.Background(), "/definitely/not/a/mount/point")
	assert.Error(t, err)

	g := NewStorageGuard(nil, "/definitely/not/a/mount/point", 1, nil)
	assert.False(t, g.HasCapacity(context.Background()))
}
