package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSegmentPathsDeduplicates(t *testing.T) {
	r := &Recording{
		FilePath: "/r/videos/cam_segment_001.mp4",
		Metadata: RecordingMetadata{Segments: []SegmentInfo{
			{Ordinal: 1, Path: "/r/videos/cam_segment_001.mp4"},
			{Ordinal: 2, Path: "/r/videos/cam_segment_002.mp4"},
			{Ordinal: 3, Path: ""},
		}},
	}
	assert.Equal(t, []string{"/r/videos/cam_segment_001.mp4", "/r/videos/cam_segment_002.mp4"}, r.SegmentPaths())
	assert.Empty(t, (&Recording{}).SegmentPaths())
}

func TestCanAccessCamera(t *testing.T) {
	admin := &User{Role: RoleAdmin}
	op := &User{Role: RoleOperator, AssignedCameras: []string{"camera-1"}}

	assert.True(t, admin.CanAccessCamera("camera-9"))
	assert.True(t, op.CanAccessCamera("camera-1"))
	assert.False(t, op.CanAccessCamera("camera-2"))
	assert.True(t, RoleSuperAdmin.IsAdmin())
	assert.False(t, RoleViewer.IsAdmin())
}
