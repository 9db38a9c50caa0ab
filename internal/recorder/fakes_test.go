package recorder

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sg-security/backend/config"
	"github.com/sg-security/backend/internal/models"
)

var testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// virtualClock advances its own time on every After call. With delay 0 the
// returned channel is ready immediately, so a worker runs through hours of
// virtual time in milliseconds.
type virtualClock struct {
	mu    sync.Mutex
	now   time.Time
	delay time.Duration
}

func newVirtualClock(delay time.Duration) *virtualClock {
	return &virtualClock{now: testStart, delay: delay}
}

func (c *virtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *virtualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	t := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if c.delay == 0 {
		ch <- t
		return ch
	}
	go func() {
		time.Sleep(c.delay)
		ch <- t
	}()
	return ch
}

type fakeStore struct {
	mu        sync.Mutex
	recs      map[uuid.UUID]*models.Recording
	createErr error
	deleteErr error
	deleted   [][]uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{recs: make(map[uuid.UUID]*models.Recording)}
}

func (s *fakeStore) Create(_ context.Context, rec *models.Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	rec.ID = uuid.New()
	cp := *rec
	s.recs[rec.ID] = &cp
	return nil
}

func (s *fakeStore) AttachFile(_ context.Context, id uuid.UUID, filename, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[id]
	if !ok {
		return errors.New("not found")
	}
	r.Filename, r.FilePath = filename, path
	return nil
}

func (s *fakeStore) Finalize(_ context.Context, id uuid.UUID, endedAt time.Time, dur int, size int64, meta models.RecordingMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[id]
	if !ok {
		return ErrRecordingDeleted
	}
	r.EndedAt = &endedAt
	r.Duration = dur
	r.FileSize = size
	r.Metadata = meta
	return nil
}

func (s *fakeStore) ListCreatedBefore(_ context.Context, cutoff time.Time) ([]*models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Recording
	for _, r := range s.recs {
		if r.CreatedAt.Before(cutoff) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteMany(_ context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, ids)
	for _, id := range ids {
		delete(s.recs, id)
	}
	return nil
}

func (s *fakeStore) Totals(_ context.Context) (*models.RecordingTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &models.RecordingTotals{}
	for _, r := range s.recs {
		t.Total++
		if r.Kind == models.RecordingKindManual {
			t.Manual++
		} else {
			t.Continuous++
		}
		t.SizeBytes += r.FileSize
		t.DurationSeconds += int64(r.Duration)
	}
	return t, nil
}

func (s *fakeStore) put(rec *models.Recording) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ID] = rec
}

func (s *fakeStore) get(id uuid.UUID) *models.Recording {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[id]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

type fakeCameras map[string]*models.Camera

func (f fakeCameras) GetByID(_ context.Context, id string) (*models.Camera, error) {
	return f[id], nil
}

type frameFunc func(ctx context.Context, cameraID string) ([]byte, error)

type fakeFrames struct {
	calls atomic.Int64
	fn    frameFunc
}

func (f *fakeFrames) GetFrame(ctx context.Context, cameraID string) ([]byte, error) {
	f.calls.Add(1)
	return f.fn(ctx, cameraID)
}

// fileEncoders writes raw frame bytes to the segment path, so size on disk equals bytes accepted.
type fileEncoders struct {
	openErr error
	opened  atomic.Int64
}

func (f *fileEncoders) Open(path string, _ int) (Encoder, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	fh, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	f.opened.Add(1)
	return &fileEncoder{f: fh}, nil
}

type fileEncoder struct{ f *os.File }

func (e *fileEncoder) WriteFrame(b []byte) error {
	_, err := e.f.Write(b)
	return err
}

func (e *fileEncoder) Close() error { return e.f.Close() }

type fakeDisk struct {
	usage DiskUsage
	err   error
}

func (d fakeDisk) Usage(context.Context, string) (DiskUsage, error) {
	return d.usage, d.err
}

func plentyOfDisk() fakeDisk {
	return fakeDisk{usage: DiskUsage{
		TotalBytes:     500 * bytesPerGB,
		UsedBytes:      100 * bytesPerGB,
		FreeBytes:      400 * bytesPerGB,
		UsedPercentage: 20,
	}}
}

func jpegFrame(t testing.TB) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		img.Set(x, x, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func constantFrames(frame []byte) *fakeFrames {
	return &fakeFrames{fn: func(context.Context, string) ([]byte, error) { return frame, nil }}
}

type harness struct {
	coord    *Coordinator
	store    *fakeStore
	frames   *fakeFrames
	encoders *fileEncoders
	clock    *virtualClock
	cfg      config.RecordingConfig
}

type harnessOpt func(*harness, *Deps)

func withDisk(d DiskUsageProvider) harnessOpt {
	return func(_ *harness, deps *Deps) { deps.Disk = d }
}

func withCfg(fn func(*config.RecordingConfig)) harnessOpt {
	return func(h *harness, _ *Deps) { fn(&h.cfg) }
}

func newHarness(t *testing.T, frames *fakeFrames, clk *virtualClock, opts ...harnessOpt) *harness {
	t.Helper()
	base := t.TempDir()
	h := &harness{
		store:    newFakeStore(),
		frames:   frames,
		encoders: &fileEncoders{},
		clock:    clk,
		cfg: config.RecordingConfig{
			BasePath:       base,
			MaxSizeGB:      100,
			RetentionDays:  30,
			FPS:            1,
			SegmentMinutes: 30,
			StopTimeout:    5 * time.Second,
			FrameTimeout:   time.Second,
			RetryPause:     time.Second,
		},
	}
	deps := Deps{
		Store: h.store,
		Cameras: fakeCameras{
			"camera-1": {ID: "camera-1", Name: "Front Gate", RecordingEnabled: true, IsActive: true},
			"camera-2": {ID: "camera-2", Name: "Loading Dock", RecordingEnabled: false, IsActive: true},
		},
		Frames:   frames,
		Encoders: h.encoders,
		Disk:     plentyOfDisk(),
		Clock:    clk,
	}
	for _, opt := range opts {
		opt(h, &deps)
	}
	require.NoError(t, h.cfg.EnsureDirs())
	h.coord = New(deps, h.cfg, zap.NewNop())
	return h
}

// waitFinalized blocks until the worker has written the closing fields.
func (h *harness) waitFinalized(t *testing.T, id uuid.UUID) *models.Recording {
	t.Helper()
	var rec *models.Recording
	require.Eventually(t, func() bool {
		rec = h.store.get(id)
		return rec != nil && rec.EndedAt != nil
	}, 10*time.Second, 5*time.Millisecond)
	return rec
}

func intPtr(v int) *int { return &v }
