package recorder

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// entry keeps a camera's session, stop signal and worker handle together.
// An entry without a session is a reservation held while a start is being admitted.
type entry struct {
	session  *Session
	cancel   context.CancelFunc
	done     chan struct{}
	stopping bool
}

func (e *entry) pending() bool { return e.session == nil }

type registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	// workers holds recordings whose worker goroutine has not returned yet,
	// including ones whose entry was dropped after a stop timeout.
	workers map[uuid.UUID]struct{}
	// files holds segment paths currently open for writing.
	files map[string]struct{}
}

func newRegistry() *registry {
	return &registry{
		entries: make(map[string]*entry),
		workers: make(map[uuid.UUID]struct{}),
		files:   make(map[string]struct{}),
	}
}

// reserve claims cameraID. It fails if any entry, pending or running, already exists.
func (r *registry) reserve(cameraID string) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[cameraID]; ok {
		return nil, false
	}
	e := &entry{done: make(chan struct{})}
	r.entries[cameraID] = e
	return e, true
}

func (r *registry) activate(e *entry, s *Session, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.session = s
	e.cancel = cancel
}

// beginStop returns the running entry for cameraID and marks it stopping.
// Pending and already-stopping entries are not returned.
func (r *registry) beginStop(cameraID string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[cameraID]
	if !ok || e.pending() || e.stopping {
		return nil
	}
	e.stopping = true
	return e
}

func (r *registry) isActive(cameraID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[cameraID]
	return ok && !e.pending()
}

// remove deletes cameraID only while it still maps to e. Safe to call more than once.
func (r *registry) remove(cameraID string, e *entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.entries[cameraID]
	if !ok || cur != e {
		return false
	}
	delete(r.entries, cameraID)
	return true
}

type activeEntry struct {
	session  *Session
	stopping bool
}

// running returns the running sessions sorted by camera id.
func (r *registry) running() []activeEntry {
	r.mu.Lock()
	out := make([]activeEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.pending() {
			continue
		}
		out = append(out, activeEntry{session: e.session, stopping: e.stopping})
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].session.CameraID < out[j].session.CameraID })
	return out
}

func (r *registry) cameras() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for id, e := range r.entries {
		if !e.pending() {
			out = append(out, id)
		}
	}
	return out
}

func (r *registry) workerStarted(recordingID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[recordingID] = struct{}{}
}

func (r *registry) workerExited(recordingID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, recordingID)
}

// hasWorker reports whether a worker is still writing recordingID.
func (r *registry) hasWorker(recordingID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.workers[recordingID]
	return ok
}

// claimFile reserves path for one segment writer. It fails if another writer holds it.
func (r *registry) claimFile(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[path]; ok {
		return false
	}
	r.files[path] = struct{}{}
	return true
}

func (r *registry) releaseFile(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, path)
}
