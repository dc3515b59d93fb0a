// Package monitor implements the external-reader side of pulse: attaching
// read-only to the shared memory regions of an instrumented process and
// enumerating live instances through their marker files.
//
// # Reader Contract
//
// Monitors poll shared memory without locking. There is no cross-process
// synchronization: a record may be observed mid-write (torn), and the ring
// overwrites old records in place once it wraps. Readers must treat the
// state's Valid flag as the gate for trusting any counter, and use the
// monotonic Beat values to detect staleness and overwrites rather than
// expecting atomic snapshots.
package monitor

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/pulse/internal/shm"
)

// ErrNotAttached is returned by Registry.Target for a pid with no live
// heartbeat regions.
var ErrNotAttached = errors.New("no heartbeat instance for pid")

// State is a copy of an instrumented process's shared state record.
type State struct {
	Pid         int64
	WindowSize  int64
	BufferDepth int64
	MinRate     float64
	MaxRate     float64
	Counter     int64
	BufferIndex int64
	ReadIndex   int64
	Valid       bool
}

// Record is a copy of one shared log ring entry.
type Record struct {
	Beat        int64
	Tag         int64
	Timestamp   int64
	GlobalRate  float64
	WindowRate  float64
	InstantRate float64
}

// Target is an attachment to one instrumented process's shared regions.
//
// Safe for concurrent use: every accessor copies out of the mapping.
type Target struct {
	pid   int
	state *shm.StateRegion
	log   *shm.LogRegion
}

// Attach maps the state record and log ring of pid under shmDir read-only.
//
// Returns shm.ErrNotHeartbeatState if the state region exists but does not
// verify as live heartbeat state.
//
// Parameters:
//   - shmDir: Directory backing the shared regions (pulse.DefaultShmDir()
//     for instances created with default configuration)
//   - pid: Process id of the instrumented process
//
// Returns:
//   - *Target: Read-only attachment, nil on failure
//   - error: Attachment failure
func Attach(shmDir string, pid int) (*Target, error) {
	state, err := shm.OpenState(shmDir, pid)
	if err != nil {
		return nil, fmt.Errorf("failed to attach state for pid %d: %w", pid, err)
	}

	log, err := shm.OpenLog(shmDir, pid)
	if err != nil {
		state.Close()
		return nil, fmt.Errorf("failed to attach log for pid %d: %w", pid, err)
	}

	return &Target{pid: pid, state: state, log: log}, nil
}

// Pid returns the attached process id.
func (t *Target) Pid() int {
	return t.pid
}

// State returns a copy of the current shared state. Subject to the torn
// read contract documented on the package.
func (t *Target) State() State {
	st := t.state.State()

	return State{
		Pid:         st.Pid,
		WindowSize:  st.WindowSize,
		BufferDepth: st.BufferDepth,
		MinRate:     st.MinRate,
		MaxRate:     st.MaxRate,
		Counter:     st.Counter,
		BufferIndex: st.BufferIndex,
		ReadIndex:   st.ReadIndex,
		Valid:       st.Valid != 0,
	}
}

// Records returns a copy of the full log ring in storage order. Entries
// past the current write offset belong to the previous cycle or, before
// the first wrap, are zero.
func (t *Target) Records() []Record {
	recs := t.log.Records()
	out := make([]Record, len(recs))
	for i, rec := range recs {
		out[i] = Record{
			Beat:        rec.Beat,
			Tag:         rec.Tag,
			Timestamp:   rec.Timestamp,
			GlobalRate:  rec.GlobalRate,
			WindowRate:  rec.WindowRate,
			InstantRate: rec.InstantRate,
		}
	}

	return out
}

// Close unmaps both regions. The backing files stay; they belong to the
// instrumented process.
func (t *Target) Close() error {
	return errors.Join(t.state.Close(), t.log.Close())
}

// Registry enumerates live heartbeat instances by their marker files and
// caches attachments per pid.
type Registry struct {
	enabledDir string
	shmDir     string
	targets    *xsync.Map[int, *Target]
}

// NewRegistry creates a registry scanning enabledDir for marker files and
// attaching regions under shmDir.
func NewRegistry(enabledDir, shmDir string) *Registry {
	return &Registry{
		enabledDir: enabledDir,
		shmDir:     shmDir,
		targets:    xsync.NewMap[int, *Target](),
	}
}

// Pids lists the process ids announcing a live heartbeat instance,
// i.e. the numerically named marker files currently in the enabled
// directory.
func (r *Registry) Pids() ([]int, error) {
	entries, err := os.ReadDir(r.enabledDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan enabled directory: %w", err)
	}

	pids := make([]int, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			// Foreign file in the enabled directory, not a marker.
			continue
		}
		pids = append(pids, pid)
	}

	return pids, nil
}

// Target returns a cached or fresh attachment for pid.
//
// Returns ErrNotAttached (wrapping the underlying cause) when the pid has
// no mappable heartbeat regions, e.g. when the instance closed between the
// marker scan and the attach.
func (r *Registry) Target(pid int) (*Target, error) {
	if t, ok := r.targets.Load(pid); ok {
		return t, nil
	}

	t, err := Attach(r.shmDir, pid)
	if err != nil {
		return nil, fmt.Errorf("%w: %d: %w", ErrNotAttached, pid, err)
	}

	if cached, loaded := r.targets.LoadOrStore(pid, t); loaded {
		// Lost the race to another caller; keep the cached attachment.
		t.Close()
		return cached, nil
	}

	return t, nil
}

// Detach drops and closes the cached attachment for pid, if any.
func (r *Registry) Detach(pid int) {
	if t, ok := r.targets.LoadAndDelete(pid); ok {
		t.Close()
	}
}

// Close detaches everything.
func (r *Registry) Close() {
	r.targets.Range(func(pid int, t *Target) bool {
		r.targets.Delete(pid)
		t.Close()
		return true
	})
}
