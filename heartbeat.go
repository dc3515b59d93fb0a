package pulse

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/arloliu/pulse/internal/logging"
	"github.com/arloliu/pulse/internal/metrics"
	"github.com/arloliu/pulse/internal/shm"
	"github.com/arloliu/pulse/internal/textlog"
	"github.com/arloliu/pulse/internal/window"
	"github.com/arloliu/pulse/timesource"
	"github.com/arloliu/pulse/types"
)

// Heartbeat records discrete completion events from the instrumented
// application and derives live performance rates from them.
//
// Every call to Beat takes a timestamp, updates the windowed average over
// recent inter-beat intervals, and writes a record into a shared memory log
// ring that external monitors map read-only. The ring flushes to an
// optional text log each time it wraps.
//
// Beat is safe for concurrent use from multiple goroutines of the owning
// process: the whole recording path is one critical section under the
// handle's mutex. External processes read the shared state without locking
// and must tolerate torn reads of in-flight records; see monitor.
type Heartbeat struct {
	mu sync.Mutex

	cfg     Config
	logger  types.Logger
	metrics types.MetricsCollector
	source  timesource.Source

	state      *shm.StateRegion
	log        *shm.LogRegion
	averager   *window.Averager
	text       *textlog.Writer
	markerPath string

	firstTimestamp int64
	lastTimestamp  int64
	lastRecord     shm.Record
	closed         bool
}

// New creates a Heartbeat and allocates its shared artifacts: the state
// region and log ring keyed by the current process id, the zero-byte marker
// file named by pid under the enabled directory, and the optional text log.
//
// The enabled directory resolves from cfg.EnabledDir or the
// PULSE_ENABLED_DIR environment variable and must exist.
//
// On any failure New tears down everything allocated so far and returns a
// nil handle; no partial resources are left live.
//
// Parameters:
//   - cfg: Configuration (missing values filled from DefaultConfig)
//   - opts: Optional logger, metrics collector and time source
//
// Returns:
//   - *Heartbeat: Live handle, nil on failure
//   - error: First construction failure
func New(cfg Config, opts ...Option) (*Heartbeat, error) {
	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &heartbeatOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.NewSlogDefault()
	}
	if o.metrics == nil {
		o.metrics = metrics.NewNop()
	}
	if o.source == nil {
		o.source = timesource.System()
	}

	hb := &Heartbeat{
		cfg:            cfg,
		logger:         o.logger,
		metrics:        o.metrics,
		source:         o.source,
		firstTimestamp: -1,
		lastTimestamp:  -1,
	}

	pid := os.Getpid()

	fail := func(err error) (*Heartbeat, error) {
		// Close tolerates fields that were never set, so the teardown
		// path is shared with normal shutdown.
		hb.Close()
		return nil, err
	}

	state, err := shm.CreateState(cfg.ShmDir, pid)
	if err != nil {
		return fail(fmt.Errorf("failed to allocate heartbeat state: %w", err))
	}
	hb.state = state

	st := state.State()
	st.Pid = int64(pid)
	st.WindowSize = cfg.WindowSize
	st.BufferDepth = cfg.BufferDepth
	st.MinRate = cfg.MinRate
	st.MaxRate = cfg.MaxRate
	shm.Seal(st)

	if cfg.LogPath != "" {
		text, err := textlog.Create(cfg.LogPath)
		if err != nil {
			return fail(err)
		}
		hb.text = text
	}

	if cfg.EnabledDir == "" {
		return fail(ErrEnabledDirNotSet)
	}
	if info, err := os.Stat(cfg.EnabledDir); err != nil || !info.IsDir() {
		return fail(fmt.Errorf("%w: %s", ErrEnabledDirMissing, cfg.EnabledDir))
	}

	log, err := shm.CreateLog(cfg.ShmDir, pid, cfg.BufferDepth)
	if err != nil {
		return fail(fmt.Errorf("failed to allocate heartbeat log: %w", err))
	}
	hb.log = log

	hb.averager = window.New(cfg.WindowSize)

	markerPath := filepath.Join(cfg.EnabledDir, strconv.Itoa(pid))
	marker, err := os.Create(markerPath)
	if err != nil {
		return fail(fmt.Errorf("failed to create heartbeat marker file: %w", err))
	}
	marker.Close()
	hb.markerPath = markerPath

	hb.logger.Info("heartbeat initialized",
		"pid", pid,
		"windowSize", cfg.WindowSize,
		"bufferDepth", cfg.BufferDepth,
		"marker", markerPath,
	)

	return hb, nil
}

// Beat records one completion event classified by tag and returns the
// timestamp taken for it.
//
// The first call establishes the time origin and writes a record with all
// rates zero. Subsequent calls derive the instantaneous, windowed and
// global rates from the elapsed interval. Beat never fails: a broken time
// source read degrades to a zero timestamp with a logged diagnostic.
//
// Two calls at the identical timestamp yield +Inf rates; the value is
// mathematically undefined rather than an error.
func (h *Heartbeat) Beat(tag int64) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		h.logger.Warn("beat on closed heartbeat ignored", "tag", tag)
		return 0
	}

	now, err := h.source.Now()
	if err != nil {
		h.logger.Warn("time source read failed, degrading to zero timestamp", "error", err)
		h.metrics.RecordTimeSourceError()
	}

	oldLast := h.lastTimestamp
	h.lastTimestamp = now

	st := h.state.State()
	recs := h.log.Records()

	if h.firstTimestamp == -1 {
		h.firstTimestamp = now
		h.averager.Prime()

		rec := shm.Record{Beat: st.Counter, Tag: tag, Timestamp: now}
		recs[0] = rec
		h.lastRecord = rec

		st.Counter++
		st.BufferIndex++
		st.Valid = 1
		h.wrapLocked(st, recs)

		h.metrics.RecordBeat(tag, 0, 0, 0)

		return now
	}

	interval := now - oldLast
	windowRate := h.averager.Observe(interval)
	globalRate := float64(st.Counter+1) / float64(now-h.firstTimestamp) * 1e9
	instantRate := 1.0 / float64(interval) * 1e9

	rec := shm.Record{
		Beat:        st.Counter,
		Tag:         tag,
		Timestamp:   now,
		GlobalRate:  globalRate,
		WindowRate:  windowRate,
		InstantRate: instantRate,
	}
	recs[st.BufferIndex] = rec
	h.lastRecord = rec

	st.BufferIndex++
	st.Counter++
	st.ReadIndex++

	h.wrapLocked(st, recs)
	if st.ReadIndex%st.BufferDepth == 0 {
		st.ReadIndex = 0
	}

	h.metrics.RecordBeat(tag, instantRate, windowRate, globalRate)

	return now
}

// wrapLocked flushes the live records to the text log and recycles the ring
// once the write offset reaches a multiple of the configured depth. Flush
// failures are logged, not propagated; the ring recycles regardless so the
// recording path stays non-failing.
func (h *Heartbeat) wrapLocked(st *shm.State, recs []shm.Record) {
	if st.BufferIndex%st.BufferDepth != 0 {
		return
	}

	if h.text != nil {
		start := time.Now()
		if err := h.text.Append(recs[:st.BufferIndex], st.MinRate, st.MaxRate); err != nil {
			h.logger.Error("heartbeat log flush failed", "error", err)
		}
		h.metrics.RecordFlush(st.BufferIndex, time.Since(start).Seconds())
	}

	st.BufferIndex = 0
}

// Snapshot returns the most recently recorded beat together with the
// configured rate bounds. Valid is false until the first beat.
func (h *Heartbeat) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := Snapshot{
		Pid:     int64(os.Getpid()),
		MinRate: h.cfg.MinRate,
		MaxRate: h.cfg.MaxRate,
	}
	if h.closed || h.firstTimestamp == -1 {
		return snap
	}

	st := h.state.State()
	snap.Valid = true
	snap.Beat = h.lastRecord.Beat
	snap.Tag = h.lastRecord.Tag
	snap.Timestamp = h.lastRecord.Timestamp
	snap.Count = st.Counter
	snap.GlobalRate = h.lastRecord.GlobalRate
	snap.WindowRate = h.lastRecord.WindowRate
	snap.InstantRate = h.lastRecord.InstantRate

	return snap
}

// Close releases everything the handle owns: it flushes and closes the
// text log, removes the marker file, closes a closable time source, and
// unmaps and deletes the shared regions.
//
// Close is idempotent and safe on a handle that failed partway through New;
// fields never set are skipped. Cleanup errors are collected best-effort
// and returned joined, but Close always completes.
func (h *Heartbeat) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	var errs []error

	if h.text != nil {
		// Mirror the recording path's flush: persist the live prefix of
		// the ring before the file goes away.
		if h.state != nil && h.log != nil {
			st := h.state.State()
			if st.BufferIndex > 0 {
				if err := h.text.Append(h.log.Records()[:st.BufferIndex], st.MinRate, st.MaxRate); err != nil {
					errs = append(errs, err)
				}
			}
		}
		if err := h.text.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if h.markerPath != "" {
		if err := os.Remove(h.markerPath); err != nil {
			// Best-effort; external tooling treats a stale marker as a
			// dead instance once the shared regions are gone.
			h.logger.Warn("failed to remove heartbeat marker file", "path", h.markerPath, "error", err)
		}
	}

	if closer, ok := h.source.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if h.log != nil {
		if err := h.log.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := h.log.Remove(); err != nil {
			errs = append(errs, err)
		}
	}

	if h.state != nil {
		if err := h.state.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := h.state.Remove(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
