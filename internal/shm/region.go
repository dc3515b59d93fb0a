// Package shm manages the mmap-backed shared memory regions behind a
// heartbeat instance: the per-process state record and the log ring.
//
// Regions are plain files under a configurable directory (by default a
// tmpfs such as /dev/shm), named by the owning process id and mapped with
// MAP_SHARED. The owning process creates and mutates them; external
// monitors open the same files read-only. No cross-process locking exists;
// see State for the reader contract.
package shm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Common errors for shared memory operations.
var (
	ErrNotHeartbeatState = errors.New("region is not valid heartbeat state")
	ErrBadRegionSize     = errors.New("region file has unexpected size")
)

const (
	statePrefix = "pulse-state-"
	logPrefix   = "pulse-log-"
)

// StatePath returns the backing file path for a process's state region.
func StatePath(dir string, pid int) string {
	return filepath.Join(dir, statePrefix+strconv.Itoa(pid))
}

// LogPath returns the backing file path for a process's log ring region.
func LogPath(dir string, pid int) string {
	return filepath.Join(dir, logPrefix+strconv.Itoa(pid))
}

// region is one mapped file. The mapping stays valid until Close; Remove
// deletes the backing file and is called only by the owning process.
type region struct {
	path string
	mem  []byte
}

func createRegion(path string, size int) (*region, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create region file: %w", err)
	}
	defer f.Close()

	if err := f.Truncate(int64(size)); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to size region file: %w", err)
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to map region: %w", err)
	}

	return &region{path: path, mem: mem}, nil
}

func openRegion(path string, size int) (*region, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open region file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat region file: %w", err)
	}
	if size <= 0 {
		size = int(info.Size())
	} else if int64(size) > info.Size() {
		// Mapping past EOF faults on access; a short file cannot be a
		// live region.
		return nil, ErrBadRegionSize
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to map region: %w", err)
	}

	return &region{path: path, mem: mem}, nil
}

func (r *region) close() error {
	if r.mem == nil {
		return nil
	}
	mem := r.mem
	r.mem = nil

	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("failed to unmap region: %w", err)
	}

	return nil
}

func (r *region) remove() error {
	return os.Remove(r.path)
}

// StateRegion is the mapped per-process state record.
type StateRegion struct {
	r     *region
	state *State
}

// CreateState creates and maps a writable state region for pid under dir.
// The returned state is zeroed; the caller populates the configuration
// fields and calls Seal.
func CreateState(dir string, pid int) (*StateRegion, error) {
	r, err := createRegion(StatePath(dir, pid), StateSize)
	if err != nil {
		return nil, err
	}

	return &StateRegion{r: r, state: (*State)(unsafe.Pointer(&r.mem[0]))}, nil
}

// OpenState maps an existing state region read-only and verifies its
// checksum. Returns ErrNotHeartbeatState if the region does not carry live
// heartbeat state.
func OpenState(dir string, pid int) (*StateRegion, error) {
	r, err := openRegion(StatePath(dir, pid), StateSize)
	if err != nil {
		return nil, err
	}

	if len(r.mem) < StateSize {
		r.close()
		return nil, ErrBadRegionSize
	}

	sr := &StateRegion{r: r, state: (*State)(unsafe.Pointer(&r.mem[0]))}
	if !Verify(sr.state) {
		sr.Close()
		return nil, ErrNotHeartbeatState
	}

	return sr, nil
}

// State returns the mapped state record. The pointer is valid until Close.
func (s *StateRegion) State() *State {
	return s.state
}

// Close unmaps the region. Safe to call more than once.
func (s *StateRegion) Close() error {
	s.state = nil
	return s.r.close()
}

// Remove deletes the backing file. Owner-side only.
func (s *StateRegion) Remove() error {
	return s.r.remove()
}

// LogRegion is the mapped log ring of Record entries.
type LogRegion struct {
	r       *region
	records []Record
}

// CreateLog creates and maps a writable log ring of depth records for pid
// under dir.
func CreateLog(dir string, pid int, depth int64) (*LogRegion, error) {
	r, err := createRegion(LogPath(dir, pid), int(depth)*RecordSize)
	if err != nil {
		return nil, err
	}

	return &LogRegion{
		r:       r,
		records: unsafe.Slice((*Record)(unsafe.Pointer(&r.mem[0])), depth),
	}, nil
}

// OpenLog maps an existing log ring read-only. The ring depth is derived
// from the backing file size; a size that is not a whole number of records
// yields ErrBadRegionSize.
func OpenLog(dir string, pid int) (*LogRegion, error) {
	r, err := openRegion(LogPath(dir, pid), 0)
	if err != nil {
		return nil, err
	}

	if len(r.mem) == 0 || len(r.mem)%RecordSize != 0 {
		r.close()
		return nil, ErrBadRegionSize
	}

	depth := len(r.mem) / RecordSize

	return &LogRegion{
		r:       r,
		records: unsafe.Slice((*Record)(unsafe.Pointer(&r.mem[0])), depth),
	}, nil
}

// Records returns the mapped ring. The slice is valid until Close; writes
// through it land directly in shared memory.
func (l *LogRegion) Records() []Record {
	return l.records
}

// Depth returns the ring capacity in records.
func (l *LogRegion) Depth() int64 {
	return int64(len(l.records))
}

// Close unmaps the region. Safe to call more than once.
func (l *LogRegion) Close() error {
	l.records = nil
	return l.r.close()
}

// Remove deletes the backing file. Owner-side only.
func (l *LogRegion) Remove() error {
	return l.r.remove()
}
