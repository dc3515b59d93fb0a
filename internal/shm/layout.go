package shm

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/zeebo/xxh3"
)

// stateMagic identifies a mapped region as heartbeat state, layout version 1.
const stateMagic uint64 = 0x70756c73652d7331 // "pulse-s1"

// State is the process-visible shared heartbeat record.
//
// One State exists per instrumented process, created at handle init and
// removed at close. External monitors map it read-only and poll it without
// locking: they get no atomic snapshot guarantee and must tolerate torn
// reads of in-flight updates, relying on Valid and the monotonic Counter
// to detect staleness.
//
// The layout is fixed little-endian 8-byte fields so that a monitor built
// from any version of this package can overlay the struct directly on the
// mapped bytes. Magic and Checksum cover the immutable configuration
// fields and are written once at init, before Valid ever flips to 1.
type State struct {
	Magic       uint64
	Checksum    uint64
	Pid         int64
	WindowSize  int64
	BufferDepth int64
	MinRate     float64
	MaxRate     float64
	Counter     int64
	BufferIndex int64
	ReadIndex   int64
	Valid       int64
}

// Record is one entry of the shared log ring.
//
// Rates are beats-per-second values; all three are zero for the very first
// recorded beat.
type Record struct {
	Beat        int64
	Tag         int64
	Timestamp   int64
	GlobalRate  float64
	WindowRate  float64
	InstantRate float64
}

const (
	// StateSize is the byte size of the mapped state region.
	StateSize = int(unsafe.Sizeof(State{}))

	// RecordSize is the byte size of one log ring entry.
	RecordSize = int(unsafe.Sizeof(Record{}))
)

// Seal stamps the magic and the checksum over the immutable configuration
// fields. Must be called once after Pid, WindowSize, BufferDepth, MinRate
// and MaxRate are set, before any beat is recorded.
func Seal(st *State) {
	st.Magic = stateMagic
	st.Checksum = configHash(st)
}

// Verify reports whether the state carries the expected magic and a
// checksum matching its immutable configuration fields. Monitors use it to
// reject regions that are not live heartbeat state (stale files, foreign
// data, incompatible layouts).
func Verify(st *State) bool {
	return st.Magic == stateMagic && st.Checksum == configHash(st)
}

func configHash(st *State) uint64 {
	var buf [40]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(st.Pid))
	binary.LittleEndian.PutUint64(buf[8:], uint64(st.WindowSize))
	binary.LittleEndian.PutUint64(buf[16:], uint64(st.BufferDepth))
	binary.LittleEndian.PutUint64(buf[24:], math.Float64bits(st.MinRate))
	binary.LittleEndian.PutUint64(buf[32:], math.Float64bits(st.MaxRate))

	return xxh3.Hash(buf[:])
}
