// Package timesource supplies the per-beat nanosecond timestamps consumed
// by the heartbeat recording path.
//
// Two implementations exist: System reads the process clock directly, and
// File polls an externally maintained time file, re-parsing its contents on
// every call. The recording core is agnostic to which is in use; the
// variant is selected at handle construction.
package timesource

import "time"

// Source supplies a monotonically-intended 64-bit nanosecond timestamp per
// heartbeat call.
//
// Implementations returning an error still return a usable (degraded) value
// of 0; the caller logs the diagnostic and records the beat anyway rather
// than destabilizing the instrumented application.
type Source interface {
	// Now returns the current timestamp in nanoseconds.
	Now() (int64, error)
}

type systemSource struct{}

// System returns a Source backed by the system clock.
//
// time.Now carries a monotonic reading, so successive timestamps are immune
// to wall clock adjustments within one process. Never returns an error.
func System() Source {
	return systemSource{}
}

func (systemSource) Now() (int64, error) {
	return time.Now().UnixNano(), nil
}
