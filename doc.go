// Package pulse provides an in-process heartbeat instrumentation library:
// applications report discrete completion events ("beats") and pulse derives
// live performance rates from them, exposing the rates to external monitors
// through shared memory and optionally persisting a human-readable log.
//
// # Quick Start
//
// Basic usage with default settings:
//
//	import "github.com/arloliu/pulse"
//
//	cfg := pulse.Config{
//	    WindowSize:  20,
//	    BufferDepth: 64,
//	    LogPath:     "heartbeat.log",
//	}
//
//	hb, err := pulse.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer hb.Close()
//
//	for i := 0; i < iterations; i++ {
//	    doWork()
//	    hb.Beat(1)
//	}
//
// The enabled directory (where pulse announces a per-process marker file)
// comes from Config.EnabledDir or the PULSE_ENABLED_DIR environment
// variable and must exist.
//
// # Rates
//
// Every beat yields three beats-per-second rates:
//
//   - Instant rate: from the single most recent inter-beat interval
//   - Window rate: from an incremental moving average over the last
//     WindowSize intervals
//   - Global rate: since the first recorded beat
//
// # Shared Memory
//
// The per-process state record and the log ring live in mmap-backed files
// keyed by process id. External monitors (see the monitor package) map them
// read-only and poll without locking: they get no atomic snapshot guarantee
// and rely on the state's valid flag and monotonic beat counter to detect
// staleness. The ring recycles every BufferDepth beats, flushing its live
// records to the optional text log first.
//
// # Concurrency
//
// Beat is serialized by the handle's mutex and safe to call from multiple
// goroutines of the owning process. Beat values are strictly increasing in
// call order. Beat never blocks indefinitely and never returns an error; a
// malformed read from a polling time source degrades to a zero timestamp
// with a logged diagnostic.
//
// # Pluggable Pieces
//
// Timestamps come from a timesource.Source selected at construction: the
// system clock by default, or an externally maintained time file polled on
// every beat (timesource.Discover). Structured logging and metrics are
// injected via WithLogger and WithMetrics; a Prometheus-backed collector
// ships in internal/metrics, and rate snapshots can be published to NATS
// JetStream KV with the export package.
package pulse
