package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations must be non-blocking and thread-safe: RecordBeat is called
// from inside the heartbeat critical section on every recorded beat.
type MetricsCollector interface {
	BeatMetrics
	ExportMetrics
}

// BeatMetrics defines metrics for the heartbeat recording path.
type BeatMetrics interface {
	// RecordBeat records one recorded beat and its derived rates.
	//
	// Parameters:
	//   - tag: Caller-supplied beat classification
	//   - instant, window, global: Beats-per-second rates for this beat
	//     (all zero for the very first beat)
	RecordBeat(tag int64, instant, window, global float64)

	// RecordFlush records one flush of the log ring to the text log.
	//
	// Parameters:
	//   - records: Number of records written
	//   - seconds: Time taken for the flush
	RecordFlush(records int64, seconds float64)

	// RecordTimeSourceError records a failed or malformed time source read.
	RecordTimeSourceError()
}

// ExportMetrics defines metrics for snapshot export operations.
type ExportMetrics interface {
	// RecordExport records a snapshot publish attempt.
	//
	// Parameters:
	//   - success: true if the publish succeeded, false otherwise
	RecordExport(success bool)
}
