package metrics

import "github.com/arloliu/pulse/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Used when no collector is injected, so the
// recording path never has to nil-check its collector.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// RecordBeat discards the beat observation.
func (n *NopMetrics) RecordBeat(_ /* tag */ int64, _, _, _ /* rates */ float64) {
	// No-op
}

// RecordFlush discards the flush observation.
func (n *NopMetrics) RecordFlush(_ /* records */ int64, _ /* seconds */ float64) {
	// No-op
}

// RecordTimeSourceError discards the time source error counter.
func (n *NopMetrics) RecordTimeSourceError() {
	// No-op
}

// RecordExport discards the export observation.
func (n *NopMetrics) RecordExport(_ /* success */ bool) {
	// No-op
}
