package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/pulse/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Per-beat rates are exposed as gauges (latest value wins), beat and flush
// volumes as counters, and flush latency as a histogram. Registration is
// deferred until first use so an idle collector registers nothing.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	beatsTotal       *prometheus.CounterVec
	instantRate      prometheus.Gauge
	windowRate       prometheus.Gauge
	globalRate       prometheus.Gauge
	flushesTotal     prometheus.Counter
	flushedRecords   prometheus.Counter
	flushDuration    prometheus.Histogram
	timeSourceErrors prometheus.Counter
	exportsTotal     *prometheus.CounterVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "pulse" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "pulse"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.beatsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "heartbeat",
			Name:      "beats_total",
			Help:      "Total recorded beats by tag.",
		}, []string{"tag"})

		p.instantRate = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "heartbeat",
			Name:      "instant_rate",
			Help:      "Beats per second from the most recent interval.",
		})
		p.windowRate = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "heartbeat",
			Name:      "window_rate",
			Help:      "Beats per second from the moving average of recent intervals.",
		})
		p.globalRate = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "heartbeat",
			Name:      "global_rate",
			Help:      "Beats per second since the first recorded beat.",
		})

		p.flushesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "heartbeat",
			Name:      "flushes_total",
			Help:      "Total log ring flushes to the text log.",
		})
		p.flushedRecords = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "heartbeat",
			Name:      "flushed_records_total",
			Help:      "Total records written to the text log.",
		})
		p.flushDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "heartbeat",
			Name:      "flush_duration_seconds",
			Help:      "Observed text log flush durations in seconds.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		})

		p.timeSourceErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "heartbeat",
			Name:      "time_source_errors_total",
			Help:      "Total failed or malformed time source reads.",
		})

		p.exportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "export",
			Name:      "publishes_total",
			Help:      "Total snapshot publish attempts by result.",
		}, []string{"result"})

		p.reg.MustRegister(
			p.beatsTotal,
			p.instantRate,
			p.windowRate,
			p.globalRate,
			p.flushesTotal,
			p.flushedRecords,
			p.flushDuration,
			p.timeSourceErrors,
			p.exportsTotal,
		)
	})
}

// RecordBeat records one beat and publishes its derived rates as gauges.
func (p *PrometheusCollector) RecordBeat(tag int64, instant, window, global float64) {
	p.ensureRegistered()
	p.beatsTotal.WithLabelValues(strconv.FormatInt(tag, 10)).Inc()
	p.instantRate.Set(instant)
	p.windowRate.Set(window)
	p.globalRate.Set(global)
}

// RecordFlush records one text log flush.
func (p *PrometheusCollector) RecordFlush(records int64, seconds float64) {
	p.ensureRegistered()
	p.flushesTotal.Inc()
	p.flushedRecords.Add(float64(records))
	p.flushDuration.Observe(seconds)
}

// RecordTimeSourceError records a failed or malformed time source read.
func (p *PrometheusCollector) RecordTimeSourceError() {
	p.ensureRegistered()
	p.timeSourceErrors.Inc()
}

// RecordExport records a snapshot publish attempt.
func (p *PrometheusCollector) RecordExport(success bool) {
	p.ensureRegistered()
	result := "success"
	if !success {
		result = "failure"
	}
	p.exportsTotal.WithLabelValues(result).Inc()
}
