package pulse

import (
	"github.com/arloliu/pulse/timesource"
	"github.com/arloliu/pulse/types"
)

// Option configures a Heartbeat with optional dependencies.
type Option func(*heartbeatOptions)

// heartbeatOptions holds optional Heartbeat configuration.
type heartbeatOptions struct {
	logger  types.Logger
	metrics types.MetricsCollector
	source  timesource.Source
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for New
//
// Example:
//
//	logger := logging.NewSlog(slog.Default())
//	hb, err := pulse.New(cfg, pulse.WithLogger(logger))
func WithLogger(logger types.Logger) Option {
	return func(o *heartbeatOptions) {
		o.logger = logger
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for New
func WithMetrics(metrics types.MetricsCollector) Option {
	return func(o *heartbeatOptions) {
		o.metrics = metrics
	}
}

// WithTimeSource sets the timestamp source for recorded beats.
//
// Defaults to timesource.System(). Pass a timesource.File to poll an
// externally maintained time file instead; if the source also implements
// io.Closer it is closed when the Heartbeat closes.
//
// Parameters:
//   - source: Source supplying per-beat nanosecond timestamps
//
// Returns:
//   - Option: Functional option for New
//
// Example:
//
//	src, err := timesource.Discover("", "")
//	if err != nil {
//	    return err
//	}
//	hb, err := pulse.New(cfg, pulse.WithTimeSource(src))
func WithTimeSource(source timesource.Source) Option {
	return func(o *heartbeatOptions) {
		o.source = source
	}
}
