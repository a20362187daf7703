package middleware

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nucleo-dev/nucleo/pkg/nucleo"
)

// MetricsConfig configures the Prometheus store instrumentation.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "nucleo").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for operation duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus store instrumentation.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// defaultMetricsConfig returns the default metrics configuration.
func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace:   "nucleo",
		Subsystem:   "",
		ConstLabels: nil,
		Buckets:     prometheus.DefBuckets,
		Registry:    prometheus.DefaultRegisterer,
	}
}

// metrics holds the Prometheus metrics for a store.
type metrics struct {
	opsTotal       *prometheus.CounterVec
	opDuration     *prometheus.HistogramVec
	opErrors       *prometheus.CounterVec
	recomputations *prometheus.CounterVec
	invalidations  prometheus.Counter
	notifications  prometheus.Counter
	mountedAtoms   prometheus.Gauge
}

// initMetrics registers the store metrics with the configured registry.
func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		opsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "ops_total",
			Help:        "Total number of top-level store operations",
			ConstLabels: config.ConstLabels,
		}, []string{"op", "status"}),

		opDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "op_duration_seconds",
			Help:        "Top-level store operation duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"op"}),

		opErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "op_errors_total",
			Help:        "Total number of failed store operations by error type",
			ConstLabels: config.ConstLabels,
		}, []string{"op", "error_type"}),

		recomputations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "recomputations_total",
			Help:        "Total number of atom recomputations",
			ConstLabels: config.ConstLabels,
		}, []string{"changed"}),

		invalidations: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "invalidations_total",
			Help:        "Total number of atom invalidations",
			ConstLabels: config.ConstLabels,
		}),

		notifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "notifications_total",
			Help:        "Total number of listener notification rounds",
			ConstLabels: config.ConstLabels,
		}),

		mountedAtoms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "mounted_atoms",
			Help:        "Number of currently mounted atoms",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// errorType classifies an operation error for the error counter.
func errorType(err error) string {
	switch {
	case errors.Is(err, nucleo.ErrCycleDetected):
		return "cycle"
	case errors.Is(err, nucleo.ErrNotWritable):
		return "not_writable"
	case errors.Is(err, nucleo.ErrDivergentUpdate):
		return "divergent"
	case errors.Is(err, nucleo.ErrArgsMismatch):
		return "args_mismatch"
	default:
		return "compute"
	}
}

// Prometheus instruments a store with Prometheus metrics.
//
// Metrics collected:
//   - nucleo_ops_total: Counter of top-level operations by op and status
//   - nucleo_op_duration_seconds: Histogram of operation duration by op
//   - nucleo_op_errors_total: Counter of failed operations by error type
//   - nucleo_recomputations_total: Counter of recomputations by outcome
//   - nucleo_invalidations_total: Counter of invalidation marks
//   - nucleo_notifications_total: Counter of listener notification rounds
//   - nucleo_mounted_atoms: Gauge of currently mounted atoms
//
// Metrics register against the configured registry when Prometheus() is
// called, so call it once per registry and share the returned option across
// stores that should aggregate.
//
// Example:
//
//	store := nucleo.NewStore(
//	    middleware.Prometheus(
//	        middleware.WithNamespace("myapp"),
//	    ),
//	)
//
//	// Expose metrics endpoint
//	http.Handle("/metrics", promhttp.Handler())
func Prometheus(opts ...MetricsOption) nucleo.StoreOption {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	m := initMetrics(config)

	interceptor := func(info nucleo.OpInfo, next func() error) error {
		start := time.Now()
		err := next()
		m.opDuration.WithLabelValues(string(info.Op)).Observe(time.Since(start).Seconds())
		if err != nil {
			m.opsTotal.WithLabelValues(string(info.Op), "error").Inc()
			m.opErrors.WithLabelValues(string(info.Op), errorType(err)).Inc()
		} else {
			m.opsTotal.WithLabelValues(string(info.Op), "ok").Inc()
		}
		return err
	}

	observer := nucleo.ObserverFunc(func(ev nucleo.Event) {
		switch ev.Type {
		case nucleo.EventRecompute:
			if ev.Changed {
				m.recomputations.WithLabelValues("true").Inc()
			} else {
				m.recomputations.WithLabelValues("false").Inc()
			}
		case nucleo.EventInvalidate:
			m.invalidations.Inc()
		case nucleo.EventNotify:
			m.notifications.Inc()
		case nucleo.EventMount:
			m.mountedAtoms.Inc()
		case nucleo.EventUnmount:
			m.mountedAtoms.Dec()
		}
	})

	return func(c *nucleo.StoreConfig) {
		c.Interceptors = append(c.Interceptors, interceptor)
		c.Observers = append(c.Observers, observer)
	}
}
