package nucleo

import "log/slog"

// defaultMaxFlushIterations bounds the flush fixpoint loop. A well-behaved
// graph settles in a handful of passes; hitting the bound means user write
// functions or listeners form a non-converging update cycle.
const defaultMaxFlushIterations = 1000

// StoreConfig configures a Store.
type StoreConfig struct {
	// Logger is the structured logger for the store.
	// If nil, slog.Default() is used.
	Logger *slog.Logger

	// MaxFlushIterations bounds the flush loop. When a flush pass count
	// exceeds it, the top-level operation fails with ErrDivergentUpdate.
	// Default: 1000.
	MaxFlushIterations int

	// Interceptors wrap every top-level Get, Set, and Subscribe, outermost
	// first. Use them for metrics and tracing.
	Interceptors []Interceptor

	// Observers receive engine events (sets, recomputations, mounts,
	// flushes). Observers are called under the store lock and must not
	// call back into the store.
	Observers []Observer
}

// StoreOption is a functional option for configuring a Store.
type StoreOption func(*StoreConfig)

// WithLogger sets the store's structured logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(c *StoreConfig) {
		c.Logger = logger
	}
}

// WithMaxFlushIterations sets the flush loop iteration bound.
func WithMaxFlushIterations(n int) StoreOption {
	return func(c *StoreConfig) {
		c.MaxFlushIterations = n
	}
}

// WithInterceptor appends an interceptor to the store's chain.
func WithInterceptor(i Interceptor) StoreOption {
	return func(c *StoreConfig) {
		c.Interceptors = append(c.Interceptors, i)
	}
}

// WithObserver appends an observer to the store's event fan-out.
func WithObserver(o Observer) StoreOption {
	return func(c *StoreConfig) {
		c.Observers = append(c.Observers, o)
	}
}

func defaultStoreConfig() StoreConfig {
	return StoreConfig{
		Logger:             slog.Default(),
		MaxFlushIterations: defaultMaxFlushIterations,
	}
}
