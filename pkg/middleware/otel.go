package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nucleo-dev/nucleo/pkg/nucleo"
)

// Default tracer name for store instrumentation.
const defaultTracerName = "nucleo"

// OTelConfig configures the OpenTelemetry store instrumentation.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "nucleo").
	TracerName string

	// Filter determines which operations to trace.
	// Return true to trace the operation, false to skip.
	// If nil, all operations are traced.
	Filter func(info nucleo.OpInfo) bool

	// AttributeExtractor extracts custom attributes for each traced
	// operation.
	AttributeExtractor func(info nucleo.OpInfo) []attribute.KeyValue

	// tracer is the resolved tracer instance.
	tracer trace.Tracer
}

// OTelOption configures the OpenTelemetry store instrumentation.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithOpFilter sets a filter function for operations.
func WithOpFilter(filter func(info nucleo.OpInfo) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(info nucleo.OpInfo) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// defaultOTelConfig returns the default OpenTelemetry configuration.
func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName: defaultTracerName,
		Filter:     nil,
	}
}

// OpenTelemetry traces every top-level store operation.
//
// The instrumentation:
//   - Creates a span per Get, Set, and Subscribe with the atom label and ID
//   - Records errors and sets span status
//   - Nested operations triggered by listeners and write functions re-enter
//     the interceptor chain, producing their own spans
//
// The tracer uses the global OpenTelemetry tracer provider. Configure it
// in your main() before creating stores:
//
//	tp := sdktrace.NewTracerProvider(
//	    sdktrace.WithBatcher(exporter),
//	    sdktrace.WithResource(resource.NewWithAttributes(
//	        semconv.SchemaURL,
//	        semconv.ServiceName("my-app"),
//	    )),
//	)
//	otel.SetTracerProvider(tp)
//
// Example:
//
//	store := nucleo.NewStore(
//	    middleware.OpenTelemetry(
//	        middleware.WithTracerName("my-app"),
//	    ),
//	)
func OpenTelemetry(opts ...OTelOption) nucleo.StoreOption {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}

	// Resolve tracer from global provider
	config.tracer = otel.Tracer(config.TracerName)

	interceptor := func(info nucleo.OpInfo, next func() error) error {
		if config.Filter != nil && !config.Filter(info) {
			return next()
		}

		attrs := []attribute.KeyValue{
			attribute.String("nucleo.op", string(info.Op)),
			attribute.String("nucleo.atom", info.Atom),
			attribute.Int64("nucleo.atom_id", int64(info.AtomID)),
		}
		if config.AttributeExtractor != nil {
			attrs = append(attrs, config.AttributeExtractor(info)...)
		}

		_, span := config.tracer.Start(context.Background(), "store."+string(info.Op),
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		err := next()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}

	return func(c *nucleo.StoreConfig) {
		c.Interceptors = append(c.Interceptors, interceptor)
	}
}
