package edgeidx

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/edgeidx/partition"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	tracerProvider   trace.TracerProvider
	strategy         partition.Strategy
	memoryLimit      int64
	ioLimit          int64
	chunkRows        uint64
	readChunkRows    uint64
}

// Option configures an Indexer.
type Option func(*options)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector sets the metrics collector.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider. By default
// the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithStrategy selects how workers split construction. The default is
// partition.Replicated.
func WithStrategy(s partition.Strategy) Option {
	return func(o *options) {
		o.strategy = s
	}
}

// WithMemoryLimit caps the bytes a worker may reserve for edges and
// build scratch space. Zero means unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithIOLimit throttles container writes to bytes per second per worker.
// Zero means unlimited.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithChunkRows sets the rows per write request. Zero selects
// writer.DefaultChunkRows.
func WithChunkRows(rows uint64) Option {
	return func(o *options) {
		o.chunkRows = rows
	}
}

// WithReadChunkRows sets the rows per edge read request. Zero selects
// edges.DefaultChunkRows.
func WithReadChunkRows(rows uint64) Option {
	return func(o *options) {
		o.readChunkRows = rows
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		strategy:         partition.Replicated,
	}
	for _, fn := range optFns {
		fn(&o)
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	return o
}
