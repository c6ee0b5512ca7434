package edgeidx

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/edgeidx/cluster"
	"github.com/hupe1980/edgeidx/rangeindex"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems.
// NewPrometheusCollector provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordBuild is called after each local build of one direction.
	RecordBuild(d rangeindex.Direction, edges, descriptors uint64, duration time.Duration, err error)

	// RecordExchange is called after each collective exchange. runs and
	// bytes are non-zero only for the sharded strategy.
	RecordExchange(d rangeindex.Direction, runs, bytes uint64, duration time.Duration, err error)

	// RecordWrite is called after each worker's write of one direction.
	RecordWrite(d rangeindex.Direction, rows, bytes uint64, duration time.Duration, err error)

	// RecordPhase is called after each lockstep phase transition.
	RecordPhase(phase cluster.Phase, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordBuild(rangeindex.Direction, uint64, uint64, time.Duration, error)    {}
func (NoopMetricsCollector) RecordExchange(rangeindex.Direction, uint64, uint64, time.Duration, error) {}
func (NoopMetricsCollector) RecordWrite(rangeindex.Direction, uint64, uint64, time.Duration, error)    {}
func (NoopMetricsCollector) RecordPhase(cluster.Phase, time.Duration, error)                           {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and tests.
type BasicMetricsCollector struct {
	BuildCount       atomic.Int64
	BuildErrors      atomic.Int64
	BuildEdges       atomic.Int64
	BuildDescriptors atomic.Int64
	BuildTotalNanos  atomic.Int64
	ExchangeCount    atomic.Int64
	ExchangeErrors   atomic.Int64
	ExchangeRuns     atomic.Int64
	ExchangeBytes    atomic.Int64
	WriteCount       atomic.Int64
	WriteErrors      atomic.Int64
	WriteRows        atomic.Int64
	WriteBytes       atomic.Int64
	WriteTotalNanos  atomic.Int64
	PhaseCount       atomic.Int64
	PhaseErrors      atomic.Int64
}

// RecordBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBuild(_ rangeindex.Direction, edges, descriptors uint64, duration time.Duration, err error) {
	b.BuildCount.Add(1)
	b.BuildTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.BuildErrors.Add(1)
		return
	}
	b.BuildEdges.Add(int64(edges))
	b.BuildDescriptors.Add(int64(descriptors))
}

// RecordExchange implements MetricsCollector.
func (b *BasicMetricsCollector) RecordExchange(_ rangeindex.Direction, runs, bytes uint64, _ time.Duration, err error) {
	b.ExchangeCount.Add(1)
	if err != nil {
		b.ExchangeErrors.Add(1)
		return
	}
	b.ExchangeRuns.Add(int64(runs))
	b.ExchangeBytes.Add(int64(bytes))
}

// RecordWrite implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWrite(_ rangeindex.Direction, rows, bytes uint64, duration time.Duration, err error) {
	b.WriteCount.Add(1)
	b.WriteTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.WriteErrors.Add(1)
		return
	}
	b.WriteRows.Add(int64(rows))
	b.WriteBytes.Add(int64(bytes))
}

// RecordPhase implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPhase(_ cluster.Phase, _ time.Duration, err error) {
	b.PhaseCount.Add(1)
	if err != nil {
		b.PhaseErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		BuildCount:       b.BuildCount.Load(),
		BuildErrors:      b.BuildErrors.Load(),
		BuildEdges:       b.BuildEdges.Load(),
		BuildDescriptors: b.BuildDescriptors.Load(),
		BuildAvgNanos:    avg(b.BuildTotalNanos.Load(), b.BuildCount.Load()),
		ExchangeCount:    b.ExchangeCount.Load(),
		ExchangeErrors:   b.ExchangeErrors.Load(),
		ExchangeRuns:     b.ExchangeRuns.Load(),
		ExchangeBytes:    b.ExchangeBytes.Load(),
		WriteCount:       b.WriteCount.Load(),
		WriteErrors:      b.WriteErrors.Load(),
		WriteRows:        b.WriteRows.Load(),
		WriteBytes:       b.WriteBytes.Load(),
		WriteAvgNanos:    avg(b.WriteTotalNanos.Load(), b.WriteCount.Load()),
		PhaseCount:       b.PhaseCount.Load(),
		PhaseErrors:      b.PhaseErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	BuildCount       int64
	BuildErrors      int64
	BuildEdges       int64
	BuildDescriptors int64
	BuildAvgNanos    int64
	ExchangeCount    int64
	ExchangeErrors   int64
	ExchangeRuns     int64
	ExchangeBytes    int64
	WriteCount       int64
	WriteErrors      int64
	WriteRows        int64
	WriteBytes       int64
	WriteAvgNanos    int64
	PhaseCount       int64
	PhaseErrors      int64
}
