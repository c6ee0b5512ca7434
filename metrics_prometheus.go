package edgeidx

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/edgeidx/cluster"
	"github.com/hupe1980/edgeidx/rangeindex"
)

// PrometheusCollector implements MetricsCollector with Prometheus metrics.
type PrometheusCollector struct {
	opLatency   *prometheus.HistogramVec
	edges       *prometheus.CounterVec
	descriptors *prometheus.CounterVec
	runs        *prometheus.CounterVec
	bytes       *prometheus.CounterVec
	rows        *prometheus.CounterVec
	phases      *prometheus.CounterVec
}

var _ MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheusCollector creates the collector and registers its metrics
// with reg. A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &PrometheusCollector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edgeidx_operation_latency_seconds",
			Help:    "Latency of index construction steps",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "direction", "status"}),
		edges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeidx_build_edges_total",
			Help: "Edges consumed by local builds",
		}, []string{"direction"}),
		descriptors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeidx_build_descriptors_total",
			Help: "Descriptors produced by local builds",
		}, []string{"direction"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeidx_exchange_runs_total",
			Help: "Runs sent during sharded exchanges",
		}, []string{"direction"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeidx_bytes_total",
			Help: "Bytes exchanged or written",
		}, []string{"op", "direction"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeidx_write_rows_total",
			Help: "Table rows written",
		}, []string{"direction"}),
		phases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeidx_phases_total",
			Help: "Completed lockstep phases",
		}, []string{"phase", "status"}),
	}

	for _, c := range []prometheus.Collector{p.opLatency, p.edges, p.descriptors, p.runs, p.bytes, p.rows, p.phases} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordBuild implements MetricsCollector.
func (p *PrometheusCollector) RecordBuild(d rangeindex.Direction, edges, descriptors uint64, duration time.Duration, err error) {
	p.opLatency.WithLabelValues("build", d.String(), status(err)).Observe(duration.Seconds())
	if err == nil {
		p.edges.WithLabelValues(d.String()).Add(float64(edges))
		p.descriptors.WithLabelValues(d.String()).Add(float64(descriptors))
	}
}

// RecordExchange implements MetricsCollector.
func (p *PrometheusCollector) RecordExchange(d rangeindex.Direction, runs, bytes uint64, duration time.Duration, err error) {
	p.opLatency.WithLabelValues("exchange", d.String(), status(err)).Observe(duration.Seconds())
	if err == nil {
		p.runs.WithLabelValues(d.String()).Add(float64(runs))
		p.bytes.WithLabelValues("exchange", d.String()).Add(float64(bytes))
	}
}

// RecordWrite implements MetricsCollector.
func (p *PrometheusCollector) RecordWrite(d rangeindex.Direction, rows, bytes uint64, duration time.Duration, err error) {
	p.opLatency.WithLabelValues("write", d.String(), status(err)).Observe(duration.Seconds())
	if err == nil {
		p.rows.WithLabelValues(d.String()).Add(float64(rows))
		p.bytes.WithLabelValues("write", d.String()).Add(float64(bytes))
	}
}

// RecordPhase implements MetricsCollector.
func (p *PrometheusCollector) RecordPhase(phase cluster.Phase, _ time.Duration, err error) {
	p.phases.WithLabelValues(phase.String(), status(err)).Inc()
}
