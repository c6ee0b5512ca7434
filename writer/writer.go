// Package writer commits owned index slices into a shared container.
//
// A write runs three lockstep phases on every worker:
//
//	create  rank 0 allocates (or validates) both tables
//	write   every worker refreshes its view and writes its disjoint rows
//	fence   every worker syncs; the call returns once all have synced
//
// Only rank 0 mutates container metadata. Because rows are owned by exactly
// one worker, no two workers ever address the same bytes.
package writer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/edgeidx/cluster"
	"github.com/hupe1980/edgeidx/container"
	"github.com/hupe1980/edgeidx/internal/resource"
	"github.com/hupe1980/edgeidx/layout"
	"github.com/hupe1980/edgeidx/partition"
	"github.com/hupe1980/edgeidx/rangeindex"
)

// DefaultChunkRows is the number of rows written per request.
const DefaultChunkRows = 1 << 16

const rowBytes = layout.PairWidth * 8

// Options configures a Writer.
type Options struct {
	ChunkRows uint64
	Resources *resource.Controller
	Tracer    trace.Tracer
}

// Option configures a Writer.
type Option func(*Options)

// WithChunkRows sets the number of rows per write request.
func WithChunkRows(n uint64) Option {
	return func(o *Options) {
		o.ChunkRows = n
	}
}

// WithResources sets the controller that budgets write buffers and
// throughput.
func WithResources(rc *resource.Controller) Option {
	return func(o *Options) {
		o.Resources = rc
	}
}

// WithTracer sets the tracer for write spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Options) {
		o.Tracer = t
	}
}

// Stats summarizes one worker's part of a write.
type Stats struct {
	NodeRows       uint64
	DescriptorRows uint64
	Bytes          uint64
	Requests       uint64
}

// Writer writes plans of one worker into a container.
type Writer struct {
	comm cluster.Comm
	file *container.File
	opts Options
}

// New creates a Writer. file must be open in read-write mode on every worker.
func New(comm cluster.Comm, file *container.File, optFns ...Option) *Writer {
	opts := Options{ChunkRows: DefaultChunkRows}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ChunkRows == 0 {
		opts.ChunkRows = DefaultChunkRows
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("edgeidx/writer")
	}
	return &Writer{comm: comm, file: file, opts: opts}
}

// Write runs the create, write and fence phases for plan below the
// population group at groupPath. lock must have completed the exchange
// phase. Write is collective.
func (w *Writer) Write(ctx context.Context, lock *cluster.Lockstep, groupPath string, plan *partition.Plan) (*Stats, error) {
	d := plan.Slice.Direction
	shape := layout.Shape{Nodes: plan.NodeCount, Descriptors: plan.DescriptorCount}

	ctx, span := w.opts.Tracer.Start(ctx, "writer.Write",
		trace.WithAttributes(
			attribute.String("edgeidx.group", groupPath),
			attribute.String("edgeidx.direction", d.String()),
			attribute.Int("edgeidx.rank", w.comm.Rank()),
			attribute.Int64("edgeidx.nodes", int64(shape.Nodes)),
			attribute.Int64("edgeidx.descriptors", int64(shape.Descriptors)),
		),
	)
	defer span.End()

	stats, err := w.write(ctx, lock, groupPath, d, shape, plan.Slice)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int64("edgeidx.bytes", int64(stats.Bytes)))
	span.SetStatus(codes.Ok, "")
	return stats, nil
}

func (w *Writer) write(ctx context.Context, lock *cluster.Lockstep, groupPath string, d rangeindex.Direction, shape layout.Shape, slice *rangeindex.Slice) (*Stats, error) {
	var tables *layout.Tables

	var createErr error
	if w.comm.Rank() == 0 {
		tables, createErr = w.create(groupPath, d, shape)
	}
	if err := lock.Complete(ctx, cluster.PhaseCreate, createErr); err != nil {
		return nil, err
	}

	stats := &Stats{}
	writeErr := func() error {
		if tables == nil {
			var err error
			if tables, err = w.open(groupPath, d, shape); err != nil {
				return err
			}
		}
		if err := slice.Check(); err != nil {
			return err
		}
		if err := w.writeRows(ctx, tables.Ranges, slice.NodeOffset, layout.EncodeRanges(slice.Nodes), stats); err != nil {
			return err
		}
		stats.NodeRows = uint64(len(slice.Nodes))
		if err := w.writeRows(ctx, tables.Edges, slice.DescriptorOffset, layout.EncodeDescriptors(slice.Descriptors), stats); err != nil {
			return err
		}
		stats.DescriptorRows = uint64(len(slice.Descriptors))
		return nil
	}()
	if err := lock.Complete(ctx, cluster.PhaseWrite, writeErr); err != nil {
		return nil, err
	}

	if err := lock.Complete(ctx, cluster.PhaseFence, w.file.Sync()); err != nil {
		return nil, err
	}
	return stats, nil
}

func (w *Writer) create(groupPath string, d rangeindex.Direction, shape layout.Shape) (*layout.Tables, error) {
	g, err := w.file.Group(groupPath)
	if err != nil {
		return nil, err
	}
	return layout.Create(g, d, shape)
}

func (w *Writer) open(groupPath string, d rangeindex.Direction, shape layout.Shape) (*layout.Tables, error) {
	if err := w.file.Refresh(); err != nil {
		return nil, err
	}
	g, err := w.file.Group(groupPath)
	if err != nil {
		return nil, err
	}
	tables, err := layout.Open(g, d)
	if err != nil {
		return nil, err
	}
	if got := tables.Shape(); got != shape {
		return nil, fmt.Errorf("%w: %s/%s has %d nodes and %d descriptors, want %d and %d",
			layout.ErrIndexExists, groupPath, layout.DirectionGroup(d), got.Nodes, got.Descriptors, shape.Nodes, shape.Descriptors)
	}
	return tables, nil
}

// writeRows writes flat pair values starting at row, in chunks.
func (w *Writer) writeRows(ctx context.Context, ds *container.Dataset, row uint64, vals []uint64, stats *Stats) error {
	rows := uint64(len(vals)) / layout.PairWidth
	for done := uint64(0); done < rows; {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(w.opts.ChunkRows, rows-done)
		bytes := int64(n * rowBytes)

		release, err := w.opts.Resources.Reserve(bytes)
		if err != nil {
			return err
		}
		err = w.opts.Resources.AcquireIO(ctx, int(bytes))
		if err == nil {
			err = ds.Write(row+done, vals[done*layout.PairWidth:(done+n)*layout.PairWidth])
		}
		release()
		if err != nil {
			return err
		}

		done += n
		stats.Bytes += uint64(bytes)
		stats.Requests++
	}
	return nil
}
