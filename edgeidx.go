package edgeidx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/edgeidx/cluster"
	"github.com/hupe1980/edgeidx/container"
	"github.com/hupe1980/edgeidx/edges"
	"github.com/hupe1980/edgeidx/internal/resource"
	"github.com/hupe1980/edgeidx/partition"
	"github.com/hupe1980/edgeidx/rangeindex"
	"github.com/hupe1980/edgeidx/writer"
)

const tracerName = "github.com/hupe1980/edgeidx"

// Indexer is one worker's handle for collective index construction.
// An Indexer is not safe for concurrent use; every worker owns its own.
type Indexer struct {
	comm   cluster.Comm
	opts   options
	log    *Logger
	tracer trace.Tracer
	coord  *partition.Coordinator
	rc     *resource.Controller
}

// Result describes the index written for one population.
type Result struct {
	Group       string
	Edges       uint64
	SourceNodes uint64
	TargetNodes uint64
	// Descriptors holds the table length per direction.
	Descriptors [2]uint64
}

// Init bootstraps comm and returns the worker's Indexer. It is collective
// and must be called exactly once per worker.
func Init(ctx context.Context, comm cluster.Comm, optFns ...Option) (*Indexer, error) {
	o := applyOptions(optFns)
	if err := comm.Bootstrap(ctx); err != nil {
		return nil, translateError(err)
	}
	return &Indexer{
		comm:   comm,
		opts:   o,
		log:    o.logger.WithRank(comm),
		tracer: o.tracerProvider.Tracer(tracerName),
		coord:  partition.NewCoordinator(comm, o.strategy),
		rc: resource.NewController(resource.Config{
			MemoryLimitBytes:   o.memoryLimit,
			IOLimitBytesPerSec: o.ioLimit,
		}),
	}, nil
}

// Comm returns the worker's group context.
func (ix *Indexer) Comm() cluster.Comm { return ix.comm }

// Strategy returns the construction strategy.
func (ix *Indexer) Strategy() partition.Strategy { return ix.opts.strategy }

// MemoryPeak returns the highest number of bytes this worker reserved.
func (ix *Indexer) MemoryPeak() int64 { return ix.rc.MemoryPeak() }

// Write builds both directions of the population at groupPath and writes
// them into file. It is collective: every worker passes the same arguments
// and its own handle of the same container, opened read-write.
//
// Node ids must be below sourceNodeCount and targetNodeCount respectively.
// On any worker failure every worker returns an error; the error satisfies
// errors.Is for exactly one of ErrPrecondition, ErrShapeMismatch,
// ErrDesync, ErrContainerIO and ErrGroupAborted.
func (ix *Indexer) Write(ctx context.Context, file *container.File, groupPath string, sourceNodeCount, targetNodeCount uint64) error {
	if ix == nil || ix.comm == nil {
		return ErrNotInitialized
	}
	_, err := ix.write(ctx, file, groupPath, [2]uint64{sourceNodeCount, targetNodeCount}, false)
	return translateError(err)
}

// WriteAll indexes every population below parentPath, in name order. Node
// counts are inferred collectively as the largest referenced id plus one.
//
// A failing population does not stop the others: WriteAll returns the
// results of the populations that succeeded and a joined error of
// *PopulationError values for those that did not.
func (ix *Indexer) WriteAll(ctx context.Context, file *container.File, parentPath string) ([]*Result, error) {
	if ix == nil || ix.comm == nil {
		return nil, ErrNotInitialized
	}

	// Every worker sees the same directory, so all agree on the list.
	pops, err := Populations(file, parentPath)
	if err != nil {
		return nil, translateError(err)
	}

	var (
		results []*Result
		errs    []error
	)
	for _, p := range pops {
		res, err := ix.write(ctx, file, p, [2]uint64{}, true)
		log := ix.log.WithPopulation(p)
		if err != nil {
			log.LogPopulation(ctx, 0, 0, err)
			errs = append(errs, &PopulationError{Group: p, Err: translateError(err)})
			if ctx.Err() != nil {
				break
			}
			continue
		}
		log.LogPopulation(ctx, res.SourceNodes, res.TargetNodes, nil)
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// Populations returns the paths of all groups directly below parentPath
// that hold an edge set.
func Populations(file *container.File, parentPath string) ([]string, error) {
	parent, err := file.Group(parentPath)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, name := range parent.List() {
		g, err := parent.Group(name)
		if err != nil {
			continue
		}
		if g.Exists(edges.SourceDataset) && g.Exists(edges.TargetDataset) {
			out = append(out, g.Path())
		}
	}
	return out, nil
}

func (ix *Indexer) write(ctx context.Context, file *container.File, groupPath string, counts [2]uint64, infer bool) (res *Result, err error) {
	ctx, span := ix.tracer.Start(ctx, "edgeidx.Write",
		trace.WithAttributes(
			attribute.String("edgeidx.group", groupPath),
			attribute.Int("edgeidx.rank", ix.comm.Rank()),
			attribute.String("edgeidx.strategy", ix.opts.strategy.String()),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log := ix.log.WithPopulation(groupPath)
	lock := cluster.NewLockstep(ix.comm, ix.phaseHook(log))

	view, edgeCount, release, loadErr := ix.load(ctx, file, groupPath, log)
	defer release()

	if infer {
		if counts, err = ix.inferCounts(ctx, view, loadErr); err != nil {
			return nil, err
		}
	}
	res = &Result{Group: groupPath, Edges: edgeCount, SourceNodes: counts[0], TargetNodes: counts[1]}

	w := writer.New(ix.comm, file,
		writer.WithChunkRows(ix.opts.chunkRows),
		writer.WithResources(ix.rc),
		writer.WithTracer(ix.opts.tracerProvider.Tracer(tracerName+"/writer")),
	)
	for i, d := range rangeindex.Directions {
		descriptors, err := ix.writeDirection(ctx, lock, w, groupPath, view, edgeCount, d, counts[i], loadErr, log.WithDirection(d))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d, err)
		}
		res.Descriptors[i] = descriptors
		loadErr = nil
	}
	return res, nil
}

// load reads the edges this worker builds over. Errors are returned, not
// agreed; the caller folds them into the first build phase.
func (ix *Indexer) load(ctx context.Context, file *container.File, groupPath string, log *Logger) (edges.View, uint64, func(), error) {
	noop := func() {}

	g, err := file.Group(groupPath)
	if err != nil {
		return nil, 0, noop, err
	}
	total, err := edges.Count(g)
	if err != nil {
		return nil, 0, noop, err
	}

	off, cnt := ix.coord.EdgeShard(total)
	if ix.comm.Rank() == 0 {
		log.LogMemoryEstimate(ctx, cnt, edges.Bytes(cnt)+rangeindex.EstimateMemory(cnt, 0))
	}

	release, err := ix.rc.Reserve(int64(edges.Bytes(cnt)))
	if err != nil {
		return nil, total, noop, err
	}
	view, err := edges.LoadChunked(ctx, g, off, cnt, ix.opts.readChunkRows)
	if err != nil {
		release()
		return nil, total, noop, err
	}
	return view, total, release, nil
}

// inferCounts agrees on max id + 1 per side. It is collective and must be
// called even when loading failed locally.
func (ix *Indexer) inferCounts(ctx context.Context, view edges.View, loadErr error) ([2]uint64, error) {
	var local [2]uint64
	if loadErr == nil {
		if s, t, ok := edges.MaxNodeIDs(view); ok {
			local = [2]uint64{s + 1, t + 1}
		}
	}

	var counts [2]uint64
	for i, v := range local {
		n, err := ix.comm.Allreduce(ctx, v, cluster.OpMax)
		if err != nil {
			return counts, err
		}
		counts[i] = n
	}
	return counts, nil
}

func (ix *Indexer) writeDirection(
	ctx context.Context,
	lock *cluster.Lockstep,
	w *writer.Writer,
	groupPath string,
	view edges.View,
	edgeCount uint64,
	d rangeindex.Direction,
	nodeCount uint64,
	loadErr error,
	log *Logger,
) (uint64, error) {
	ctx, span := ix.tracer.Start(ctx, "edgeidx.Direction",
		trace.WithAttributes(
			attribute.String("edgeidx.direction", d.String()),
			attribute.Int64("edgeidx.nodes", int64(nodeCount)),
		),
	)
	defer span.End()

	// Build.
	start := time.Now()
	idx, release, buildErr := ix.build(d, nodeCount, view, loadErr)
	defer release()
	var edgesBuilt, localDescriptors uint64
	if idx != nil {
		edgesBuilt, localDescriptors = view.Len(), uint64(len(idx.Descriptors))
	}
	log.LogBuild(ctx, nodeCount, localDescriptors, time.Since(start), buildErr)
	ix.opts.metricsCollector.RecordBuild(d, edgesBuilt, localDescriptors, time.Since(start), buildErr)
	if err := lock.Complete(ctx, cluster.PhaseBuild, buildErr); err != nil {
		return 0, err
	}

	// Exchange.
	start = time.Now()
	plan, exchangeErr := ix.coord.Exchange(ctx, idx, edgeCount)
	if exchangeErr == nil {
		log.LogExchange(ctx, plan.Slice.NodeOffset, plan.Slice.DescriptorOffset, plan.DescriptorCount, nil)
		ix.opts.metricsCollector.RecordExchange(d, plan.RunsSent, plan.BytesSent, time.Since(start), nil)
	} else {
		log.LogExchange(ctx, 0, 0, 0, exchangeErr)
		ix.opts.metricsCollector.RecordExchange(d, 0, 0, time.Since(start), exchangeErr)
	}
	if err := lock.Complete(ctx, cluster.PhaseExchange, exchangeErr); err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int64("edgeidx.descriptors", int64(plan.DescriptorCount)))

	// Create, write, fence.
	start = time.Now()
	stats, err := w.Write(ctx, lock, groupPath, plan)
	var rows, bytes uint64
	if stats != nil {
		rows, bytes = stats.NodeRows+stats.DescriptorRows, stats.Bytes
	}
	log.LogWrite(ctx, rows, bytes, time.Since(start), err)
	ix.opts.metricsCollector.RecordWrite(d, rows, bytes, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	return plan.DescriptorCount, nil
}

// build runs the local build unless loading already failed.
func (ix *Indexer) build(d rangeindex.Direction, nodeCount uint64, view edges.View, loadErr error) (*rangeindex.Index, func(), error) {
	if loadErr != nil {
		return nil, func() {}, loadErr
	}
	release, err := ix.rc.Reserve(int64(rangeindex.EstimateMemory(view.Len(), nodeCount)))
	if err != nil {
		return nil, release, err
	}
	idx, err := rangeindex.Build(d, nodeCount, view)
	if err != nil {
		return nil, release, err
	}
	return idx, release, nil
}

func (ix *Indexer) phaseHook(log *Logger) cluster.PhaseHook {
	return func(phase cluster.Phase, elapsed time.Duration, err error) {
		log.LogPhase(phase, elapsed, err)
		ix.opts.metricsCollector.RecordPhase(phase, elapsed, err)
	}
}
