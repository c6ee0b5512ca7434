package partition

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/edgeidx/cluster"
	"github.com/hupe1980/edgeidx/rangeindex"
)

const runSize = 24

// Plan is the outcome of an exchange: the slice this worker writes and the
// global table sizes.
type Plan struct {
	Slice           *rangeindex.Slice
	NodeCount       uint64
	DescriptorCount uint64

	// Sharded only.
	RunsSent     uint64
	RunsReceived uint64
	BytesSent    uint64
}

// Coordinator runs the collective exchange of one worker.
type Coordinator struct {
	comm     cluster.Comm
	strategy Strategy
}

// NewCoordinator creates a coordinator for comm.
func NewCoordinator(comm cluster.Comm, strategy Strategy) *Coordinator {
	return &Coordinator{comm: comm, strategy: strategy}
}

// Strategy returns the coordinator's strategy.
func (c *Coordinator) Strategy() Strategy { return c.strategy }

// EdgeShard returns the edge ids this worker must read and build over.
func (c *Coordinator) EdgeShard(edgeCount uint64) (offset, count uint64) {
	if c.strategy == Sharded {
		return Count(edgeCount, c.comm.Size(), c.comm.Rank())
	}
	return 0, edgeCount
}

// NodeBlock returns the node ids this worker owns.
func (c *Coordinator) NodeBlock(nodeCount uint64) (offset, count uint64) {
	return Count(nodeCount, c.comm.Size(), c.comm.Rank())
}

// Exchange turns the locally built index into this worker's owned slice.
// local must have been built over EdgeShard(edgeCount). Every worker must
// call Exchange; all collectives are issued even when local checks fail, so
// the group stays in step.
func (c *Coordinator) Exchange(ctx context.Context, local *rangeindex.Index, edgeCount uint64) (*Plan, error) {
	counts, err := c.comm.Allgather(ctx, local.NodeCount())
	if err != nil {
		return nil, err
	}
	// Every worker sees the same counts, so all return here.
	for r, n := range counts {
		if n != counts[0] {
			return nil, &MismatchError{What: fmt.Sprintf("node count of rank %d", r), Want: counts[0], Got: n}
		}
	}

	switch c.strategy {
	case Sharded:
		return c.exchangeSharded(ctx, local, edgeCount)
	default:
		return c.exchangeReplicated(ctx, local)
	}
}

func (c *Coordinator) exchangeReplicated(ctx context.Context, idx *rangeindex.Index) (*Plan, error) {
	off, cnt := c.NodeBlock(idx.NodeCount())

	var errs []error
	slice, err := idx.Slice(off, cnt)
	if err != nil {
		errs = append(errs, err)
		slice = &rangeindex.Slice{Direction: idx.Direction, NodeOffset: off}
	}
	n := uint64(len(slice.Descriptors))

	base, err := c.comm.Exscan(ctx, n)
	if err != nil {
		return nil, err
	}
	total, err := c.comm.Allreduce(ctx, n, cluster.OpSum)
	if err != nil {
		return nil, err
	}

	if base != slice.DescriptorOffset {
		errs = append(errs, &MismatchError{What: "descriptor offset", Want: slice.DescriptorOffset, Got: base})
	}
	if want := uint64(len(idx.Descriptors)); total != want {
		errs = append(errs, &MismatchError{What: "descriptor total", Want: want, Got: total})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return &Plan{Slice: slice, NodeCount: idx.NodeCount(), DescriptorCount: total}, nil
}

func (c *Coordinator) exchangeSharded(ctx context.Context, local *rangeindex.Index, edgeCount uint64) (*Plan, error) {
	var errs []error
	size := c.comm.Size()
	nodeCount := local.NodeCount()

	covered, err := c.comm.Allreduce(ctx, local.EdgeCount(), cluster.OpSum)
	if err != nil {
		return nil, err
	}
	if covered != edgeCount {
		errs = append(errs, &MismatchError{What: "edges built across shards", Want: edgeCount, Got: covered})
	}

	runs := local.Runs()
	send := make([][]byte, size)
	plan := &Plan{NodeCount: nodeCount}

	// Runs are in node order, so each owner receives them sorted.
	for _, run := range runs {
		r := Owner(nodeCount, size, run.Node)
		send[r] = appendRun(send[r], run)
	}
	plan.RunsSent = uint64(len(runs))
	for _, b := range send {
		plan.BytesSent += uint64(len(b))
	}
	runs = nil

	recv, err := c.comm.Alltoallv(ctx, send)
	if err != nil {
		return nil, err
	}

	var owned []rangeindex.Run
	for src, b := range recv {
		part, err := DecodeRuns(b)
		if err != nil {
			errs = append(errs, fmt.Errorf("runs from rank %d: %w", src, err))
			continue
		}
		owned = append(owned, part...)
	}
	plan.RunsReceived = uint64(len(owned))
	owned = rangeindex.MergeRuns(owned)

	var ownedEdges uint64
	for _, r := range owned {
		ownedEdges += r.Hi - r.Lo
	}

	n := uint64(len(owned))
	base, err := c.comm.Exscan(ctx, n)
	if err != nil {
		return nil, err
	}
	total, err := c.comm.Allreduce(ctx, n, cluster.OpSum)
	if err != nil {
		return nil, err
	}
	assigned, err := c.comm.Allreduce(ctx, ownedEdges, cluster.OpSum)
	if err != nil {
		return nil, err
	}
	if assigned != edgeCount {
		errs = append(errs, &MismatchError{What: "edges received by owners", Want: edgeCount, Got: assigned})
	}

	off, cnt := c.NodeBlock(nodeCount)
	slice, err := rangeindex.FromRuns(local.Direction, off, cnt, base, owned)
	if err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	plan.Slice = slice
	plan.DescriptorCount = total
	return plan, nil
}

// EncodeRuns serializes runs as little-endian (node, lo, hi) triples.
func EncodeRuns(runs []rangeindex.Run) []byte {
	b := make([]byte, 0, len(runs)*runSize)
	for _, r := range runs {
		b = appendRun(b, r)
	}
	return b
}

func appendRun(b []byte, r rangeindex.Run) []byte {
	b = binary.LittleEndian.AppendUint64(b, r.Node)
	b = binary.LittleEndian.AppendUint64(b, r.Lo)
	return binary.LittleEndian.AppendUint64(b, r.Hi)
}

// DecodeRuns parses the output of EncodeRuns.
func DecodeRuns(b []byte) ([]rangeindex.Run, error) {
	if len(b)%runSize != 0 {
		return nil, fmt.Errorf("partition: run buffer of %d bytes is not a multiple of %d", len(b), runSize)
	}
	runs := make([]rangeindex.Run, len(b)/runSize)
	for i := range runs {
		p := b[i*runSize:]
		runs[i] = rangeindex.Run{
			Node: binary.LittleEndian.Uint64(p[0:8]),
			Lo:   binary.LittleEndian.Uint64(p[8:16]),
			Hi:   binary.LittleEndian.Uint64(p[16:24]),
		}
	}
	return runs, nil
}
