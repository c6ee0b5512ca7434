package rangeindex

import (
	"fmt"
	"math"
	"math/bits"
	"slices"

	"github.com/hupe1980/edgeidx/edges"
)

// Build computes the index of direction d over the local edges of v for the
// node ids [0, nodeCount).
//
// Descriptors name global edge ids (v.Offset()+i). Every node id on the
// grouped side must be below nodeCount; otherwise Build returns
// *ErrNodeOutOfRange and no index. nodeCount must not exceed MaxNodeCount.
func Build(d Direction, nodeCount uint64, v edges.View) (*Index, error) {
	if nodeCount > MaxNodeCount {
		return nil, fmt.Errorf("%w: node count %d exceeds %d", ErrPrecondition, nodeCount, uint64(MaxNodeCount))
	}
	n := v.Len()
	base := v.Offset()

	// Histogram shifted by one so that the prefix sum yields bucket bounds.
	bounds := make([]uint64, nodeCount+1)
	for i := range n {
		node := d.NodeID(v, i)
		if node >= nodeCount {
			return nil, &ErrNodeOutOfRange{Direction: d, EdgeID: base + i, Node: node, NodeCount: nodeCount}
		}
		bounds[node+1]++
	}
	for k := range nodeCount {
		bounds[k+1] += bounds[k]
	}

	// Stable scatter: edge ids enter each bucket in ascending order.
	bucket := make([]uint64, n)
	cursor := slices.Clone(bounds[:nodeCount])
	for i := range n {
		node := d.NodeID(v, i)
		bucket[cursor[node]] = base + i
		cursor[node]++
	}
	cursor = nil

	idx := &Index{
		Direction: d,
		Nodes:     make([]NodeRange, nodeCount),
	}
	for k := range nodeCount {
		start := uint64(len(idx.Descriptors))
		for _, id := range bucket[bounds[k]:bounds[k+1]] {
			if m := uint64(len(idx.Descriptors)); m > start && idx.Descriptors[m-1].Hi == id {
				idx.Descriptors[m-1].Hi++
				continue
			}
			idx.Descriptors = append(idx.Descriptors, Descriptor{Lo: id, Hi: id + 1})
		}
		idx.Nodes[k] = NodeRange{Start: start, End: uint64(len(idx.Descriptors))}
	}
	if idx.Descriptors == nil {
		idx.Descriptors = []Descriptor{}
	}
	idx.Descriptors = slices.Clip(idx.Descriptors)
	return idx, nil
}

// MaxNodeCount is the largest node count Build accepts. The node table of
// such an index takes 16 TiB.
const MaxNodeCount = 1 << 40

// EstimateMemory returns the peak number of scratch and output bytes Build
// allocates for a shard of edgeCount edges and nodeCount node ids. The edge
// shard itself is not included; see edges.Bytes. The result saturates at
// math.MaxInt64.
func EstimateMemory(edgeCount, nodeCount uint64) uint64 {
	const (
		bucket      = 8
		descriptors = 16 // worst case: one descriptor per edge
		histogram   = 16 // bounds and cursor
		nodes       = 16
	)
	hi1, perEdges := bits.Mul64(edgeCount, bucket+descriptors)
	hi2, perNodes := bits.Mul64(nodeCount, histogram+nodes)
	sum, c1 := bits.Add64(perEdges, perNodes, 0)
	sum, c2 := bits.Add64(sum, 8, 0)
	if hi1|hi2|c1|c2 != 0 || sum > math.MaxInt64 {
		return math.MaxInt64
	}
	return sum
}
