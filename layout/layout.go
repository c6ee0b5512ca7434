// Package layout defines the on-disk schema of the range index.
//
// For an edge population stored in group G, each direction is written to
//
//	G/indices/source_to_target/node_id_to_ranges   [node_count, 2] uint64
//	G/indices/source_to_target/range_to_edge_id    [descriptors, 2] uint64
//	G/indices/target_to_source/node_id_to_ranges   [node_count, 2] uint64
//	G/indices/target_to_source/range_to_edge_id    [descriptors, 2] uint64
//
// Rows of node_id_to_ranges are (descriptor_start, descriptor_end); rows of
// range_to_edge_id are (edge_id_lo, edge_id_hi). Both are half-open.
package layout

import (
	"errors"
	"fmt"

	"github.com/hupe1980/edgeidx/container"
	"github.com/hupe1980/edgeidx/rangeindex"
)

const (
	// IndicesGroup is the index group below a population group.
	IndicesGroup = "indices"
	// NodeIDToRanges is the first-level table.
	NodeIDToRanges = "node_id_to_ranges"
	// RangeToEdgeID is the second-level table.
	RangeToEdgeID = "range_to_edge_id"
	// PairWidth is the number of uint64 values per row.
	PairWidth = 2
)

var (
	// ErrIndexExists is returned when an index with a different shape
	// already exists.
	ErrIndexExists = errors.New("layout: index already exists with a different shape")
	// ErrNoIndex is returned when reading a population without an index.
	ErrNoIndex = errors.New("layout: no index")
)

// DirectionGroup returns the path of d's index group relative to the
// population group.
func DirectionGroup(d rangeindex.Direction) string {
	return IndicesGroup + "/" + d.String()
}

// Shape is the size of both tables of one direction.
type Shape struct {
	Nodes       uint64
	Descriptors uint64
}

// Tables are the two datasets of one direction.
type Tables struct {
	Direction rangeindex.Direction
	Ranges    *container.Dataset
	Edges     *container.Dataset
}

// Shape returns the current shape of t.
func (t *Tables) Shape() Shape {
	return Shape{Nodes: t.Ranges.Len(), Descriptors: t.Edges.Len()}
}

// Create allocates the tables of d in population group g. Existing tables
// with exactly the requested shape are returned as is, so that a repeated
// run overwrites them with identical values. Any other existing index
// object fails with ErrIndexExists.
func Create(g *container.Group, d rangeindex.Direction, shape Shape) (*Tables, error) {
	dir := DirectionGroup(d)

	if g.Exists(dir) {
		t, err := Open(g, d)
		if err != nil {
			return nil, fmt.Errorf("%w: %s/%s: %w", ErrIndexExists, g.Path(), dir, err)
		}
		if got := t.Shape(); got != shape {
			return nil, fmt.Errorf("%w: %s/%s has %d nodes and %d descriptors, want %d and %d",
				ErrIndexExists, g.Path(), dir, got.Nodes, got.Descriptors, shape.Nodes, shape.Descriptors)
		}
		return t, nil
	}

	ig, err := g.CreateGroup(dir)
	if err != nil {
		return nil, err
	}
	ranges, err := ig.CreateDataset(NodeIDToRanges, shape.Nodes, PairWidth)
	if err != nil {
		return nil, err
	}
	edgeIDs, err := ig.CreateDataset(RangeToEdgeID, shape.Descriptors, PairWidth)
	if err != nil {
		return nil, err
	}
	return &Tables{Direction: d, Ranges: ranges, Edges: edgeIDs}, nil
}

// Open returns the existing tables of d in population group g.
func Open(g *container.Group, d rangeindex.Direction) (*Tables, error) {
	dir := DirectionGroup(d)

	ig, err := g.Group(dir)
	if err != nil {
		if errors.Is(err, container.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNoIndex, g.Path(), dir)
		}
		return nil, err
	}

	ranges, err := ig.Dataset(NodeIDToRanges)
	if err != nil {
		return nil, err
	}
	edgeIDs, err := ig.Dataset(RangeToEdgeID)
	if err != nil {
		return nil, err
	}

	for _, ds := range []*container.Dataset{ranges, edgeIDs} {
		if dims := ds.Dims(); len(dims) != 2 || dims[1] != PairWidth {
			return nil, fmt.Errorf("%w: %s has shape %v", container.ErrShape, ds.Path(), dims)
		}
	}
	return &Tables{Direction: d, Ranges: ranges, Edges: edgeIDs}, nil
}

// EncodeRanges flattens node ranges into (start, end) pairs.
func EncodeRanges(rs []rangeindex.NodeRange) []uint64 {
	out := make([]uint64, 0, len(rs)*PairWidth)
	for _, r := range rs {
		out = append(out, r.Start, r.End)
	}
	return out
}

// DecodeRanges parses (start, end) pairs.
func DecodeRanges(vals []uint64) ([]rangeindex.NodeRange, error) {
	if len(vals)%PairWidth != 0 {
		return nil, fmt.Errorf("%w: %d values", container.ErrShape, len(vals))
	}
	out := make([]rangeindex.NodeRange, len(vals)/PairWidth)
	for i := range out {
		out[i] = rangeindex.NodeRange{Start: vals[2*i], End: vals[2*i+1]}
	}
	return out, nil
}

// EncodeDescriptors flattens descriptors into (lo, hi) pairs.
func EncodeDescriptors(ds []rangeindex.Descriptor) []uint64 {
	out := make([]uint64, 0, len(ds)*PairWidth)
	for _, d := range ds {
		out = append(out, d.Lo, d.Hi)
	}
	return out
}

// DecodeDescriptors parses (lo, hi) pairs.
func DecodeDescriptors(vals []uint64) ([]rangeindex.Descriptor, error) {
	if len(vals)%PairWidth != 0 {
		return nil, fmt.Errorf("%w: %d values", container.ErrShape, len(vals))
	}
	out := make([]rangeindex.Descriptor, len(vals)/PairWidth)
	for i := range out {
		out[i] = rangeindex.Descriptor{Lo: vals[2*i], Hi: vals[2*i+1]}
	}
	return out, nil
}

// Read loads the complete index of d from population group g.
func Read(g *container.Group, d rangeindex.Direction) (*rangeindex.Index, error) {
	t, err := Open(g, d)
	if err != nil {
		return nil, err
	}

	vals, err := t.Ranges.ReadAll()
	if err != nil {
		return nil, err
	}
	nodes, err := DecodeRanges(vals)
	if err != nil {
		return nil, err
	}

	vals, err = t.Edges.ReadAll()
	if err != nil {
		return nil, err
	}
	descs, err := DecodeDescriptors(vals)
	if err != nil {
		return nil, err
	}

	return &rangeindex.Index{Direction: d, Nodes: nodes, Descriptors: descs}, nil
}
