package rangeindex

import (
	"cmp"
	"fmt"
	"slices"
)

// Slice is the part of an index owned by one worker: the node ranges of
// NodeOffset..NodeOffset+len(Nodes) and the descriptor block they address.
// Node ranges hold absolute descriptor positions.
type Slice struct {
	Direction        Direction
	NodeOffset       uint64
	Nodes            []NodeRange
	DescriptorOffset uint64
	Descriptors      []Descriptor
}

// Slice returns the owned part of idx for the node ids
// [nodeOffset, nodeOffset+nodeCount). The result shares memory with idx.
func (idx *Index) Slice(nodeOffset, nodeCount uint64) (*Slice, error) {
	total := uint64(len(idx.Nodes))
	if nodeOffset > total || nodeCount > total-nodeOffset {
		return nil, fmt.Errorf("%w: node slice [%d, %d) of %d", ErrPrecondition, nodeOffset, nodeOffset+nodeCount, total)
	}
	lo := idx.cursor(nodeOffset)
	hi := idx.cursor(nodeOffset + nodeCount)
	return &Slice{
		Direction:        idx.Direction,
		NodeOffset:       nodeOffset,
		Nodes:            idx.Nodes[nodeOffset : nodeOffset+nodeCount],
		DescriptorOffset: lo,
		Descriptors:      idx.Descriptors[lo:hi],
	}, nil
}

// cursor returns the descriptor position where node n's block begins.
func (idx *Index) cursor(n uint64) uint64 {
	if n < uint64(len(idx.Nodes)) {
		return idx.Nodes[n].Start
	}
	return uint64(len(idx.Descriptors))
}

// Check reports whether the node ranges of s tile its descriptor block in
// order.
func (s *Slice) Check() error {
	pos := s.DescriptorOffset
	for i, r := range s.Nodes {
		if r.Start != pos || r.End < r.Start {
			return &VerifyError{
				Direction: s.Direction,
				Node:      s.NodeOffset + uint64(i),
				Reason:    fmt.Sprintf("range [%d, %d) does not continue at %d", r.Start, r.End, pos),
			}
		}
		pos = r.End
	}
	if end := s.DescriptorOffset + uint64(len(s.Descriptors)); pos != end {
		return &VerifyError{
			Direction: s.Direction,
			Node:      s.NodeOffset + uint64(len(s.Nodes)),
			Reason:    fmt.Sprintf("ranges end at %d, descriptor block ends at %d", pos, end),
		}
	}
	return nil
}

// Run is a descriptor tagged with its node id.
type Run struct {
	Node uint64
	Lo   uint64
	Hi   uint64
}

// Runs returns the descriptors of idx tagged with their node ids, in node
// order.
func (idx *Index) Runs() []Run {
	runs := make([]Run, 0, len(idx.Descriptors))
	for n, r := range idx.Nodes {
		for _, d := range idx.Descriptors[r.Start:r.End] {
			runs = append(runs, Run{Node: uint64(n), Lo: d.Lo, Hi: d.Hi})
		}
	}
	return runs
}

// MergeRuns sorts runs by node and edge id and merges runs of the same node
// that touch or overlap. It reuses the backing array of runs.
func MergeRuns(runs []Run) []Run {
	slices.SortFunc(runs, func(a, b Run) int {
		if c := cmp.Compare(a.Node, b.Node); c != 0 {
			return c
		}
		return cmp.Compare(a.Lo, b.Lo)
	})

	out := runs[:0]
	for _, r := range runs {
		if m := len(out); m > 0 && out[m-1].Node == r.Node && r.Lo <= out[m-1].Hi {
			out[m-1].Hi = max(out[m-1].Hi, r.Hi)
			continue
		}
		out = append(out, r)
	}
	return out
}

// FromRuns assembles the slice for node ids [nodeOffset, nodeOffset+nodeCount)
// whose descriptor block starts at descriptorOffset. runs must be the output
// of MergeRuns and lie within the node range.
func FromRuns(d Direction, nodeOffset, nodeCount, descriptorOffset uint64, runs []Run) (*Slice, error) {
	s := &Slice{
		Direction:        d,
		NodeOffset:       nodeOffset,
		Nodes:            make([]NodeRange, nodeCount),
		DescriptorOffset: descriptorOffset,
		Descriptors:      make([]Descriptor, len(runs)),
	}

	i := 0
	pos := descriptorOffset
	for k := range nodeCount {
		node := nodeOffset + k
		start := pos
		for i < len(runs) && runs[i].Node == node {
			s.Descriptors[i] = Descriptor{Lo: runs[i].Lo, Hi: runs[i].Hi}
			i++
			pos++
		}
		s.Nodes[k] = NodeRange{Start: start, End: pos}
	}
	if i != len(runs) {
		r := runs[i]
		return nil, fmt.Errorf("%w: %s: run [%d, %d) of node %d outside nodes [%d, %d) or unsorted",
			ErrPrecondition, d, r.Lo, r.Hi, r.Node, nodeOffset, nodeOffset+nodeCount)
	}
	return s, nil
}

// Join concatenates slices ordered by node offset into a complete index.
func Join(parts []*Slice) (*Index, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: no slices", ErrPrecondition)
	}

	idx := &Index{Direction: parts[0].Direction}
	for _, s := range parts {
		if s.Direction != idx.Direction {
			return nil, fmt.Errorf("%w: mixed directions %s and %s", ErrPrecondition, idx.Direction, s.Direction)
		}
		if s.NodeOffset != uint64(len(idx.Nodes)) || s.DescriptorOffset != uint64(len(idx.Descriptors)) {
			return nil, fmt.Errorf("%w: slice at node %d, descriptor %d does not continue at node %d, descriptor %d",
				ErrPrecondition, s.NodeOffset, s.DescriptorOffset, len(idx.Nodes), len(idx.Descriptors))
		}
		idx.Nodes = append(idx.Nodes, s.Nodes...)
		idx.Descriptors = append(idx.Descriptors, s.Descriptors...)
	}
	if idx.Nodes == nil {
		idx.Nodes = []NodeRange{}
	}
	if idx.Descriptors == nil {
		idx.Descriptors = []Descriptor{}
	}
	return idx, nil
}
