package rangeindex

import (
	"fmt"

	"github.com/hupe1980/edgeidx/edges"
)

// Direction selects the endpoint that edges are grouped by.
type Direction int

const (
	// SourceToTarget groups edges by source node id.
	SourceToTarget Direction = iota
	// TargetToSource groups edges by target node id.
	TargetToSource
)

// Directions lists both directions in construction order.
var Directions = []Direction{SourceToTarget, TargetToSource}

// Valid reports whether d is one of Directions.
func (d Direction) Valid() bool {
	return d == SourceToTarget || d == TargetToSource
}

func (d Direction) String() string {
	switch d {
	case SourceToTarget:
		return "source_to_target"
	case TargetToSource:
		return "target_to_source"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection parses the name of a direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "source_to_target", "source":
		return SourceToTarget, nil
	case "target_to_source", "target":
		return TargetToSource, nil
	default:
		return 0, fmt.Errorf("rangeindex: unknown direction %q", s)
	}
}

// NodeID returns the node id of local edge i of v on the grouped side.
func (d Direction) NodeID(v edges.View, i uint64) uint64 {
	if d == TargetToSource {
		return v.Target(i)
	}
	return v.Source(i)
}

// NodeRange is the half-open descriptor range [Start, End) of one node.
type NodeRange struct {
	Start uint64
	End   uint64
}

// Len returns the number of descriptors in the range.
func (r NodeRange) Len() uint64 { return r.End - r.Start }

// Descriptor is the half-open edge id interval [Lo, Hi).
type Descriptor struct {
	Lo uint64
	Hi uint64
}

// Len returns the number of edges in the interval.
func (d Descriptor) Len() uint64 { return d.Hi - d.Lo }

// Index is the complete two-level index of one direction.
type Index struct {
	Direction   Direction
	Nodes       []NodeRange
	Descriptors []Descriptor
}

// NodeCount returns the number of node ids covered by the index.
func (idx *Index) NodeCount() uint64 { return uint64(len(idx.Nodes)) }

// Lookup returns the descriptors of node n. It returns nil for ids outside
// the index.
func (idx *Index) Lookup(n uint64) []Descriptor {
	if n >= uint64(len(idx.Nodes)) {
		return nil
	}
	r := idx.Nodes[n]
	return idx.Descriptors[r.Start:r.End]
}

// EdgeIDs returns the edge ids of node n in ascending order.
func (idx *Index) EdgeIDs(n uint64) []uint64 {
	return Expand(idx.Lookup(n))
}

// EdgeCount returns the number of edges covered by all descriptors.
func (idx *Index) EdgeCount() uint64 {
	var n uint64
	for _, d := range idx.Descriptors {
		n += d.Len()
	}
	return n
}

// Expand returns the edge ids named by descs.
func Expand(descs []Descriptor) []uint64 {
	var n uint64
	for _, d := range descs {
		n += d.Len()
	}
	out := make([]uint64, 0, n)
	for _, d := range descs {
		for id := d.Lo; id < d.Hi; id++ {
			out = append(out, id)
		}
	}
	return out
}
