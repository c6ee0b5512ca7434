package edgeidx

import (
	"fmt"

	"github.com/hupe1980/edgeidx/container"
	"github.com/hupe1980/edgeidx/layout"
	"github.com/hupe1980/edgeidx/rangeindex"
)

// Reader answers adjacency queries against a written index. Each lookup
// reads one row of node_id_to_ranges and the node's block of
// range_to_edge_id, independent of the index size.
//
// A Reader is safe for concurrent use if its container is.
type Reader struct {
	group  string
	tables [2]*layout.Tables
}

// OpenReader opens both directions of the index of the population at
// groupPath.
func OpenReader(file *container.File, groupPath string) (*Reader, error) {
	g, err := file.Group(groupPath)
	if err != nil {
		return nil, translateError(err)
	}
	r := &Reader{group: g.Path()}
	for i, d := range rangeindex.Directions {
		t, err := layout.Open(g, d)
		if err != nil {
			return nil, translateError(err)
		}
		r.tables[i] = t
	}
	return r, nil
}

// Group returns the population path.
func (r *Reader) Group() string { return r.group }

// indexBlockNodes bounds the nodes whose descriptors Index reads at once.
const indexBlockNodes = 1 << 16

func (r *Reader) table(d rangeindex.Direction) (*layout.Tables, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: unknown %s", ErrPrecondition, d)
	}
	return r.tables[d], nil
}

// NodeCount returns the number of node ids of d, or 0 for an unknown
// direction.
func (r *Reader) NodeCount(d rangeindex.Direction) uint64 {
	t, err := r.table(d)
	if err != nil {
		return 0
	}
	return t.Ranges.Len()
}

// DescriptorCount returns the number of descriptors of d, or 0 for an
// unknown direction.
func (r *Reader) DescriptorCount(d rangeindex.Direction) uint64 {
	t, err := r.table(d)
	if err != nil {
		return 0
	}
	return t.Edges.Len()
}

// Range returns the descriptor row interval of node.
func (r *Reader) Range(d rangeindex.Direction, node uint64) (rangeindex.NodeRange, error) {
	t, err := r.table(d)
	if err != nil {
		return rangeindex.NodeRange{}, err
	}
	if node >= t.Ranges.Len() {
		return rangeindex.NodeRange{}, fmt.Errorf("%w: node %d of %d in %s", ErrPrecondition, node, t.Ranges.Len(), d)
	}
	vals, err := t.Ranges.Read(node, 1)
	if err != nil {
		return rangeindex.NodeRange{}, translateError(err)
	}
	nr := rangeindex.NodeRange{Start: vals[0], End: vals[1]}
	if nr.Start > nr.End || nr.End > t.Edges.Len() {
		return rangeindex.NodeRange{}, translateError(&rangeindex.VerifyError{
			Direction: d,
			Node:      node,
			Reason:    fmt.Sprintf("range [%d, %d) outside %d descriptors", nr.Start, nr.End, t.Edges.Len()),
		})
	}
	return nr, nil
}

// Ranges returns the edge-id descriptors of node in ascending order.
func (r *Reader) Ranges(d rangeindex.Direction, node uint64) ([]rangeindex.Descriptor, error) {
	nr, err := r.Range(d, node)
	if err != nil {
		return nil, err
	}
	return r.readDescriptors(r.tables[d], nr.Start, nr.Len())
}

// EdgeIDs returns the edge ids incident to node on d's grouped side, in
// ascending order.
func (r *Reader) EdgeIDs(d rangeindex.Direction, node uint64) ([]uint64, error) {
	descs, err := r.Ranges(d, node)
	if err != nil {
		return nil, err
	}
	return rangeindex.Expand(descs), nil
}

// Index loads the complete index of d into memory. The descriptor table is
// read in blocks of indexBlockNodes nodes.
func (r *Reader) Index(d rangeindex.Direction) (*rangeindex.Index, error) {
	t, err := r.table(d)
	if err != nil {
		return nil, err
	}

	vals, err := t.Ranges.ReadAll()
	if err != nil {
		return nil, translateError(err)
	}
	nodes, err := layout.DecodeRanges(vals)
	if err != nil {
		return nil, translateError(err)
	}
	total := t.Edges.Len()

	if len(nodes) == 0 {
		descs, err := r.readDescriptors(t, 0, total)
		if err != nil {
			return nil, err
		}
		return &rangeindex.Index{Direction: d, Nodes: nodes, Descriptors: descs}, nil
	}

	var parts []*rangeindex.Slice
	for k0 := 0; k0 < len(nodes); k0 += indexBlockNodes {
		k1 := min(k0+indexBlockNodes, len(nodes))
		lo, hi := nodes[k0].Start, total
		if k1 < len(nodes) {
			hi = nodes[k1].Start
		}
		if lo > hi || hi > total {
			return nil, translateError(&rangeindex.VerifyError{
				Direction: d,
				Node:      uint64(k0),
				Reason:    fmt.Sprintf("descriptor block [%d, %d) outside %d descriptors", lo, hi, total),
			})
		}
		descs, err := r.readDescriptors(t, lo, hi-lo)
		if err != nil {
			return nil, err
		}
		parts = append(parts, &rangeindex.Slice{
			Direction:        d,
			NodeOffset:       uint64(k0),
			Nodes:            nodes[k0:k1],
			DescriptorOffset: lo,
			Descriptors:      descs,
		})
	}
	idx, err := rangeindex.Join(parts)
	if err != nil {
		return nil, translateError(err)
	}
	return idx, nil
}

func (r *Reader) readDescriptors(t *layout.Tables, row, count uint64) ([]rangeindex.Descriptor, error) {
	vals, err := t.Edges.Read(row, count)
	if err != nil {
		return nil, translateError(err)
	}
	descs, err := layout.DecodeDescriptors(vals)
	if err != nil {
		return nil, translateError(err)
	}
	return descs, nil
}
