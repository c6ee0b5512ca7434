package rangeindex

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/edgeidx/edges"
)

// Verify checks idx against the complete edge set v:
//
//   - node ranges tile the descriptor table in node order,
//   - descriptors of a node are non-empty, ascending and maximal,
//   - every edge id of a descriptor has the node on the grouped side,
//   - every edge id is covered exactly once.
//
// It returns a *VerifyError for the first violation found.
func Verify(idx *Index, v edges.View) error {
	d := idx.Direction
	total := v.EdgeCount()
	if v.Offset() != 0 || v.Len() != total {
		return fmt.Errorf("%w: verify needs the complete edge set, got [%d, %d) of %d",
			ErrPrecondition, v.Offset(), v.Offset()+v.Len(), total)
	}

	covered := roaring64.New()
	pos := uint64(0)

	for n, r := range idx.Nodes {
		node := uint64(n)
		if r.Start != pos || r.End < r.Start || r.End > uint64(len(idx.Descriptors)) {
			return &VerifyError{Direction: d, Node: node,
				Reason: fmt.Sprintf("range [%d, %d) does not continue at %d", r.Start, r.End, pos)}
		}
		pos = r.End

		var prevHi uint64
		for j, desc := range idx.Descriptors[r.Start:r.End] {
			if desc.Lo >= desc.Hi || desc.Hi > total {
				return &VerifyError{Direction: d, Node: node,
					Reason: fmt.Sprintf("descriptor [%d, %d) is empty or beyond %d edges", desc.Lo, desc.Hi, total)}
			}
			if j > 0 && desc.Lo <= prevHi {
				reason := fmt.Sprintf("descriptor [%d, %d) overlaps or is unordered", desc.Lo, desc.Hi)
				if desc.Lo == prevHi {
					reason = fmt.Sprintf("descriptor [%d, %d) continues its predecessor and is not maximal", desc.Lo, desc.Hi)
				}
				return &VerifyError{Direction: d, Node: node, Reason: reason}
			}
			prevHi = desc.Hi

			for id := desc.Lo; id < desc.Hi; id++ {
				if got := d.NodeID(v, id); got != node {
					return &VerifyError{Direction: d, Node: node,
						Reason: fmt.Sprintf("edge %d belongs to node %d", id, got)}
				}
			}

			before := covered.GetCardinality()
			covered.AddRange(desc.Lo, desc.Hi)
			if covered.GetCardinality()-before != desc.Len() {
				return &VerifyError{Direction: d, Node: node,
					Reason: fmt.Sprintf("descriptor [%d, %d) repeats covered edges", desc.Lo, desc.Hi)}
			}
		}
	}

	if pos != uint64(len(idx.Descriptors)) {
		return &VerifyError{Direction: d, Node: uint64(len(idx.Nodes)),
			Reason: fmt.Sprintf("%d descriptors not addressed by any node", uint64(len(idx.Descriptors))-pos)}
	}

	if covered.GetCardinality() != total {
		for id := range total {
			if !covered.Contains(id) {
				return &VerifyError{Direction: d, Node: d.NodeID(v, id),
					Reason: fmt.Sprintf("edge %d is not covered", id)}
			}
		}
	}
	return nil
}
