// Package rangeindex builds two-level adjacency range indexes over edge
// shards.
//
// For one direction (grouping edges by source or by target node) the index
// has two tables:
//
//   - Nodes: one NodeRange per node id in [0, N), the half-open range of
//     descriptor positions belonging to that node.
//   - Descriptors: maximal runs of consecutive edge ids sharing a node id,
//     concatenated in node id order.
//
// Build computes the index with a bucketed run-length encoding: a histogram
// of node ids, a prefix sum into bucket offsets, a stable scatter of edge ids
// into their buckets, and a merge of consecutive ids into runs. The cost is
// linear in the number of edges plus the number of nodes.
//
// Nodes without edges get a zero-width range at the current cursor, so
// Nodes[n].Start is always the number of descriptors of all nodes below n.
// This makes every contiguous slice of Nodes self-describing: it owns the
// descriptor block [Nodes[first].Start, Nodes[last].End).
package rangeindex
