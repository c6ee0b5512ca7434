// Package testutil provides test fixtures for edge sets.
//
// This package is intended for use in tests and benchmarks only.
//
// # Edge Generation
//
//	rng := testutil.NewRNG(seed)
//	src, tgt := rng.Edges(1000, 50, 70)        // uniform node ids
//	src, tgt = rng.SortedEdges(1000, 50, 70)   // grouped by source
//	rng.Shuffle(src, tgt)
//
// # Reference Adjacency
//
//	byNode := testutil.EdgesByNode(src, 50)   // edge ids per node, ascending
//
// # Containers
//
//	path := testutil.NewContainer(t, "edges/default", src, tgt)
package testutil
