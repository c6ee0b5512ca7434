// Package edgeidx builds bidirectional adjacency range indices over large
// directed edge sets stored in a hierarchical container.
//
// An edge set ("population") is a group holding two equal-length uint64
// datasets, source_node_id and target_node_id. The position of an edge is
// its edge id. For each direction edgeidx writes a two-level index below
// the population:
//
//	<population>/indices/source_to_target/node_id_to_ranges  [N_source, 2]
//	<population>/indices/source_to_target/range_to_edge_id   [D, 2]
//	<population>/indices/target_to_source/node_id_to_ranges  [N_target, 2]
//	<population>/indices/target_to_source/range_to_edge_id   [D', 2]
//
// Row n of node_id_to_ranges is the half-open interval of rows in
// range_to_edge_id that belong to node n; every such row is a maximal
// half-open interval of consecutive edge ids.
//
// # Building
//
// Construction is collective. Every worker of a group calls the same
// operations in the same order with identical arguments:
//
//	err := cluster.Run(ctx, 4, func(ctx context.Context, comm cluster.Comm) error {
//	    ix, err := edgeidx.Init(ctx, comm, edgeidx.WithStrategy(partition.Sharded))
//	    if err != nil {
//	        return err
//	    }
//	    f, err := container.Open("graph.h5", container.ReadWrite)
//	    if err != nil {
//	        return err
//	    }
//	    defer f.Close()
//	    return ix.Write(ctx, f, "edges/default", 1000, 1000)
//	})
//
// Each worker owns a contiguous block of node ids and writes only its own
// rows. A failure on any worker fails the call on every worker.
//
// # Reading
//
//	r, err := edgeidx.OpenReader(f, "edges/default")
//	ids, err := r.EdgeIDs(rangeindex.SourceToTarget, 42)
//
// # Publishing
//
// Finished containers can be copied to a blobstore.BlobStore (local
// directory, S3, MinIO), optionally block-compressed, with Publish and
// Fetch.
package edgeidx
