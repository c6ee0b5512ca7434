// Package partition assigns index ownership across a worker group.
//
// Node ids [0, N) are split into contiguous blocks, one per rank, with the
// first N mod size ranks taking one extra id. The owner of a block writes
// its node ranges and the descriptor block they address. Descriptor write
// offsets follow from an exclusive prefix sum over per-rank descriptor
// counts; because blocks are assigned in rank order, rank order is node
// order and the concatenated blocks form the complete descriptor table.
//
// Two strategies produce the owned slices:
//
//   - Replicated: every worker builds the complete index and keeps its
//     block. The exchange only validates the offsets collectively.
//   - Sharded: every worker builds the index of its own edge shard and sends
//     each run to the owner of its node with an all-to-all exchange. Owners
//     merge runs that touch across shard boundaries.
//
// Both strategies produce byte-identical output.
package partition
