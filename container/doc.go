// Package container implements a single-file hierarchical binary container.
//
// A container holds named groups and fixed-shape uint64 datasets, addressed
// by slash-separated paths ("data/indices/source_to_target/range_to_edge_id").
// It plays the role HDF5 plays for parallel writers: dataset regions are
// allocated once, never move, and can be written concurrently at disjoint
// byte ranges by independent handles on the same file.
//
// # Layout
//
// All integers are little-endian.
//
//	offset 0   header (64 bytes)
//	             magic    u32  0x58444945 ("EIDX")
//	             version  u32  1
//	             id       [16] file UUID
//	             dataEnd  u64  end of the data area = directory offset
//	             dirLen   u64
//	             dirCRC   u32  CRC32-Castagnoli of the directory
//	             reserved [20]
//	offset 64  data area: dataset regions, row-major, zero-filled at creation
//	dataEnd    directory
//	             count    u32
//	             objects sorted by path:
//	               path   u16 length + bytes
//	               kind   u8 (1 group, 2 dataset)
//	               dataset only:
//	                 dtype  u8 (1 uint64)
//	                 rank   u8
//	                 dims   u64 × rank
//	                 offset u64
//	                 length u64 (bytes)
//
// Every metadata change rewrites the directory at dataEnd and then the
// header. The encoding is deterministic: the same sequence of operations on
// the same file always produces the same bytes.
//
// # Parallel use
//
// Metadata (groups, dataset allocation) must be mutated by a single handle.
// Other handles call Refresh after a barrier to observe new objects. Dataset
// writes from any ReadWrite handle go straight to the file with WriteAt.
package container
