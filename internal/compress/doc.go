// Package compress frames a byte stream into independently compressed blocks.
//
// It is used to archive finished containers into blob storage. Each block is
// stored as
//
//	[uncompressed size u32][compressed size u32][crc32c u32][payload]
//
// where a compressed size of 0 means the payload is stored verbatim (used
// when compression does not save at least 10%). The stream starts with a
// 5-byte preamble: the magic "EIDZ" and the compression Type.
package compress
