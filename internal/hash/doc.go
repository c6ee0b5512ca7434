// Package hash provides the CRC32-Castagnoli checksums of the container
// format.
//
// The container directory and every compressed block carry a CRC32C of their
// plain bytes; S3 uploads send the same checksum base64 encoded.
//
//	if err := hash.Verify(directory, hdr.dirCRC); err != nil { ... }
package hash
