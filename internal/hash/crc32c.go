package hash

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// ErrMismatch is returned by Verify when data does not match its checksum.
var ErrMismatch = errors.New("hash: checksum mismatch")

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CRC32C returns the CRC32-Castagnoli checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

// Verify checks data against the stored checksum want.
func Verify(data []byte, want uint32) error {
	if got := CRC32C(data); got != want {
		return fmt.Errorf("%w: %08x != %08x", ErrMismatch, got, want)
	}
	return nil
}

// Base64 returns the checksum of data as base64 of its big-endian bytes,
// the form object stores take in checksum headers.
func Base64(data []byte) string {
	return base64.StdEncoding.EncodeToString(binary.BigEndian.AppendUint32(nil, CRC32C(data)))
}
