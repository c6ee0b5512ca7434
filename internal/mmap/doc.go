// Package mmap provides read-only memory-mapped access to finished containers.
//
// Lookups against a large index touch two rows per query, scattered across
// the file; mapping the file lets the page cache serve them without a read
// syscall each.
//
//	m, err := mmap.Open("circuit.eidx", mmap.Random)
//	if err != nil { ... }
//	defer m.Close()
//
//	n, err := m.ReadAt(buf, off)
//
// Unix uses mmap(2) with madvise(2); Windows uses CreateFileMapping and
// MapViewOfFile and ignores the advice.
//
// A Mapping must only be opened after the container's completion barrier:
// the mapping reflects the file size at Open time.
package mmap
