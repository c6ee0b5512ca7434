package mmap

import (
	"fmt"
	"io"
	"math"
	"os"
	"sync/atomic"
)

// Mapping is a read-only view of a finished container file.
type Mapping struct {
	data   []byte
	unmap  func([]byte) error
	closed atomic.Bool
}

// Open maps the file at path read-only and applies advice. An empty file
// yields an empty mapping.
func Open(path string, advice Advice) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size < 0 || uint64(size) > math.MaxInt {
		return nil, fmt.Errorf("%w: %s has %d bytes", ErrInvalidSize, path, size)
	}
	if size == 0 {
		return &Mapping{}, nil
	}

	data, unmap, err := mapFile(f, int(size))
	if err != nil {
		return nil, fmt.Errorf("mmap: map %s: %w", path, err)
	}
	m := &Mapping{data: data, unmap: unmap}

	// Advice is a hint; a kernel that rejects it still serves reads.
	_ = advise(data, advice)
	return m, nil
}

// Size returns the length of the mapped file.
func (m *Mapping) Size() int64 { return int64(len(m.data)) }

// Bytes returns the mapped file. The slice must not be used after Close.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// ReadAt implements io.ReaderAt over the mapped file.
func (m *Mapping) ReadAt(p []byte, off int64) (int, error) {
	switch {
	case m.closed.Load():
		return 0, ErrClosed
	case off < 0:
		return 0, ErrInvalidOffset
	case off >= m.Size():
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close unmaps the file. Further calls are no-ops.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) || m.unmap == nil {
		return nil
	}
	return m.unmap(m.data)
}
