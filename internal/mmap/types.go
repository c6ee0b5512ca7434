package mmap

import "errors"

// Advice tells the kernel how a container will be read.
type Advice int

const (
	// Normal applies no advice.
	Normal Advice = iota
	// Sequential suits whole-container copies such as publish and fetch.
	Sequential
	// Random suits index lookups, which touch two rows per node.
	Random
)

var (
	// ErrClosed is returned when reading a closed mapping.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned for files whose size cannot be mapped.
	ErrInvalidSize = errors.New("mmap: invalid file size")
	// ErrInvalidOffset is returned for negative read offsets.
	ErrInvalidOffset = errors.New("mmap: invalid offset")
)
