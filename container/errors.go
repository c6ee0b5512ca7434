package container

import "errors"

var (
	// ErrNotFound is returned when a path does not exist.
	ErrNotFound = errors.New("container: object not found")
	// ErrExists is returned when creating an object that already exists.
	ErrExists = errors.New("container: object already exists")
	// ErrNotGroup is returned when a path names a dataset where a group is required.
	ErrNotGroup = errors.New("container: not a group")
	// ErrNotDataset is returned when a path names a group where a dataset is required.
	ErrNotDataset = errors.New("container: not a dataset")
	// ErrReadOnly is returned when mutating a read-only container.
	ErrReadOnly = errors.New("container: read-only")
	// ErrClosed is returned when using a closed container.
	ErrClosed = errors.New("container: closed")
	// ErrCorrupt is returned when the header or directory fails validation.
	ErrCorrupt = errors.New("container: corrupt")
	// ErrInvalidPath is returned for malformed object paths.
	ErrInvalidPath = errors.New("container: invalid path")
	// ErrOutOfBounds is returned when a read or write exceeds a dataset's extent.
	ErrOutOfBounds = errors.New("container: out of bounds")
	// ErrShape is returned for invalid dataset shapes or misaligned value slices.
	ErrShape = errors.New("container: invalid shape")
	// ErrIO wraps failures of the underlying file.
	ErrIO = errors.New("container: i/o failure")
)
