package container

import (
	"encoding/binary"
	"fmt"
	"slices"
)

// Dataset is a fixed-shape, row-major uint64 array stored in a container.
//
// Rows are indexed along the first dimension. A row holds Width elements.
type Dataset struct {
	file   *File
	path   string
	dims   []uint64
	width  uint64
	offset uint64
}

// newDataset expects the dims of o to be validated.
func newDataset(f *File, o *object) *Dataset {
	width, _ := elemCount(o.dims[1:])
	return &Dataset{
		file:   f,
		path:   o.path,
		dims:   slices.Clone(o.dims),
		width:  width,
		offset: o.offset,
	}
}

// Path returns the absolute path of the dataset.
func (d *Dataset) Path() string { return d.path }

// Dims returns a copy of the dataset dimensions.
func (d *Dataset) Dims() []uint64 { return slices.Clone(d.dims) }

// Len returns the number of rows.
func (d *Dataset) Len() uint64 { return d.dims[0] }

// Width returns the number of elements per row.
func (d *Dataset) Width() uint64 { return d.width }

// Bytes returns the size of the dataset region in bytes.
func (d *Dataset) Bytes() uint64 { return d.dims[0] * d.width * elemSize }

// HasShape reports whether the dataset has exactly the given dimensions.
func (d *Dataset) HasShape(dims ...uint64) bool {
	return slices.Equal(d.dims, dims)
}

// Read reads count rows starting at row.
func (d *Dataset) Read(row, count uint64) ([]uint64, error) {
	if err := d.bounds(row, count); err != nil {
		return nil, err
	}
	n := count * d.width
	if n == 0 {
		return []uint64{}, nil
	}

	d.file.mu.RLock()
	defer d.file.mu.RUnlock()
	if d.file.closed {
		return nil, ErrClosed
	}

	buf := make([]byte, n*elemSize)
	off := int64(d.offset + row*d.width*elemSize)
	if _, err := d.file.r.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrIO, d.path, err)
	}

	out := make([]uint64, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(buf[i*elemSize:])
	}
	return out, nil
}

// ReadAll reads the whole dataset.
func (d *Dataset) ReadAll() ([]uint64, error) {
	return d.Read(0, d.Len())
}

// Write writes values starting at row. len(values) must be a multiple of
// Width.
func (d *Dataset) Write(row uint64, values []uint64) error {
	if d.width == 0 {
		if len(values) != 0 {
			return fmt.Errorf("%w: %d values for zero-width rows", ErrShape, len(values))
		}
		return nil
	}
	if uint64(len(values))%d.width != 0 {
		return fmt.Errorf("%w: %d values do not fill rows of width %d", ErrShape, len(values), d.width)
	}
	count := uint64(len(values)) / d.width
	if err := d.bounds(row, count); err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	d.file.mu.RLock()
	defer d.file.mu.RUnlock()
	if err := d.file.checkWritable(); err != nil {
		return err
	}

	buf := make([]byte, len(values)*elemSize)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*elemSize:], v)
	}

	off := int64(d.offset + row*d.width*elemSize)
	if _, err := d.file.f.WriteAt(buf, off); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, d.path, err)
	}
	return nil
}

func (d *Dataset) bounds(row, count uint64) error {
	if row > d.dims[0] || count > d.dims[0]-row {
		return fmt.Errorf("%w: %s rows [%d, %d) of %d", ErrOutOfBounds, d.path, row, row+count, d.dims[0])
	}
	return nil
}
