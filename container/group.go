package container

import (
	"fmt"
	"math"
	"slices"
)

// Group is a named collection of groups and datasets.
type Group struct {
	file *File
	path string
}

// Path returns the absolute path of the group; the root is "".
func (g *Group) Path() string { return g.path }

// File returns the container the group belongs to.
func (g *Group) File() *File { return g.file }

// Exists reports whether an object exists at p relative to g.
func (g *Group) Exists(p string) bool {
	rel, err := cleanPath(p)
	if err != nil {
		return false
	}

	g.file.mu.RLock()
	defer g.file.mu.RUnlock()

	if rel == "" {
		return g.path == "" || g.file.objects[g.path] != nil
	}
	_, ok := g.file.objects[joinPath(g.path, rel)]
	return ok
}

// List returns the sorted names of the direct children of g.
func (g *Group) List() []string {
	g.file.mu.RLock()
	defer g.file.mu.RUnlock()
	return g.file.children(g.path)
}

// Group returns the existing group at p relative to g.
func (g *Group) Group(p string) (*Group, error) {
	rel, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	full := joinPath(g.path, rel)
	if full == "" {
		return &Group{file: g.file}, nil
	}

	g.file.mu.RLock()
	defer g.file.mu.RUnlock()

	if g.file.closed {
		return nil, ErrClosed
	}
	o, ok := g.file.objects[full]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, full)
	}
	if o.kind != KindGroup {
		return nil, fmt.Errorf("%w: %s", ErrNotGroup, full)
	}
	return &Group{file: g.file, path: full}, nil
}

// CreateGroup creates the group at p relative to g, including missing
// intermediate groups. Creating an existing group is a no-op.
func (g *Group) CreateGroup(p string) (*Group, error) {
	rel, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	full := joinPath(g.path, rel)

	g.file.mu.Lock()
	defer g.file.mu.Unlock()

	if err := g.file.checkWritable(); err != nil {
		return nil, err
	}

	before := len(g.file.objects)
	if err := g.file.mkdirs(full); err != nil {
		return nil, err
	}
	if len(g.file.objects) != before {
		if err := g.file.flush(); err != nil {
			return nil, err
		}
	}
	return &Group{file: g.file, path: full}, nil
}

// Dataset returns the existing dataset at p relative to g.
func (g *Group) Dataset(p string) (*Dataset, error) {
	rel, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	full := joinPath(g.path, rel)

	g.file.mu.RLock()
	defer g.file.mu.RUnlock()

	if g.file.closed {
		return nil, ErrClosed
	}
	o, ok := g.file.objects[full]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, full)
	}
	if o.kind != KindDataset {
		return nil, fmt.Errorf("%w: %s", ErrNotDataset, full)
	}
	return newDataset(g.file, o), nil
}

// CreateDataset allocates a zero-filled uint64 dataset with the given
// dimensions at p relative to g. Missing parent groups are created.
func (g *Group) CreateDataset(p string, dims ...uint64) (*Dataset, error) {
	rel, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	if rel == "" {
		return nil, fmt.Errorf("%w: empty dataset name", ErrInvalidPath)
	}
	if len(dims) == 0 || len(dims) > 255 {
		return nil, fmt.Errorf("%w: rank %d", ErrShape, len(dims))
	}
	n, ok := elemCount(dims)
	if !ok {
		return nil, fmt.Errorf("%w: dims %v overflow", ErrShape, dims)
	}
	full := joinPath(g.path, rel)

	g.file.mu.Lock()
	defer g.file.mu.Unlock()

	if err := g.file.checkWritable(); err != nil {
		return nil, err
	}
	if _, ok := g.file.objects[full]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, full)
	}

	if g.file.hdr.dataEnd > math.MaxInt64-n*elemSize {
		return nil, fmt.Errorf("%w: dataset %s of %d bytes does not fit the file", ErrShape, full, n*elemSize)
	}

	parent, _ := splitPath(full)
	if err := g.file.mkdirs(parent); err != nil {
		return nil, err
	}

	o := &object{
		path:   full,
		kind:   KindDataset,
		dtype:  Uint64,
		dims:   slices.Clone(dims),
		offset: g.file.hdr.dataEnd,
		length: n * elemSize,
	}

	// Drop the old directory so the new region reads as zeros.
	if err := g.file.f.Truncate(int64(o.offset)); err != nil {
		return nil, fmt.Errorf("%w: truncate %s: %w", ErrIO, g.file.name, err)
	}

	g.file.objects[full] = o
	g.file.hdr.dataEnd = o.offset + o.length

	if err := g.file.flush(); err != nil {
		return nil, err
	}
	return newDataset(g.file, o), nil
}

func splitPath(p string) (dir, name string) {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[:i], p[i+1:]
		}
	}
	return "", p
}
