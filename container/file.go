package container

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/edgeidx/fs"
	"github.com/hupe1980/edgeidx/internal/hash"
)

// Mode selects how a container is opened.
type Mode int

const (
	// ReadOnly opens a container for reading.
	ReadOnly Mode = iota
	// ReadWrite opens a container for reading and writing.
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "read-write"
	}
	return "read-only"
}

// Options configures container handles.
type Options struct {
	FileSystem fs.FileSystem
	// ID is the file id used by Create. A random id is generated when zero.
	ID uuid.UUID
}

// Option configures a container handle.
type Option func(*Options)

// WithFileSystem sets the file system used to open the container file.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *Options) {
		o.FileSystem = fsys
	}
}

// WithID sets the file id written by Create.
func WithID(id uuid.UUID) Option {
	return func(o *Options) {
		o.ID = id
	}
}

func applyOptions(optFns []Option) Options {
	opts := Options{FileSystem: fs.Default}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.FileSystem == nil {
		opts.FileSystem = fs.Default
	}
	return opts
}

// File is an open container handle.
//
// A File is safe for concurrent use. Metadata changes are serialized by the
// handle; dataset writes proceed in parallel.
type File struct {
	mu      sync.RWMutex
	name    string
	mode    Mode
	f       fs.File // nil for reader-backed handles
	r       io.ReaderAt
	hdr     header
	objects map[string]*object
	closed  bool
}

// Create creates a new, empty container, truncating any existing file.
func Create(name string, optFns ...Option) (*File, error) {
	opts := applyOptions(optFns)

	if dir := filepath.Dir(name); dir != "." {
		if err := opts.FileSystem.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create %s: %w", ErrIO, name, err)
		}
	}

	f, err := opts.FileSystem.OpenFile(name, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrIO, name, err)
	}

	id := opts.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	c := &File{
		name:    name,
		mode:    ReadWrite,
		f:       f,
		r:       f,
		hdr:     header{id: id, dataEnd: headerSize},
		objects: make(map[string]*object),
	}

	if err := c.flush(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return c, nil
}

// Open opens an existing container.
func Open(name string, mode Mode, optFns ...Option) (*File, error) {
	opts := applyOptions(optFns)

	flag := os.O_RDONLY
	if mode == ReadWrite {
		flag = os.O_RDWR
	}

	f, err := opts.FileSystem.OpenFile(name, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrIO, name, err)
	}

	c := &File{name: name, mode: mode, f: f, r: f}
	if err := c.load(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return c, nil
}

// OpenReader opens a read-only container backed by r.
// Close does not close r.
func OpenReader(r io.ReaderAt) (*File, error) {
	c := &File{name: "reader", mode: ReadOnly, r: r}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

// Name returns the name the container was opened with.
func (c *File) Name() string { return c.name }

// Mode returns the mode of the handle.
func (c *File) Mode() Mode { return c.mode }

// ID returns the file id.
func (c *File) ID() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hdr.id
}

// Size returns the logical size of the container in bytes.
func (c *File) Size() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hdr.dataEnd + c.hdr.dirLen
}

// Root returns the root group.
func (c *File) Root() *Group {
	return &Group{file: c}
}

// Group returns the group at p, relative to the root.
func (c *File) Group(p string) (*Group, error) {
	return c.Root().Group(p)
}

// Dataset returns the dataset at p, relative to the root.
func (c *File) Dataset(p string) (*Dataset, error) {
	return c.Root().Dataset(p)
}

// Refresh reloads the directory from the file so objects created through
// another handle become visible.
func (c *File) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	return c.load()
}

// Sync flushes file contents to stable storage.
func (c *File) Sync() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClosed
	}
	if c.f == nil || c.mode != ReadWrite {
		return nil
	}
	if err := c.f.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %w", ErrIO, c.name, err)
	}
	return nil
}

// Close closes the handle. Closing an already closed handle is a no-op.
func (c *File) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.f == nil {
		return nil
	}
	if err := c.f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrIO, c.name, err)
	}
	return nil
}

// load reads header and directory. Caller must hold c.mu for writing or
// own c exclusively.
func (c *File) load() error {
	hb := make([]byte, headerSize)
	if _, err := c.r.ReadAt(hb, 0); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %s: short header", ErrCorrupt, c.name)
		}
		return fmt.Errorf("%w: read header %s: %w", ErrIO, c.name, err)
	}

	hdr, err := decodeHeader(hb)
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}

	dir := make([]byte, hdr.dirLen)
	if hdr.dirLen > 0 {
		if _, err := c.r.ReadAt(dir, int64(hdr.dataEnd)); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: %s: truncated directory", ErrCorrupt, c.name)
			}
			return fmt.Errorf("%w: read directory %s: %w", ErrIO, c.name, err)
		}
	}

	if err := hash.Verify(dir, hdr.dirCRC); err != nil {
		return fmt.Errorf("%w: %s: directory: %w", ErrCorrupt, c.name, err)
	}

	objects, err := decodeDirectory(dir, hdr.dataEnd)
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}

	c.hdr = hdr
	c.objects = objects
	return nil
}

// flush writes directory and header. Caller must hold c.mu for writing.
func (c *File) flush() error {
	dir, err := encodeDirectory(c.objects)
	if err != nil {
		return err
	}

	if _, err := c.f.WriteAt(dir, int64(c.hdr.dataEnd)); err != nil {
		return fmt.Errorf("%w: write directory %s: %w", ErrIO, c.name, err)
	}
	if err := c.f.Truncate(int64(c.hdr.dataEnd) + int64(len(dir))); err != nil {
		return fmt.Errorf("%w: truncate %s: %w", ErrIO, c.name, err)
	}

	c.hdr.dirLen = uint64(len(dir))
	c.hdr.dirCRC = hash.CRC32C(dir)

	if _, err := c.f.WriteAt(c.hdr.encode(), 0); err != nil {
		return fmt.Errorf("%w: write header %s: %w", ErrIO, c.name, err)
	}
	return nil
}

func (c *File) checkWritable() error {
	if c.closed {
		return ErrClosed
	}
	if c.mode != ReadWrite || c.f == nil {
		return ErrReadOnly
	}
	return nil
}

// mkdirs creates p and all missing parent groups. Caller must hold c.mu.
func (c *File) mkdirs(p string) error {
	if p == "" {
		return nil
	}
	parts := strings.Split(p, "/")
	for i := range parts {
		prefix := strings.Join(parts[:i+1], "/")
		o, ok := c.objects[prefix]
		if !ok {
			c.objects[prefix] = &object{path: prefix, kind: KindGroup}
			continue
		}
		if o.kind != KindGroup {
			return fmt.Errorf("%w: %s", ErrNotGroup, prefix)
		}
	}
	return nil
}

// children returns the sorted names of direct children of group p.
func (c *File) children(p string) []string {
	prefix := ""
	if p != "" {
		prefix = p + "/"
	}

	var names []string
	for op := range c.objects {
		if !strings.HasPrefix(op, prefix) {
			continue
		}
		rest := op[len(prefix):]
		if rest == "" || strings.Contains(rest, "/") {
			continue
		}
		names = append(names, rest)
	}
	slices.Sort(names)
	return names
}

// cleanPath normalizes a relative object path. The root is "".
func cleanPath(p string) (string, error) {
	p = strings.Trim(p, "/")
	if p == "" {
		return "", nil
	}
	for _, part := range strings.Split(p, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	return path.Clean(p), nil
}

func joinPath(base, p string) string {
	if base == "" {
		return p
	}
	if p == "" {
		return base
	}
	return base + "/" + p
}
