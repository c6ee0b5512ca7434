package edgeidx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/hupe1980/edgeidx/blobstore"
	"github.com/hupe1980/edgeidx/container"
	"github.com/hupe1980/edgeidx/fs"
	"github.com/hupe1980/edgeidx/internal/compress"
)

// Compression selects the block compression of published containers.
type Compression = compress.Type

const (
	// CompressionNone stores the container verbatim, so it can be opened in
	// place with OpenBlob.
	CompressionNone = compress.None
	// CompressionLZ4 favors speed.
	CompressionLZ4 = compress.LZ4
	// CompressionZstd favors ratio.
	CompressionZstd = compress.Zstd
)

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	return compress.ParseType(s)
}

type publishOptions struct {
	compression Compression
	blockSize   int
	fs          fs.FileSystem
}

// PublishOption configures Publish and Fetch.
type PublishOption func(*publishOptions)

// WithCompression sets the compression of published blobs.
func WithCompression(c Compression) PublishOption {
	return func(o *publishOptions) {
		o.compression = c
	}
}

// WithBlockSize sets the uncompressed block size. Zero selects
// compress.DefaultBlockSize.
func WithBlockSize(n int) PublishOption {
	return func(o *publishOptions) {
		o.blockSize = n
	}
}

// WithLocalFileSystem sets the file system used for the local side.
func WithLocalFileSystem(fsys fs.FileSystem) PublishOption {
	return func(o *publishOptions) {
		if fsys != nil {
			o.fs = fsys
		}
	}
}

func applyPublishOptions(optFns []PublishOption) publishOptions {
	o := publishOptions{fs: fs.Default}
	for _, fn := range optFns {
		fn(&o)
	}
	return o
}

// TransferStats describes a Publish or Fetch.
type TransferStats struct {
	Name        string
	Compression Compression
	// RawBytes is the container size.
	RawBytes int64
	// StoredBytes is the blob size.
	StoredBytes int64
}

// Publish copies the finished container at path to store under name.
// The container is validated before upload. On failure no blob is created
// where the store supports aborting writes.
func Publish(ctx context.Context, store blobstore.BlobStore, name, path string, optFns ...PublishOption) (*TransferStats, error) {
	o := applyPublishOptions(optFns)

	// Refuse to publish anything that is not a readable container.
	c, err := container.Open(path, container.ReadOnly, container.WithFileSystem(o.fs))
	if err != nil {
		return nil, translateError(err)
	}
	if err := c.Close(); err != nil {
		return nil, translateError(err)
	}

	f, err := o.fs.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContainerIO, err)
	}
	defer func() { _ = f.Close() }()
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContainerIO, err)
	}

	w, err := store.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	stats := &TransferStats{Name: name, Compression: o.compression, RawBytes: fi.Size()}
	cw := &countingWriter{w: w}

	err = copyCompressed(ctx, cw, io.NewSectionReader(f, 0, fi.Size()), o)
	if err != nil {
		abort(w)
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	stats.StoredBytes = cw.n
	return stats, nil
}

func copyCompressed(ctx context.Context, dst io.Writer, src io.Reader, o publishOptions) error {
	if o.compression == CompressionNone {
		_, err := io.Copy(dst, &contextReader{ctx: ctx, r: src})
		return err
	}
	zw := compress.NewWriter(dst, o.compression, o.blockSize)
	if _, err := io.Copy(zw, &contextReader{ctx: ctx, r: src}); err != nil {
		return err
	}
	return zw.Close()
}

func abort(w blobstore.WritableBlob) {
	if a, ok := w.(blobstore.Aborter); ok {
		_ = a.Abort()
		return
	}
	_ = w.Close()
}

// Fetch downloads the blob name to path, decompressing it if needed. The
// file is validated as a container before it replaces path.
func Fetch(ctx context.Context, store blobstore.BlobStore, name, path string, optFns ...PublishOption) (*TransferStats, error) {
	o := applyPublishOptions(optFns)

	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = blob.Close() }()

	src, c, err := blobReader(blob)
	if err != nil {
		return nil, err
	}

	if err := o.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContainerIO, err)
	}
	tmp := path + ".tmp-" + uuid.NewString()
	f, err := o.fs.OpenFile(tmp, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContainerIO, err)
	}

	ow := &offsetWriter{w: f}
	err = func() error {
		if _, err := io.Copy(ow, &contextReader{ctx: ctx, r: src}); err != nil {
			return err
		}
		return f.Sync()
	}()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = validate(tmp, o.fs)
	}
	if err == nil {
		err = o.fs.Rename(tmp, path)
	}
	if err != nil {
		_ = o.fs.Remove(tmp)
		return nil, translateError(err)
	}
	return &TransferStats{Name: name, Compression: c, RawBytes: ow.off, StoredBytes: blob.Size()}, nil
}

func validate(path string, fsys fs.FileSystem) error {
	c, err := container.Open(path, container.ReadOnly, container.WithFileSystem(fsys))
	if err != nil {
		return err
	}
	return c.Close()
}

// blobReader returns a reader of the container bytes stored in blob.
func blobReader(blob blobstore.Blob) (io.Reader, Compression, error) {
	pre := make([]byte, compress.PreambleSize)
	n, err := blob.ReadAt(pre, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, CompressionNone, err
	}
	sr := io.NewSectionReader(blob, 0, blob.Size())
	if !compress.IsStream(pre[:n]) {
		return sr, CompressionNone, nil
	}
	zr, err := compress.NewReader(sr)
	if err != nil {
		return nil, CompressionNone, fmt.Errorf("%w: %w", ErrContainerIO, err)
	}
	return zr, zr.Type(), nil
}

// BlobContainer is a read-only container backed by a blob.
type BlobContainer struct {
	*container.File
	blob blobstore.Blob
}

// Close closes the container and the blob.
func (b *BlobContainer) Close() error {
	return errors.Join(b.File.Close(), b.blob.Close())
}

// OpenBlob opens the published container name for reading. Uncompressed
// blobs are read in place with ranged reads; compressed blobs are
// decompressed into memory first.
func OpenBlob(ctx context.Context, store blobstore.BlobStore, name string) (*BlobContainer, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}

	src, c, err := blobReader(blob)
	if err != nil {
		_ = blob.Close()
		return nil, err
	}

	var r io.ReaderAt = blob
	if c != CompressionNone {
		data, err := io.ReadAll(&contextReader{ctx: ctx, r: src})
		if err != nil {
			_ = blob.Close()
			return nil, translateError(fmt.Errorf("%w: %w", container.ErrIO, err))
		}
		r = bytes.NewReader(data)
	}

	f, err := container.OpenReader(r)
	if err != nil {
		_ = blob.Close()
		return nil, translateError(err)
	}
	return &BlobContainer{File: f, blob: blob}, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// offsetWriter adapts an io.WriterAt to sequential writes.
type offsetWriter struct {
	w   io.WriterAt
	off int64
}

func (o *offsetWriter) Write(p []byte) (int, error) {
	n, err := o.w.WriteAt(p, o.off)
	o.off += int64(n)
	return n, err
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
