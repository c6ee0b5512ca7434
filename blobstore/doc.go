// Package blobstore publishes finished index containers to object storage
// and fetches them back.
//
// A BlobStore holds named, immutable blobs. Containers are written once by
// the indexing job and read many times by lookup clients, so the interface
// only needs whole-object writes and positional reads:
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Create(ctx, name) (WritableBlob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// # Implementations
//
//   - LocalStore: local directory, mmap reads, atomic rename on write
//   - MemoryStore: in-process map, for tests
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// Blob satisfies io.ReaderAt, so a remote container can be opened in place
// with container.OpenReader without downloading it first.
package blobstore
