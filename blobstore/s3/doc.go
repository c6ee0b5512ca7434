// Package s3 provides an Amazon S3 implementation of blobstore.BlobStore.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("indices/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//	err = edgeidx.Publish(ctx, store, "graph.eidx", "/scratch/graph.h5")
//
// # Features
//
//   - Range reads, so containers can be opened in place
//   - Multipart uploads with CRC32C checksums
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
