package minio

import (
	"context"
	"os"
	"testing"

	"github.com/hupe1980/edgeidx/blobstore"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMinioStoreIntegration requires a running MinIO instance at
// MINIO_ENDPOINT (default credentials minioadmin/minioadmin).
func TestMinioStoreIntegration(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}
	bucket := "edgeidx-test"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	ctx := context.Background()
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "test-prefix/")

	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "graph.eidx", data))

	blob, err := store.Open(ctx, "graph.eidx")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 5)
	n, err := blob.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "minio", string(buf[:n]))
	require.NoError(t, blob.Close())

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "graph.eidx")

	require.NoError(t, store.Delete(ctx, "graph.eidx"))
	_, err = store.Open(ctx, "graph.eidx")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	w, err := store.Create(ctx, "stream.eidx")
	require.NoError(t, err)
	_, err = w.Write([]byte("streamed data"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	got, err := blobstore.ReadAll(ctx, store, "stream.eidx")
	require.NoError(t, err)
	assert.Equal(t, "streamed data", string(got))

	_ = store.Delete(ctx, "stream.eidx")
}
