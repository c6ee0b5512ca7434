package s3

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hupe1980/edgeidx/blobstore"
	"github.com/hupe1980/edgeidx/internal/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.HeadObjectOutput)
	return out, args.Error(1)
}

func (m *mockClient) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func (m *mockClient) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func (m *mockClient) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.DeleteObjectOutput)
	return out, args.Error(1)
}

func (m *mockClient) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.ListObjectsV2Output)
	return out, args.Error(1)
}

func (m *mockClient) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.UploadPartOutput)
	return out, args.Error(1)
}

func (m *mockClient) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.CreateMultipartUploadOutput)
	return out, args.Error(1)
}

func (m *mockClient) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.CompleteMultipartUploadOutput)
	return out, args.Error(1)
}

func (m *mockClient) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.AbortMultipartUploadOutput)
	return out, args.Error(1)
}

func TestStoreOpen(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "bucket", "prefix")

	t.Run("NotFound", func(t *testing.T) {
		client.On("HeadObject", mock.Anything, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
			return *in.Key == "prefix/missing"
		})).Return(nil, &types.NotFound{}).Once()

		_, err := store.Open(context.Background(), "missing")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("ReadAt", func(t *testing.T) {
		client.On("HeadObject", mock.Anything, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
			return *in.Bucket == "bucket" && *in.Key == "prefix/graph.eidx"
		})).Return(&s3.HeadObjectOutput{ContentLength: aws.Int64(10)}, nil).Once()
		client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
			return *in.Range == "bytes=2-6"
		})).Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("llo W"))}, nil).Once()
		client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
			return *in.Range == "bytes=8-9"
		})).Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("ld"))}, nil).Once()

		blob, err := store.Open(context.Background(), "graph.eidx")
		require.NoError(t, err)
		assert.Equal(t, int64(10), blob.Size())

		buf := make([]byte, 5)
		n, err := blob.ReadAt(buf, 2)
		require.NoError(t, err)
		assert.Equal(t, "llo W", string(buf[:n]))

		// Short read at the tail.
		n, err = blob.ReadAt(buf, 8)
		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, "ld", string(buf[:n]))

		n, err = blob.ReadAt(buf, 10)
		assert.ErrorIs(t, err, io.EOF)
		assert.Zero(t, n)
	})

	client.AssertExpectations(t)
}

func TestStorePut(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "bucket", "")
	data := []byte("container")

	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Key == "a.eidx" && *in.ChecksumCRC32C == hash.Base64(data) && *in.ContentLength == int64(len(data))
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	require.NoError(t, store.Put(context.Background(), "a.eidx", data))
	client.AssertExpectations(t)
}

func TestStoreCreate(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "bucket", "prefix")

	var got bytes.Buffer
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Key == "prefix/new" && in.ChecksumAlgorithm == types.ChecksumAlgorithmCrc32c
	})).Run(func(args mock.Arguments) {
		in := args.Get(1).(*s3.PutObjectInput)
		_, _ = io.Copy(&got, in.Body)
	}).Return(&s3.PutObjectOutput{}, nil).Once()

	w, err := store.Create(context.Background(), "new")
	require.NoError(t, err)
	_, err = w.Write([]byte("content"))
	require.NoError(t, err)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	assert.Equal(t, "content", got.String())
	client.AssertExpectations(t)
}

func TestStoreDelete(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "bucket", "prefix")

	client.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return *in.Key == "prefix/old"
	})).Return(&s3.DeleteObjectOutput{}, nil).Once()

	require.NoError(t, store.Delete(context.Background(), "old"))
	client.AssertExpectations(t)
}

func TestStoreListPagination(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "bucket", "prefix/")

	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return *in.Prefix == "prefix/g" && in.ContinuationToken == nil
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("token"),
		Contents:              []types.Object{{Key: aws.String("prefix/g2")}},
	}, nil).Once()
	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return in.ContinuationToken != nil && *in.ContinuationToken == "token"
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated: aws.Bool(false),
		Contents:    []types.Object{{Key: aws.String("prefix/g1")}},
	}, nil).Once()

	keys, err := store.List(context.Background(), "g")
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g2"}, keys)
	client.AssertExpectations(t)
}

func TestIntegrationS3Store(t *testing.T) {
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		t.Skip("S3_BUCKET not set")
	}
	ctx := context.Background()

	store, err := New(ctx, bucket, WithPrefix(fmt.Sprintf("edgeidx-test-%d/", time.Now().UnixNano())))
	require.NoError(t, err)

	data := make([]byte, 1<<20)
	_, _ = rand.Read(data)

	w, err := store.Create(ctx, "c.eidx")
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	got, err := blobstore.ReadAll(ctx, store, "c.eidx")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, store.Delete(ctx, "c.eidx"))
}
