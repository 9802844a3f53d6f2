package blob_test

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/mediapipe/internal/domain"

	. "github.com/mkrupp/mediapipe/internal/repo/blob"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

var _ S3API = (*fakeS3)(nil)

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}

	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.objects[aws.ToString(in.Key)] = body
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)

	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.objects, aws.ToString(in.Key))

	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, key := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}

	return out, nil
}

func (f *fakeS3) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

func TestS3Repository_StoreFetchDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newFakeS3()
	repo := NewS3Repository(client, "bucket", "/media/")

	require.NoError(t, repo.Store(ctx, domain.NewBlob("ctx/ref.txt", []byte("hello"))))
	assert.Equal(t, []string{"media/ctx/ref.txt"}, client.keys())
	assert.Contains(t, client.types["media/ctx/ref.txt"], "text/plain")

	exists, err := repo.Exists(ctx, "ctx/ref.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	blob, err := repo.Fetch(ctx, "ctx/ref.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), blob.Body)
	assert.Equal(t, domain.BlobID("ctx/ref.txt"), blob.ID)

	require.NoError(t, repo.Delete(ctx, "ctx/ref.txt"))
	require.NoError(t, repo.Delete(ctx, "ctx/ref.txt"))

	exists, err = repo.Exists(ctx, "ctx/ref.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.Fetch(ctx, "ctx/ref.txt")
	require.ErrorIs(t, err, ErrBlobNotFound)
}

func TestS3Repository_Get(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewS3Repository(newFakeS3(), "bucket", "")

	_, err := repo.Get(ctx, "missing.jpg", false)
	require.ErrorIs(t, err, ErrBlobNotFound)

	blob, err := repo.Get(ctx, "missing.jpg", true)
	require.NoError(t, err)
	assert.Equal(t, domain.BlobID("missing.jpg"), blob.ID)

	_, err = repo.Get(ctx, "", true)
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestS3Repository_DeleteAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newFakeS3()
	repo := NewS3Repository(client, "bucket", "media")

	for _, key := range []domain.BlobID{
		"ctx/thumb_5_ctx_a.jpg",
		"ctx/thumb_5_ctx_b.jpg",
		"ctx/thumb_55_ctx_a.jpg",
		"ctx/ref.jpg",
	} {
		require.NoError(t, repo.Store(ctx, domain.NewBlob(key, []byte("x"))))
	}

	require.NoError(t, repo.DeleteAll(ctx, "ctx/", "thumb_5_*"))

	assert.Equal(t, []string{"media/ctx/ref.jpg", "media/ctx/thumb_55_ctx_a.jpg"}, client.keys())
}

func TestNewS3Client_RequiresBucket(t *testing.T) {
	t.Parallel()

	_, err := NewS3Client(context.Background(), S3BlobRepositoryConfig{})
	require.ErrorIs(t, err, ErrS3NotConfigured)
}
