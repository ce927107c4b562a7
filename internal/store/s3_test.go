package store

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cachetune/cachetune/pkg/errors"
)

// fakeS3 implements s3API over an in-memory map
type fakeS3 struct {
	objects  map[string][]byte
	metadata map[string]map[string]string
	pageSize int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:  make(map[string][]byte),
		metadata: make(map[string]map[string]string),
	}
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(params.Key)
	f.objects[key] = data
	f.metadata[key] = params.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	key := aws.ToString(params.Key)
	delete(f.objects, key)
	delete(f.metadata, key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(params.Prefix)
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if params.ContinuationToken != nil {
		for i, k := range keys {
			if k > aws.ToString(params.ContinuationToken) {
				start = i
				break
			}
		}
	}

	end := len(keys)
	truncated := false
	if f.pageSize > 0 && start+f.pageSize < end {
		end = start + f.pageSize
		truncated = true
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(truncated)}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}
	if truncated {
		out.NextContinuationToken = aws.String(keys[end-1])
	}
	return out, nil
}

func newTestS3Store(fake *fakeS3) *S3Store {
	return &S3Store{
		client: fake,
		bucket: "test-bucket",
		prefix: "cachetune",
	}
}

func TestNewS3Store_NilConfig(t *testing.T) {
	s, err := NewS3Store(context.Background(), nil)
	assert.Nil(t, s)
	assert.Equal(t, errors.ErrCodeMissingConfig, errors.CodeOf(err))
}

func TestNewS3Store_MissingBucket(t *testing.T) {
	s, err := NewS3Store(context.Background(), &S3Config{Region: "us-east-1"})
	assert.Nil(t, s)
	assert.Equal(t, errors.ErrCodeInvalidConfig, errors.CodeOf(err))
}

func TestS3Store_SetGet(t *testing.T) {
	fake := newFakeS3()
	s := newTestS3Store(fake)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "obj-1", []byte("payload"), 0))

	value, found, err := s.Get(ctx, "obj-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("payload"), value)

	// Objects land under the configured prefix.
	_, ok := fake.objects["cachetune/obj-1"]
	assert.True(t, ok)
}

func TestS3Store_SetRecordsTTLMetadata(t *testing.T) {
	fake := newFakeS3()
	s := newTestS3Store(fake)

	require.NoError(t, s.Set(context.Background(), "obj-1", []byte("x"), 90*time.Second))

	assert.Equal(t, "90", fake.metadata["cachetune/obj-1"][ttlMetadataKey])
}

func TestS3Store_GetMissing(t *testing.T) {
	s := newTestS3Store(newFakeS3())

	value, found, err := s.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, value)
}

func TestS3Store_Remove(t *testing.T) {
	fake := newFakeS3()
	s := newTestS3Store(fake)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "obj-1", []byte("x"), 0))
	require.NoError(t, s.Remove(ctx, "obj-1"))
	assert.Empty(t, fake.objects)

	// Removing an absent object is not an error.
	assert.NoError(t, s.Remove(ctx, "obj-1"))
}

func TestS3Store_Keys(t *testing.T) {
	fake := newFakeS3()
	s := newTestS3Store(fake)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))

	// Objects outside the prefix are invisible.
	fake.objects["other/c"] = []byte("3")

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}

func TestS3Store_KeysPaginated(t *testing.T) {
	fake := newFakeS3()
	fake.pageSize = 2
	s := newTestS3Store(fake)
	ctx := context.Background()

	want := []string{"a", "b", "c", "d", "e"}
	for _, k := range want {
		require.NoError(t, s.Set(ctx, k, []byte(k), 0))
	}

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, want, keys)
}

func TestS3Store_Close(t *testing.T) {
	s := newTestS3Store(newFakeS3())
	assert.NoError(t, s.Close(context.Background()))
}
