package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	lock sync.Mutex

	objects   map[string][]byte
	parts     map[int32][]byte
	failParts map[int32]int
	aborted   bool
	completed bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:   map[string][]byte{},
		parts:     map[int32][]byte{},
		failParts: map[int32]int{},
	}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
}

func (f *fakeS3) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	n := aws.ToInt32(in.PartNumber)
	f.lock.Lock()
	if f.failParts[n] > 0 {
		f.failParts[n]--
		f.lock.Unlock()
		return nil, errors.New("connection reset")
	}
	f.lock.Unlock()

	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.parts[n] = data
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("etag-%d", n))}, nil
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	var buf bytes.Buffer
	for _, p := range in.MultipartUpload.Parts {
		buf.Write(f.parts[aws.ToInt32(p.PartNumber)])
	}
	f.objects[aws.ToString(in.Key)] = buf.Bytes()
	f.completed = true
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.aborted = true
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func newTestStore(client s3API) *S3Store {
	s := newS3Store(client, NewS3StoreOptions{
		Bucket:       "clips",
		CDNBaseURL:   "https://cdn.example.com/",
		PartSize:     4,
		PartAttempts: 2,
	})
	s.backoff = 0
	return s
}

func TestS3Store_SmallPayloadUsesPutObject(t *testing.T) {
	client := newFakeS3()
	store := newTestStore(client)

	var progress []int64
	url, err := store.Upload(context.Background(), "a/b.mp4", "video/mp4", strings.NewReader("abc"), 3, func(n int64) {
		progress = append(progress, n)
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a/b.mp4", url)
	assert.Equal(t, []byte("abc"), client.objects["a/b.mp4"])
	assert.Equal(t, []int64{3}, progress)
	assert.False(t, client.completed)
}

func TestS3Store_MultipartRetriesFailedPart(t *testing.T) {
	client := newFakeS3()
	client.failParts[2] = 1
	store := newTestStore(client)

	payload := "0123456789"
	var progress []int64
	_, err := store.Upload(context.Background(), "clip.mp4", "video/mp4", strings.NewReader(payload), int64(len(payload)), func(n int64) {
		progress = append(progress, n)
	})
	require.NoError(t, err)
	assert.True(t, client.completed)
	assert.False(t, client.aborted)
	assert.Equal(t, payload, string(client.objects["clip.mp4"]))
	assert.Equal(t, []int64{4, 8, 10}, progress)
}

func TestS3Store_MultipartAbortsAfterRetries(t *testing.T) {
	client := newFakeS3()
	client.failParts[3] = 5
	store := newTestStore(client)

	_, err := store.Upload(context.Background(), "clip.mp4", "video/mp4", strings.NewReader("0123456789"), 10, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "part 3")
	assert.True(t, client.aborted)
	assert.False(t, client.completed)
	assert.NotContains(t, client.objects, "clip.mp4")
}

func TestS3Store_Delete(t *testing.T) {
	client := newFakeS3()
	client.objects["k"] = []byte("x")
	store := newTestStore(client)
	require.NoError(t, store.Delete(context.Background(), "k"))
	assert.Empty(t, client.objects)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore("memory://videos")
	url, err := store.Upload(context.Background(), "k.mp4", "video/mp4", strings.NewReader("clip"), 4, nil)
	require.NoError(t, err)
	assert.Equal(t, "memory://videos/k.mp4", url)

	obj, ok := store.Object("k.mp4")
	require.True(t, ok)
	assert.Equal(t, "video/mp4", obj.ContentType)
	assert.Equal(t, []byte("clip"), obj.Data)

	boom := errors.New("boom")
	store.FailWith(boom)
	_, err = store.Upload(context.Background(), "other.mp4", "video/mp4", strings.NewReader("x"), 1, nil)
	assert.ErrorIs(t, err, boom)

	require.NoError(t, store.Delete(context.Background(), "k.mp4"))
	_, ok = store.Object("k.mp4")
	assert.False(t, ok)
}

func TestSpool(t *testing.T) {
	dir := t.TempDir()

	path, n, err := Spool(strings.NewReader("hello"), dir, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, _, err = Spool(strings.NewReader("hello!"), dir, 5)
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "oversized spool file removed")
}
